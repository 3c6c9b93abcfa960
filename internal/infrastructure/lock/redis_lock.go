package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
)

const redisKeyPrefix = "reconcile:lock:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLock is a lease-based lock for deployments without a shared Postgres session.
// A held lease is refreshed every ttl/3 until released.
type RedisLock struct {
	client    redis.UniversalClient
	ttl       time.Duration
	retryWait time.Duration
	log       logrus.FieldLogger
}

func NewRedisLock(client redis.UniversalClient, ttl time.Duration, log logrus.FieldLogger) *RedisLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLock{client: client, ttl: ttl, retryWait: 100 * time.Millisecond, log: log}
}

func (l *RedisLock) Acquire(ctx context.Context, targetID string) (domain.LockLease, error) {
	key := fmt.Sprintf("%s%d", redisKeyPrefix, Key(targetID))
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.retryWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	refreshCtx, stop := context.WithCancel(context.Background())
	lease := &redisLease{lock: l, key: key, token: token, stop: stop, done: make(chan struct{})}
	go lease.refresh(refreshCtx)
	return lease, nil
}

type redisLease struct {
	lock  *RedisLock
	key   string
	token string
	stop  context.CancelFunc
	done  chan struct{}

	once sync.Once
	err  error
}

func (l *redisLease) refresh(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(l.lock.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := refreshScript.Run(ctx, l.lock.client, []string{l.key}, l.token, l.lock.ttl.Milliseconds()).Int()
			if err != nil && !errors.Is(err, context.Canceled) {
				l.lock.log.WithError(err).WithField("key", l.key).Warn("lock: refresh failed")
				continue
			}
			if err == nil && n == 0 {
				l.lock.log.WithField("key", l.key).Error("lock: lease lost before release")
				return
			}
		}
	}
}

func (l *redisLease) Release(ctx context.Context) error {
	l.once.Do(func() {
		l.stop()
		<-l.done
		if err := releaseScript.Run(ctx, l.lock.client, []string{l.key}, l.token).Err(); err != nil {
			l.err = fmt.Errorf("redis release %s: %w", l.key, err)
		}
	})
	return l.err
}
