package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
)

// AdvisoryLock serializes applies with a session-level pg_advisory_lock. Each lease pins one
// pooled connection until it is released, since the lock belongs to that session.
type AdvisoryLock struct {
	pool *pgxpool.Pool
}

func NewAdvisoryLock(pool *pgxpool.Pool) *AdvisoryLock {
	return &AdvisoryLock{pool: pool}
}

func (l *AdvisoryLock) Acquire(ctx context.Context, targetID string) (domain.LockLease, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}

	key := Key(targetID)
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1::bigint)`, key); err != nil {
		// A cancelled wait leaves the session in an unknown state; drop it from the pool.
		_ = conn.Conn().Close(context.Background())
		conn.Release()
		return nil, fmt.Errorf("pg_advisory_lock %d: %w", key, err)
	}

	return &advisoryLease{conn: conn, key: key}, nil
}

type advisoryLease struct {
	conn *pgxpool.Conn
	key  int64

	once sync.Once
	err  error
}

func (l *advisoryLease) Release(ctx context.Context) error {
	l.once.Do(func() {
		defer l.conn.Release()

		var ok bool
		if err := l.conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1::bigint)`, l.key).Scan(&ok); err != nil {
			_ = l.conn.Conn().Close(context.Background())
			l.err = fmt.Errorf("pg_advisory_unlock %d: %w", l.key, err)
			return
		}
		if !ok {
			l.err = fmt.Errorf("pg_advisory_unlock %d: lock was not held", l.key)
		}
	})
	return l.err
}
