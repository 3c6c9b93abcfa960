package lock

import (
	"context"
	"sync"

	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
)

// MemoryLock is a keyed mutex for single-instance deployments and tests.
type MemoryLock struct {
	mu    sync.Mutex
	slots map[int64]chan struct{}
}

func NewMemoryLock() *MemoryLock {
	return &MemoryLock{slots: map[int64]chan struct{}{}}
}

func (l *MemoryLock) slot(key int64) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *MemoryLock) Acquire(ctx context.Context, targetID string) (domain.LockLease, error) {
	ch := l.slot(Key(targetID))
	select {
	case ch <- struct{}{}:
		return &memoryLease{ch: ch}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type memoryLease struct {
	ch   chan struct{}
	once sync.Once
}

func (l *memoryLease) Release(ctx context.Context) error {
	l.once.Do(func() { <-l.ch })
	return nil
}
