package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	xerrors "escrow-service/shared/utils/errors"
)

// lockTable hands out one exclusive lock per entity key. A lock is a
// one-slot channel so acquisition can race a timer and the caller's context.
type lockTable struct {
	mu   sync.Mutex
	sems map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{sems: make(map[string]chan struct{})}
}

func (lt *lockTable) sem(key string) chan struct{} {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	c, ok := lt.sems[key]
	if !ok {
		c = make(chan struct{}, 1)
		lt.sems[key] = c
	}
	return c
}

// acquire blocks until key is free, ctx is done or timeout elapses. A
// timeout yields ErrBusy.
func (lt *lockTable) acquire(ctx context.Context, key string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := lt.sem(key)
	select {
	case c <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("lock %s not acquired within %s: %w", key, timeout, xerrors.ErrBusy)
	}
}

func (lt *lockTable) release(key string) {
	<-lt.sem(key)
}
