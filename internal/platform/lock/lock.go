// Package lock provides short-lived mutual exclusion keyed by string. The
// redis implementation coordinates several server instances; the local one
// covers single-process deployments and tests.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotAcquired is returned when a lock could not be taken before the wait
// deadline expired.
var ErrNotAcquired = errors.New("lock not acquired")

// ReleaseFunc releases a held lock. It is safe to call more than once.
type ReleaseFunc func()

// Locker acquires a named lock, waiting up to the implementation's wait limit
// or until ctx is done.
type Locker interface {
	Acquire(ctx context.Context, key string) (ReleaseFunc, error)
}

// Local is an in-process Locker backed by one channel per key.
type Local struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
	wait  time.Duration
}

// NewLocal returns a Local that gives up after wait. A zero wait blocks until
// ctx is done.
func NewLocal(wait time.Duration) *Local {
	return &Local{slots: make(map[string]chan struct{}), wait: wait}
}

func (l *Local) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *Local) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	ch := l.slot(key)

	var timeout <-chan time.Time
	if l.wait > 0 {
		timer := time.NewTimer(l.wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case ch <- struct{}{}:
	case <-timeout:
		return nil, ErrNotAcquired
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}

// Noop never blocks.
type Noop struct{}

func (Noop) Acquire(context.Context, string) (ReleaseFunc, error) {
	return func() {}, nil
}
