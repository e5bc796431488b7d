package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocal_SerializesSameKey(t *testing.T) {
	l := NewLocal(0)
	var inside int32
	var maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "doctor-1")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("expected at most one holder at a time, saw %d", maxInside)
	}
}

func TestLocal_DifferentKeysDoNotBlock(t *testing.T) {
	l := NewLocal(10 * time.Millisecond)
	r1, err := l.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r1()

	r2, err := l.Acquire(context.Background(), "b")
	if err != nil {
		t.Fatalf("expected independent key to be acquired, got %v", err)
	}
	r2()
}

func TestLocal_WaitTimeout(t *testing.T) {
	l := NewLocal(10 * time.Millisecond)
	release, err := l.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release()

	_, err = l.Acquire(context.Background(), "k")
	if !errors.Is(err, ErrNotAcquired) {
		t.Errorf("expected ErrNotAcquired, got %v", err)
	}
}

func TestLocal_ContextCancelled(t *testing.T) {
	l := NewLocal(0)
	release, err := l.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Acquire(ctx, "k")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestLocal_ReleaseIsIdempotent(t *testing.T) {
	l := NewLocal(10 * time.Millisecond)
	release, err := l.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release()
	release()

	again, err := l.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("expected lock to be free after release, got %v", err)
	}
	again()
}

func TestNoop(t *testing.T) {
	release, err := Noop{}.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release()
}
