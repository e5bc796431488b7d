package audit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Async hands events to a background worker so callers never wait on the
// underlying sink. Events are dropped (and logged) when the buffer is full.
type Async struct {
	sink    Sink
	logger  zerolog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	events chan Event
	wg     sync.WaitGroup
}

// NewAsync starts a worker draining into sink. Each delivery is bounded by
// timeout.
func NewAsync(sink Sink, buffer int, timeout time.Duration, logger zerolog.Logger) *Async {
	a := &Async{
		sink:    sink,
		logger:  logger,
		timeout: timeout,
		events:  make(chan Event, buffer),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) run() {
	defer a.wg.Done()
	for e := range a.events {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.sink.Record(ctx, e); err != nil {
			a.logger.Error().Err(err).
				Str("event_id", e.ID.String()).
				Str("action", e.Action).
				Msg("failed to record audit event")
		}
		cancel()
	}
}

// Record enqueues e. It never blocks and always returns nil. Events recorded
// after Close are dropped.
func (a *Async) Record(_ context.Context, e Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.logger.Warn().
			Str("event_id", e.ID.String()).
			Str("action", e.Action).
			Msg("audit sink closed, event dropped")
		return nil
	}
	select {
	case a.events <- e:
	default:
		a.logger.Warn().
			Str("event_id", e.ID.String()).
			Str("action", e.Action).
			Msg("audit buffer full, event dropped")
	}
	return nil
}

// Close stops accepting events and waits for queued ones to be delivered.
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.events)
	a.mu.Unlock()

	a.wg.Wait()
}
