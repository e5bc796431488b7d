// Package audit records who changed what. Recording is fire-and-forget:
// a failing sink is logged and never fails the operation that produced the
// event.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Action codes.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Event is a single audit record.
type Event struct {
	ID         uuid.UUID         `json:"id"`
	Actor      string            `json:"actor"`
	Action     string            `json:"action"`
	TargetType string            `json:"target_type"`
	TargetID   uuid.UUID         `json:"target_id"`
	RequestID  string            `json:"request_id,omitempty"`
	Detail     map[string]string `json:"detail,omitempty"`
	At         time.Time         `json:"at"`
}

// NewEvent builds an Event stamped with a fresh id and the current time.
func NewEvent(actor, action, targetType string, targetID uuid.UUID) Event {
	return Event{
		ID:         uuid.New(),
		Actor:      actor,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		At:         time.Now().UTC(),
	}
}

// Sink persists audit events.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Record(ctx context.Context, e Event) error { return f(ctx, e) }

// Nop discards every event.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

// LogSink writes events as structured log lines.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "audit").Logger()}
}

func (s *LogSink) Record(_ context.Context, e Event) error {
	evt := s.logger.Info().
		Str("type", "audit").
		Str("event_id", e.ID.String()).
		Str("actor", e.Actor).
		Str("action", e.Action).
		Str("target_type", e.TargetType).
		Str("target_id", e.TargetID.String()).
		Time("at", e.At)
	if e.RequestID != "" {
		evt = evt.Str("request_id", e.RequestID)
	}
	for k, v := range e.Detail {
		evt = evt.Str(k, v)
	}
	evt.Msg("audit_event")
	return nil
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Record(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type requestIDKey struct{}

// WithRequestID attaches the request id copied onto events recorded under ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
