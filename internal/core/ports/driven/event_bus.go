package driven

import (
	"context"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
)

// EventHandler processes one event. Returning an error leaves the event
// unacknowledged for redelivery under group consumption.
type EventHandler func(ctx context.Context, event *domain.Event) error

// Observer receives best-effort, at-most-once notification of events as they
// are emitted. The durable log remains the source of truth for replay.
type Observer interface {
	Notify(event *domain.Event)
}

// ConsumeOptions tunes a group read loop iteration.
type ConsumeOptions struct {
	// Count is the maximum number of events to read per call
	Count int

	// BlockMillis is how long to block waiting for new events; 0 means do
	// not block
	BlockMillis int

	// AutoAck acknowledges events before the handler runs (at-most-once)
	AutoAck bool
}

// ReadOptions tunes a non-group catch-up read.
type ReadOptions struct {
	// FromID is the log position to read from; empty means the beginning
	FromID string

	// Count is the maximum number of events to return
	Count int
}

// EventBus is an append-only, length-bounded per-type event log with
// competing-consumer group delivery and best-effort live fan-out.
type EventBus interface {
	// Emit appends the event to the type's log, trimming the oldest entries
	// past the configured bound, and notifies registered observers.
	// Returns the assigned event ID.
	Emit(ctx context.Context, eventType domain.EventType, payload map[string]any, metadata map[string]string) (string, error)

	// Consume reads unacknowledged entries assigned to the consumer group,
	// invokes the handler per event, and acknowledges on success. Creating
	// an already-existing group is a no-op.
	Consume(ctx context.Context, eventType domain.EventType, group, consumer string, handler EventHandler, opts ConsumeOptions) error

	// GetEvents tails the log without group semantics.
	GetEvents(ctx context.Context, eventType domain.EventType, opts ReadOptions) ([]*domain.Event, error)

	// Subscribe registers a live observer for the event type.
	Subscribe(eventType domain.EventType, observer Observer)
}
