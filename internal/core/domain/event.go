package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType is the closed set of event kinds published on the bus.
type EventType string

const (
	EventTransactionCreated EventType = "transaction-created"
	EventSyncCompleted      EventType = "sync-completed"
	EventSyncFailed         EventType = "sync-failed"
	EventAccountUpdated     EventType = "account-updated"
)

// EventSchemaVersion is stamped on every emitted event envelope.
const EventSchemaVersion = "1"

// Event is an immutable envelope appended to the per-type event log.
// Never mutated after publish.
type Event struct {
	// ID uniquely identifies the event (UUID)
	ID string `json:"id"`

	// Type is the event kind
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted
	Timestamp time.Time `json:"timestamp"`

	// SchemaVersion versions the payload shape
	SchemaVersion string `json:"schema_version"`

	// Payload is the event body
	Payload map[string]any `json:"payload"`

	// Metadata carries optional out-of-band context
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewEvent creates an event envelope of the given type.
func NewEvent(eventType EventType, payload map[string]any, metadata map[string]string) *Event {
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: EventSchemaVersion,
		Payload:       payload,
		Metadata:      metadata,
	}
}
