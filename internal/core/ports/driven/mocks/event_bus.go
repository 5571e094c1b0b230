package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven"
)

// MockEventBus is an in-memory EventBus for testing. Emitted events are
// recorded per type for assertions.
type MockEventBus struct {
	mu      sync.Mutex
	events  map[domain.EventType][]*domain.Event
	counter int

	// Custom behavior hooks (optional)
	EmitFn func(eventType domain.EventType, payload map[string]any, metadata map[string]string) (string, error)
}

// NewMockEventBus creates a new mock event bus.
func NewMockEventBus() *MockEventBus {
	return &MockEventBus{
		events: make(map[domain.EventType][]*domain.Event),
	}
}

// Emit records the event.
func (m *MockEventBus) Emit(ctx context.Context, eventType domain.EventType, payload map[string]any, metadata map[string]string) (string, error) {
	if m.EmitFn != nil {
		return m.EmitFn(eventType, payload, metadata)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.counter++
	event := domain.NewEvent(eventType, payload, metadata)
	m.events[eventType] = append(m.events[eventType], event)
	return fmt.Sprintf("%d-0", m.counter), nil
}

// Consume replays recorded events through the handler.
func (m *MockEventBus) Consume(ctx context.Context, eventType domain.EventType, group, consumer string, handler driven.EventHandler, opts driven.ConsumeOptions) error {
	m.mu.Lock()
	events := append([]*domain.Event(nil), m.events[eventType]...)
	m.mu.Unlock()

	for _, event := range events {
		if err := handler(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// GetEvents returns the recorded events for the type.
func (m *MockEventBus) GetEvents(ctx context.Context, eventType domain.EventType, opts driven.ReadOptions) ([]*domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := append([]*domain.Event(nil), m.events[eventType]...)
	if opts.Count > 0 && len(events) > opts.Count {
		events = events[:opts.Count]
	}
	return events, nil
}

// Subscribe is a no-op for the mock.
func (m *MockEventBus) Subscribe(eventType domain.EventType, observer driven.Observer) {}

// Emitted returns the recorded events of a type (for test assertions).
func (m *MockEventBus) Emitted(eventType domain.EventType) []*domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Event(nil), m.events[eventType]...)
}
