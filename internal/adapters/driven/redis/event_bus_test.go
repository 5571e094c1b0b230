package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven"
)

type recordingObserver struct {
	events []*domain.Event
}

func (o *recordingObserver) Notify(event *domain.Event) {
	o.events = append(o.events, event)
}

type panickyObserver struct{}

func (panickyObserver) Notify(*domain.Event) { panic("observer blew up") }

func TestEventBus_EmitAndGetEvents(t *testing.T) {
	_, client := setupTestRedis(t)
	bus := NewEventBus(client, 0, nil)
	ctx := context.Background()

	id1, err := bus.Emit(ctx, domain.EventSyncCompleted, map[string]any{"account_id": "acc-1"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id1 == "" {
		t.Error("expected assigned event ID")
	}
	_, err = bus.Emit(ctx, domain.EventSyncCompleted, map[string]any{"account_id": "acc-2"}, map[string]string{"trigger": "webhook"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events, err := bus.GetEvents(ctx, domain.EventSyncCompleted, driven.ReadOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ID != id1 {
		t.Errorf("expected log order preserved, first event %s", events[0].ID)
	}
	if events[0].SchemaVersion != domain.EventSchemaVersion {
		t.Errorf("expected schema version stamped, got %q", events[0].SchemaVersion)
	}
	if events[1].Metadata["trigger"] != "webhook" {
		t.Errorf("expected metadata retained, got %v", events[1].Metadata)
	}

	// Streams are per-type; another type's log is empty.
	events, err = bus.GetEvents(ctx, domain.EventSyncFailed, driven.ReadOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected empty log for other type, got %d", len(events))
	}
}

func TestEventBus_GetEvents_CountAndFromID(t *testing.T) {
	_, client := setupTestRedis(t)
	bus := NewEventBus(client, 0, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := bus.Emit(ctx, domain.EventTransactionCreated, map[string]any{"seq": i}, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	events, err := bus.GetEvents(ctx, domain.EventTransactionCreated, driven.ReadOptions{Count: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
}

func TestEventBus_ObserverFanOut(t *testing.T) {
	_, client := setupTestRedis(t)
	bus := NewEventBus(client, 0, nil)
	ctx := context.Background()

	obs := &recordingObserver{}
	bus.Subscribe(domain.EventAccountUpdated, obs)
	// A panicking observer must not take down emission or its peers.
	bus.Subscribe(domain.EventAccountUpdated, panickyObserver{})
	bus.Subscribe(domain.EventAccountUpdated, obs)

	if _, err := bus.Emit(ctx, domain.EventAccountUpdated, map[string]any{"account_id": "acc-1"}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(obs.events) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(obs.events))
	}
	if obs.events[0].Payload["account_id"] != "acc-1" {
		t.Errorf("unexpected notified payload %v", obs.events[0].Payload)
	}

	// Observers are scoped to their type.
	if _, err := bus.Emit(ctx, domain.EventSyncFailed, map[string]any{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(obs.events) != 2 {
		t.Errorf("expected no cross-type notification, got %d", len(obs.events))
	}
}

func TestEventBus_ConsumeAcksOnSuccess(t *testing.T) {
	_, client := setupTestRedis(t)
	bus := NewEventBus(client, 0, nil)
	ctx := context.Background()

	if _, err := bus.Emit(ctx, domain.EventSyncCompleted, map[string]any{"n": 1}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := bus.Emit(ctx, domain.EventSyncCompleted, map[string]any{"n": 2}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var handled []*domain.Event
	handler := func(ctx context.Context, event *domain.Event) error {
		handled = append(handled, event)
		return nil
	}

	if err := bus.Consume(ctx, domain.EventSyncCompleted, "pipeline", "worker-1", handler, driven.ConsumeOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(handled) != 2 {
		t.Fatalf("expected 2 events handled, got %d", len(handled))
	}

	// Everything acknowledged: a second pass sees nothing new.
	handled = nil
	if err := bus.Consume(ctx, domain.EventSyncCompleted, "pipeline", "worker-1", handler, driven.ConsumeOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(handled) != 0 {
		t.Errorf("expected no redelivery after ack, got %d", len(handled))
	}
}

func TestEventBus_ConsumeGroupIsIdempotent(t *testing.T) {
	_, client := setupTestRedis(t)
	bus := NewEventBus(client, 0, nil)
	ctx := context.Background()

	handler := func(ctx context.Context, event *domain.Event) error { return nil }

	// Two consume calls against the same group; the second must tolerate the
	// existing group.
	for i := 0; i < 2; i++ {
		if err := bus.Consume(ctx, domain.EventSyncFailed, "alerts", fmt.Sprintf("c-%d", i), handler, driven.ConsumeOptions{}); err != nil {
			t.Fatalf("consume %d: unexpected error: %v", i, err)
		}
	}
}

func TestEventBus_HandlerFailureLeavesPending(t *testing.T) {
	_, client := setupTestRedis(t)
	bus := NewEventBus(client, 0, nil)
	ctx := context.Background()

	if _, err := bus.Emit(ctx, domain.EventSyncCompleted, map[string]any{"n": 1}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	failing := func(ctx context.Context, event *domain.Event) error {
		return errors.New("handler refused")
	}
	if err := bus.Consume(ctx, domain.EventSyncCompleted, "pipeline", "worker-1", failing, driven.ConsumeOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pending, err := client.XPending(ctx, streamKey(domain.EventSyncCompleted), "pipeline").Result()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pending.Count != 1 {
		t.Errorf("expected 1 pending entry, got %d", pending.Count)
	}
}

func TestEventBus_PendingRedeliveredToConsumer(t *testing.T) {
	_, client := setupTestRedis(t)
	bus := NewEventBus(client, 0, nil)
	ctx := context.Background()

	if _, err := bus.Emit(ctx, domain.EventSyncCompleted, map[string]any{"n": 1}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	failing := func(ctx context.Context, event *domain.Event) error {
		return errors.New("handler refused")
	}
	if err := bus.Consume(ctx, domain.EventSyncCompleted, "pipeline", "worker-1", failing, driven.ConsumeOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The next pass by the same consumer gets the unacknowledged entry back
	// before any new ones.
	var handled []*domain.Event
	succeeding := func(ctx context.Context, event *domain.Event) error {
		handled = append(handled, event)
		return nil
	}
	if err := bus.Consume(ctx, domain.EventSyncCompleted, "pipeline", "worker-1", succeeding, driven.ConsumeOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(handled) != 1 {
		t.Fatalf("expected 1 redelivered event, got %d", len(handled))
	}
	if handled[0].Payload["n"] != float64(1) {
		t.Errorf("unexpected redelivered payload %v", handled[0].Payload)
	}

	pending, err := client.XPending(ctx, streamKey(domain.EventSyncCompleted), "pipeline").Result()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pending.Count != 0 {
		t.Errorf("expected pending cleared after successful retry, got %d", pending.Count)
	}
}

func TestEventBus_AutoAckDropsOnFailure(t *testing.T) {
	_, client := setupTestRedis(t)
	bus := NewEventBus(client, 0, nil)
	ctx := context.Background()

	if _, err := bus.Emit(ctx, domain.EventSyncCompleted, map[string]any{"n": 1}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	failing := func(ctx context.Context, event *domain.Event) error {
		return errors.New("handler refused")
	}
	if err := bus.Consume(ctx, domain.EventSyncCompleted, "pipeline", "worker-1", failing, driven.ConsumeOptions{AutoAck: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pending, err := client.XPending(ctx, streamKey(domain.EventSyncCompleted), "pipeline").Result()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pending.Count != 0 {
		t.Errorf("expected no pending entries under auto-ack, got %d", pending.Count)
	}
}
