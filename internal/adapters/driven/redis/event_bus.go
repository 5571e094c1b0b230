package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven"
	"github.com/redis/go-redis/v9"
)

// Verify interface compliance
var _ driven.EventBus = (*EventBus)(nil)

const (
	eventStreamPrefix = "banksync:events:"

	// DefaultMaxStreamLen bounds each per-type log; oldest entries trim off.
	DefaultMaxStreamLen = 10000
)

// EventBus is an append-only, length-bounded event log on Redis Streams with
// consumer-group delivery, plus a best-effort in-process observer fan-out.
// The durable log is the source of truth for replay; observer notification
// is at-most-once.
type EventBus struct {
	client *redis.Client
	maxLen int64
	logger *slog.Logger

	mu        sync.RWMutex
	observers map[domain.EventType][]driven.Observer
}

// NewEventBus creates a Redis Streams event bus. maxLen <= 0 uses the
// default bound.
func NewEventBus(client *redis.Client, maxLen int64, logger *slog.Logger) *EventBus {
	if maxLen <= 0 {
		maxLen = DefaultMaxStreamLen
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		client:    client,
		maxLen:    maxLen,
		logger:    logger,
		observers: make(map[domain.EventType][]driven.Observer),
	}
}

func streamKey(eventType domain.EventType) string {
	return eventStreamPrefix + string(eventType)
}

// Emit appends the event to the type's stream (trimmed to the configured
// bound) and notifies live observers. Returns the event's UUID.
func (b *EventBus) Emit(ctx context.Context, eventType domain.EventType, payload map[string]any, metadata map[string]string) (string, error) {
	event := domain.NewEvent(eventType, payload, metadata)

	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	err = b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(eventType),
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]interface{}{"event": string(data)},
	}).Err()
	if err != nil {
		return "", fmt.Errorf("emit %s: %w", eventType, err)
	}

	b.notify(event)

	return event.ID, nil
}

// notify fans the event out to registered observers. Best effort: a slow or
// panicking observer must not block emission.
func (b *EventBus) notify(event *domain.Event) {
	b.mu.RLock()
	observers := b.observers[event.Type]
	b.mu.RUnlock()

	for _, obs := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Warn("observer panicked", "event_type", event.Type, "panic", r)
				}
			}()
			obs.Notify(event)
		}()
	}
}

// Subscribe registers a live observer for the event type.
func (b *EventBus) Subscribe(eventType domain.EventType, observer driven.Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers[eventType] = append(b.observers[eventType], observer)
}

// Consume reads entries for the group, invokes the handler per event, and
// acknowledges on success. Handler failure leaves the entry pending unless
// AutoAck is set; the consumer's own pending entries are redelivered ahead
// of new ones on the next pass.
func (b *EventBus) Consume(ctx context.Context, eventType domain.EventType, group, consumer string, handler driven.EventHandler, opts driven.ConsumeOptions) error {
	stream := streamKey(eventType)

	if err := b.ensureGroup(ctx, stream, group); err != nil {
		return err
	}

	count := opts.Count
	if count <= 0 {
		count = 10
	}

	// go-redis treats Block >= 0 as an explicit BLOCK argument, and BLOCK 0
	// waits forever. A non-positive BlockMillis must read without blocking.
	block := time.Duration(-1)
	if opts.BlockMillis > 0 {
		block = time.Duration(opts.BlockMillis) * time.Millisecond
	}

	// Entries delivered to this consumer but never acknowledged come first.
	// The pending read never blocks.
	pending, err := b.readGroup(ctx, stream, group, consumer, "0", int64(count), -1)
	if err != nil {
		return fmt.Errorf("consume pending %s: %w", eventType, err)
	}
	b.handleMessages(ctx, stream, group, pending, handler, opts)

	fresh, err := b.readGroup(ctx, stream, group, consumer, ">", int64(count), block)
	if err != nil {
		return fmt.Errorf("consume %s: %w", eventType, err)
	}
	b.handleMessages(ctx, stream, group, fresh, handler, opts)

	return nil
}

// readGroup reads up to count entries for the consumer starting at id. The
// id "0" yields the consumer's own pending entries, ">" yields new ones.
func (b *EventBus) readGroup(ctx context.Context, stream, group, consumer, id string, count int64, block time.Duration) ([]redis.XMessage, error) {
	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, id},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var msgs []redis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	return msgs, nil
}

func (b *EventBus) handleMessages(ctx context.Context, stream, group string, msgs []redis.XMessage, handler driven.EventHandler, opts driven.ConsumeOptions) {
	for _, msg := range msgs {
		event, err := decodeEvent(msg)
		if err != nil {
			// Malformed entry: acknowledge so it cannot wedge the group.
			b.logger.Warn("dropping malformed event", "stream", stream, "msg_id", msg.ID, "error", err)
			b.client.XAck(ctx, stream, group, msg.ID)
			continue
		}

		if opts.AutoAck {
			b.client.XAck(ctx, stream, group, msg.ID)
		}

		if err := handler(ctx, event); err != nil {
			b.logger.Warn("event handler failed", "stream", stream, "event_id", event.ID, "error", err)
			continue
		}

		if !opts.AutoAck {
			b.client.XAck(ctx, stream, group, msg.ID)
		}
	}
}

// ensureGroup creates the consumer group idempotently.
func (b *EventBus) ensureGroup(ctx context.Context, stream, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !isGroupExistsError(err) {
		return fmt.Errorf("create group %s on %s: %w", group, stream, err)
	}
	return nil
}

// GetEvents tails the log without group semantics.
func (b *EventBus) GetEvents(ctx context.Context, eventType domain.EventType, opts driven.ReadOptions) ([]*domain.Event, error) {
	stream := streamKey(eventType)

	from := opts.FromID
	if from == "" {
		from = "-"
	} else {
		// XRange's start bound is inclusive; advance past the given ID
		from = "(" + from
	}

	count := opts.Count
	if count <= 0 {
		count = 100
	}

	msgs, err := b.client.XRangeN(ctx, stream, from, "+", int64(count)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read events %s: %w", eventType, err)
	}

	events := make([]*domain.Event, 0, len(msgs))
	for _, msg := range msgs {
		event, err := decodeEvent(msg)
		if err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func decodeEvent(msg redis.XMessage) (*domain.Event, error) {
	raw, ok := msg.Values["event"].(string)
	if !ok {
		return nil, errors.New("missing event field")
	}
	var event domain.Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func isGroupExistsError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
