package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven"
	"github.com/redis/go-redis/v9"
)

// Verify interface compliance
var (
	_ driven.OperationStore = (*OperationStore)(nil)
	_ driven.ReplayGuard    = (*ReplayGuard)(nil)
)

const (
	opPrefix     = "banksync:op:"
	replayPrefix = "banksync:webhook-replay:"
)

// ReplayWindow is how long webhook event IDs are remembered.
const ReplayWindow = 72 * time.Hour

// OperationStore persists sync operations with the fixed retention window.
type OperationStore struct {
	client *redis.Client
}

// NewOperationStore creates a Redis-backed operation store.
func NewOperationStore(client *redis.Client) *OperationStore {
	return &OperationStore{client: client}
}

// Save upserts the operation and refreshes its retention TTL.
func (s *OperationStore) Save(ctx context.Context, op *domain.Operation) error {
	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("marshal operation %s: %w", op.ID, err)
	}
	if err := s.client.Set(ctx, opPrefix+op.ID, data, domain.OperationRetention).Err(); err != nil {
		return fmt.Errorf("save operation %s: %w", op.ID, err)
	}
	return nil
}

// Get returns the operation, or domain.ErrNotFound.
func (s *OperationStore) Get(ctx context.Context, operationID string) (*domain.Operation, error) {
	data, err := s.client.Get(ctx, opPrefix+operationID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get operation %s: %w", operationID, err)
	}

	var op domain.Operation
	if err := json.Unmarshal(data, &op); err != nil {
		return nil, fmt.Errorf("unmarshal operation %s: %w", operationID, err)
	}
	return &op, nil
}

// ReplayGuard remembers webhook event IDs inside the replay window via SETNX
// markers.
type ReplayGuard struct {
	client *redis.Client
	window time.Duration
}

// NewReplayGuard creates a Redis-backed replay guard.
func NewReplayGuard(client *redis.Client) *ReplayGuard {
	return &ReplayGuard{client: client, window: ReplayWindow}
}

// Seen atomically claims the event ID and reports true iff the delivery is a
// replay.
func (g *ReplayGuard) Seen(ctx context.Context, eventID string) (bool, error) {
	won, err := g.client.SetNX(ctx, replayPrefix+eventID, "1", g.window).Result()
	if err != nil {
		return false, fmt.Errorf("replay claim %s: %w", eventID, err)
	}
	return !won, nil
}
