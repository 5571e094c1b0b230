package driven

import (
	"context"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
)

// OperationStore persists sync operations with a fixed retention window.
type OperationStore interface {
	// Save creates or updates an operation, refreshing its retention TTL.
	Save(ctx context.Context, op *domain.Operation) error

	// Get returns the operation, or domain.ErrNotFound.
	Get(ctx context.Context, operationID string) (*domain.Operation, error)
}

// ReplayGuard admits each webhook event ID at most once inside the replay
// window.
type ReplayGuard interface {
	// Seen atomically claims eventID and reports true iff it was already
	// claimed inside the window, i.e. the delivery is a replay.
	Seen(ctx context.Context, eventID string) (bool, error)
}
