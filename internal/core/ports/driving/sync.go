package driving

import (
	"context"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
)

// SyncRequest carries optional explicit bounds for a sync. Empty fields fall
// back to the stored cursor and the configured lookback window.
type SyncRequest struct {
	FromDate string
	ToDate   string
}

// SyncService runs the fetch → normalise → dedup → emit → checkpoint
// pipeline for one account.
type SyncService interface {
	// RequestSync creates a pending operation and runs the pipeline. It
	// returns domain.ErrSyncInProgress immediately when the account lock is
	// already held.
	RequestSync(ctx context.Context, accountID string, req SyncRequest) (*domain.Operation, error)

	// StartSync runs the pipeline against an existing operation. Used by
	// the task executor, which creates operations itself.
	StartSync(ctx context.Context, accountID, operationID string, req SyncRequest) error

	// GetOperation returns an operation snapshot for polling.
	GetOperation(ctx context.Context, operationID string) (*domain.Operation, error)
}
