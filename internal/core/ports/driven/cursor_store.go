package driven

import (
	"context"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
)

// CursorStore persists per-account incremental sync positions and mirrors
// every write into a longer-retention checkpoint copy.
type CursorStore interface {
	// Get returns the cursor for the account, or nil if none exists.
	Get(ctx context.Context, accountID string) (*domain.Cursor, error)

	// Set merges the partial update onto the stored cursor (missing fields
	// retained), stamps UpdatedAt, and mirrors the result to the checkpoint.
	Set(ctx context.Context, accountID string, update domain.CursorUpdate) (*domain.Cursor, error)

	// RestoreFromCheckpoint reads the checkpoint copy and re-applies it
	// through Set, so restoration cannot diverge from the live write path.
	RestoreFromCheckpoint(ctx context.Context, accountID string) (*domain.Cursor, error)
}

// CheckpointArchive is an optional secondary sink for checkpoint copies,
// typically a relational store with retention independent of the primary
// key-value store.
type CheckpointArchive interface {
	// Save upserts the checkpoint copy for the cursor's account.
	Save(ctx context.Context, cursor *domain.Cursor) error

	// Load returns the archived checkpoint, or domain.ErrNotFound.
	Load(ctx context.Context, accountID string) (*domain.Cursor, error)

	// Prune removes archived checkpoints older than the retention window.
	Prune(ctx context.Context) (int, error)
}
