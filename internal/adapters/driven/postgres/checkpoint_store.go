package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.CheckpointArchive = (*CheckpointStore)(nil)

// CheckpointStore implements driven.CheckpointArchive using PostgreSQL.
// It is the secondary, long-retention sink behind the Redis checkpoint copy.
type CheckpointStore struct {
	db *DB
}

// NewCheckpointStore creates a new CheckpointStore
func NewCheckpointStore(db *DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// Save upserts the checkpoint copy for the cursor's account.
func (s *CheckpointStore) Save(ctx context.Context, cursor *domain.Cursor) error {
	query := `
		INSERT INTO checkpoints (account_id, since_date, cursor_token, last_transaction_ref, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id) DO UPDATE SET
			since_date = EXCLUDED.since_date,
			cursor_token = EXCLUDED.cursor_token,
			last_transaction_ref = EXCLUDED.last_transaction_ref,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		cursor.AccountID,
		cursor.SinceDate,
		cursor.Token,
		cursor.LastTransactionRef,
		cursor.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("archive checkpoint %s: %w", cursor.AccountID, err)
	}
	return nil
}

// Load returns the archived checkpoint, or domain.ErrNotFound.
func (s *CheckpointStore) Load(ctx context.Context, accountID string) (*domain.Cursor, error) {
	query := `
		SELECT account_id, since_date, cursor_token, last_transaction_ref, updated_at
		FROM checkpoints
		WHERE account_id = $1
	`

	var cursor domain.Cursor
	err := s.db.QueryRowContext(ctx, query, accountID).Scan(
		&cursor.AccountID,
		&cursor.SinceDate,
		&cursor.Token,
		&cursor.LastTransactionRef,
		&cursor.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", accountID, err)
	}
	return &cursor, nil
}

// Prune removes archived checkpoints older than the retention window.
func (s *CheckpointStore) Prune(ctx context.Context) (int, error) {
	query := `DELETE FROM checkpoints WHERE updated_at < NOW() - $1::interval`

	res, err := s.db.ExecContext(ctx, query, fmt.Sprintf("%d hours", int(domain.CheckpointRetention.Hours())))
	if err != nil {
		return 0, fmt.Errorf("prune checkpoints: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
