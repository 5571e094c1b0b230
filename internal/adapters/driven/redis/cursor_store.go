package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven"
	"github.com/redis/go-redis/v9"
)

// Verify interface compliance
var _ driven.CursorStore = (*CursorStore)(nil)

const (
	cursorPrefix     = "banksync:cursor:"
	checkpointPrefix = "banksync:checkpoint:"
)

// CursorStore persists cursors in Redis and mirrors every write into a
// longer-retention checkpoint key, optionally also into an external archive.
type CursorStore struct {
	client  *redis.Client
	archive driven.CheckpointArchive
	logger  *slog.Logger
}

// NewCursorStore creates a Redis-backed cursor store. archive may be nil.
func NewCursorStore(client *redis.Client, archive driven.CheckpointArchive, logger *slog.Logger) *CursorStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CursorStore{client: client, archive: archive, logger: logger}
}

// Get returns the cursor for the account, or nil if none exists.
func (s *CursorStore) Get(ctx context.Context, accountID string) (*domain.Cursor, error) {
	data, err := s.client.Get(ctx, cursorPrefix+accountID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cursor %s: %w", accountID, err)
	}

	var cursor domain.Cursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("unmarshal cursor %s: %w", accountID, err)
	}
	return &cursor, nil
}

// Set merges the partial update onto the stored cursor and mirrors the
// result to the checkpoint copy. Fields not supplied are retained; SinceDate
// never moves backwards.
func (s *CursorStore) Set(ctx context.Context, accountID string, update domain.CursorUpdate) (*domain.Cursor, error) {
	cursor, err := s.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if cursor == nil {
		cursor = &domain.Cursor{AccountID: accountID}
	}
	cursor.Merge(update)

	data, err := json.Marshal(cursor)
	if err != nil {
		return nil, fmt.Errorf("marshal cursor %s: %w", accountID, err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, cursorPrefix+accountID, data, 0)
	pipe.Set(ctx, checkpointPrefix+accountID, data, domain.CheckpointRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("save cursor %s: %w", accountID, err)
	}

	if s.archive != nil {
		if err := s.archive.Save(ctx, cursor); err != nil {
			// The archive is a secondary sink; the primary write succeeded.
			s.logger.Warn("checkpoint archive write failed", "account_id", accountID, "error", err)
		}
	}

	return cursor, nil
}

// RestoreFromCheckpoint reads the checkpoint copy and re-applies it through
// Set, so restoration cannot diverge from the live write path. Falls back to
// the external archive when the Redis checkpoint is gone.
func (s *CursorStore) RestoreFromCheckpoint(ctx context.Context, accountID string) (*domain.Cursor, error) {
	checkpoint, err := s.readCheckpoint(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if checkpoint == nil && s.archive != nil {
		checkpoint, err = s.archive.Load(ctx, accountID)
		if errors.Is(err, domain.ErrNotFound) {
			checkpoint = nil
		} else if err != nil {
			return nil, err
		}
	}
	if checkpoint == nil {
		return nil, fmt.Errorf("restore cursor %s: %w", accountID, domain.ErrNotFound)
	}

	return s.Set(ctx, accountID, domain.CursorUpdate{
		SinceDate:          domain.StringPtr(checkpoint.SinceDate),
		Token:              domain.StringPtr(checkpoint.Token),
		LastTransactionRef: domain.StringPtr(checkpoint.LastTransactionRef),
	})
}

func (s *CursorStore) readCheckpoint(ctx context.Context, accountID string) (*domain.Cursor, error) {
	data, err := s.client.Get(ctx, checkpointPrefix+accountID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s: %w", accountID, err)
	}

	var cursor domain.Cursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint %s: %w", accountID, err)
	}
	return &cursor, nil
}
