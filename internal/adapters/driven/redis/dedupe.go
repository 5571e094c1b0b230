package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven"
	"github.com/redis/go-redis/v9"
)

// Verify interface compliance
var _ driven.DedupeStore = (*DedupeStore)(nil)

const dedupePrefix = "banksync:dedupe:"

// DedupeRetention bounds dedup storage while covering the provider's
// realistic re-delivery window.
const DedupeRetention = 90 * 24 * time.Hour

// DedupeStore implements exactly-once admission of external transaction
// references via SETNX markers with TTL.
type DedupeStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewDedupeStore creates a Redis-backed dedupe store.
func NewDedupeStore(client *redis.Client) *DedupeStore {
	return &DedupeStore{client: client, retention: DedupeRetention}
}

// IsDuplicate atomically claims the ref and reports true iff it already
// existed. Store errors fail open: a duplicate emission downstream beats
// silently dropping a real transaction.
func (s *DedupeStore) IsDuplicate(ctx context.Context, externalRef string) (bool, error) {
	won, err := s.client.SetNX(ctx, dedupePrefix+externalRef, "1", s.retention).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe claim %s: %w", externalRef, err)
	}
	return !won, nil
}

// BatchCheck reports existence per ref without claiming. Pipelined EXISTS.
func (s *DedupeStore) BatchCheck(ctx context.Context, externalRefs []string) (map[string]bool, error) {
	result := make(map[string]bool, len(externalRefs))
	if len(externalRefs) == 0 {
		return result, nil
	}

	pipe := s.client.Pipeline()
	cmds := make(map[string]*redis.IntCmd, len(externalRefs))
	for _, ref := range externalRefs {
		cmds[ref] = pipe.Exists(ctx, dedupePrefix+ref)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("dedupe batch check: %w", err)
	}

	for ref, cmd := range cmds {
		result[ref] = cmd.Val() == 1
	}
	return result, nil
}

// Sweep removes markers that lost their TTL (for example after a restore
// from an RDB dump taken with persistence quirks). Normal expiry is handled
// by Redis itself.
func (s *DedupeStore) Sweep(ctx context.Context) (int, error) {
	var removed int
	var cursor uint64

	for {
		keys, next, err := s.client.Scan(ctx, cursor, dedupePrefix+"*", 200).Result()
		if err != nil {
			return removed, fmt.Errorf("dedupe sweep: %w", err)
		}

		for _, key := range keys {
			ttl, err := s.client.TTL(ctx, key).Result()
			if err != nil {
				continue
			}
			// -1 means the key has no expiry set
			if ttl == -1 {
				if s.client.Del(ctx, key).Err() == nil {
					removed++
				}
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return removed, nil
}
