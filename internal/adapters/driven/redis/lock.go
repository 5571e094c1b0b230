package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven"
	"github.com/redis/go-redis/v9"
)

// Verify interface compliance
var _ driven.DistributedLock = (*Lock)(nil)

const lockPrefix = "banksync:lock:"

const (
	defaultAcquireRetries = 3
	defaultRetryDelay     = 150 * time.Millisecond
)

// Lock implements DistributedLock using Redis SETNX with TTL.
// Each acquisition gets its own random token, so a sync that outlives its
// lease cannot release a newer holder's lock.
type Lock struct {
	client     *redis.Client
	retries    int
	retryDelay time.Duration
}

// NewLock creates a new Redis-backed distributed lock.
func NewLock(client *redis.Client) *Lock {
	return &Lock{
		client:     client,
		retries:    defaultAcquireRetries,
		retryDelay: defaultRetryDelay,
	}
}

// generateToken creates a unique owner token for one acquisition.
func generateToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Acquire attempts SETNX with TTL, retrying a fixed number of times with a
// fixed delay on contention. Store errors fail closed: the lock is treated
// as not acquired.
func (l *Lock) Acquire(ctx context.Context, accountID string, ttl time.Duration) (string, bool, error) {
	key := lockPrefix + accountID
	token := generateToken()

	for attempt := 0; attempt <= l.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", false, ctx.Err()
			case <-time.After(l.retryDelay):
			}
		}

		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return "", false, fmt.Errorf("acquire lock %s: %w", accountID, errors.Join(domain.ErrStoreUnavailable, err))
		}
		if ok {
			return token, true, nil
		}
	}

	return "", false, nil
}

// releaseScript atomically deletes the lock only when the caller's token
// still owns it.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Release compare-and-deletes the lock. An owner mismatch is reported as
// released=false, not an error: it signals an already-expired lease.
func (l *Lock) Release(ctx context.Context, accountID, token string) (bool, error) {
	key := lockPrefix + accountID
	res, err := releaseScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("release lock %s: %w", accountID, err)
	}
	n, _ := res.(int64)
	return n == 1, nil
}

// extendScript atomically renews the TTL only when the caller's token still
// owns the lock.
var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Extend compare-and-renews the lease, used by long-running syncs.
func (l *Lock) Extend(ctx context.Context, accountID, token string, ttl time.Duration) error {
	key := lockPrefix + accountID
	res, err := extendScript.Run(ctx, l.client, []string{key}, token, ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", accountID, err)
	}
	if res.(int64) == 0 {
		return domain.ErrLockNotHeld
	}
	return nil
}

// IsLocked reports whether any holder currently owns the lock.
func (l *Lock) IsLocked(ctx context.Context, accountID string) (bool, error) {
	n, err := l.client.Exists(ctx, lockPrefix+accountID).Result()
	if err != nil {
		return false, fmt.Errorf("check lock %s: %w", accountID, err)
	}
	return n == 1, nil
}

// ForceRelease unconditionally deletes the lock. Operational recovery only.
func (l *Lock) ForceRelease(ctx context.Context, accountID string) error {
	if err := l.client.Del(ctx, lockPrefix+accountID).Err(); err != nil {
		return fmt.Errorf("force release lock %s: %w", accountID, err)
	}
	return nil
}

// Ping checks if the Redis backend is healthy.
func (l *Lock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
