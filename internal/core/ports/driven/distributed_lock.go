package driven

import (
	"context"
	"time"
)

// DistributedLock provides per-account mutual exclusion across instances.
// It is the only mechanism preventing two concurrent sync pipelines for the
// same account.
type DistributedLock interface {
	// Acquire attempts to take the lock for accountID with the given TTL.
	// On contention it retries a small fixed number of times, then reports
	// false. The returned token identifies this acquisition and is required
	// for Release and Extend. Store errors fail closed (not acquired).
	Acquire(ctx context.Context, accountID string, ttl time.Duration) (token string, acquired bool, err error)

	// Release deletes the lock only if token still owns it (atomic
	// compare-and-delete). An owner mismatch is not an error: it means the
	// lease already expired and a newer holder may exist. Returns whether the
	// lock was actually released.
	Release(ctx context.Context, accountID, token string) (bool, error)

	// Extend renews the TTL if token still owns the lock (atomic
	// compare-and-renew). Returns domain.ErrLockNotHeld on owner mismatch.
	Extend(ctx context.Context, accountID, token string, ttl time.Duration) error

	// IsLocked reports whether any holder currently owns the lock.
	IsLocked(ctx context.Context, accountID string) (bool, error)

	// ForceRelease unconditionally deletes the lock. Operational recovery
	// only.
	ForceRelease(ctx context.Context, accountID string) error
}
