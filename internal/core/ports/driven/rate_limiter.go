package driven

import (
	"context"
	"time"
)

// Decision is the outcome of a rate-limit pre-check.
type Decision struct {
	// Allowed reports whether the call may proceed now
	Allowed bool

	// RetryAfter is the earliest next attempt time when denied
	RetryAfter time.Time

	// Reason names the gate that denied (suspension, daily, global)
	Reason string
}

// RateLimiter enforces the provider call quotas: per-account suspension set
// from provider 429s, a per-account daily cap, and a global per-minute cap.
// All checks are advisory; the provider's own 429 remains authoritative and
// must be fed back through Suspend.
type RateLimiter interface {
	// Check evaluates the three gates in order (suspension, daily, global)
	// and returns the first denial, or an allowed decision.
	Check(ctx context.Context, accountID string) (Decision, error)

	// RecordCall counts one successful provider call against the account's
	// daily counter and the global minute bucket. Atomic increments only.
	RecordCall(ctx context.Context, accountID string) error

	// Suspend blocks the account until the given time, typically taken from
	// a provider 429 retry-after header.
	Suspend(ctx context.Context, accountID string, until time.Time) error

	// SuspendedUntil returns the account's suspension expiry, or the zero
	// time if not suspended.
	SuspendedUntil(ctx context.Context, accountID string) (time.Time, error)
}
