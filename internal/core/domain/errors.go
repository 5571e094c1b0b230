package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSyncInProgress indicates a sync is already running for the account
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrLockNotHeld indicates a lock operation from a non-owner
	ErrLockNotHeld = errors.New("lock not held by this owner")

	// ErrInvalidSignature indicates a webhook signature mismatch
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrStoreUnavailable indicates the shared state store is unreachable
	ErrStoreUnavailable = errors.New("state store unavailable")

	// ErrTokenExpired indicates the provider auth token has expired
	ErrTokenExpired = errors.New("token expired")
)

// RateLimitError is returned when a call is denied by a local quota gate or
// by the provider itself. RetryAfter is the earliest time the call may be
// attempted again; it is always set.
type RateLimitError struct {
	Reason     string
	RetryAfter time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (%s), retry after %s", e.Reason, e.RetryAfter.Format(time.RFC3339))
}

// NewRateLimitError creates a RateLimitError with the given reason.
func NewRateLimitError(reason string, retryAfter time.Time) *RateLimitError {
	return &RateLimitError{Reason: reason, RetryAfter: retryAfter}
}

// IsRateLimited reports whether err is (or wraps) a RateLimitError and
// returns it if so.
func IsRateLimited(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// TransientError marks a failure as retryable (network errors, provider 5xx).
// The scheduler and sync pipeline retry these with exponential backoff.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as retryable.
func NewTransientError(err error) *TransientError {
	return &TransientError{Err: err}
}

// IsTransient reports whether err is retryable. Rate-limit errors are not
// transient; they carry their own scheduling semantics.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
