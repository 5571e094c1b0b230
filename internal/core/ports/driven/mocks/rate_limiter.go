package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven"
)

// MockRateLimiter is a RateLimiter for testing. It allows everything unless a
// hook or suspension says otherwise.
type MockRateLimiter struct {
	mu          sync.Mutex
	suspensions map[string]time.Time
	callCounts  map[string]int

	// Custom behavior hooks (optional)
	CheckFn func(accountID string) (driven.Decision, error)
}

// NewMockRateLimiter creates a new mock rate limiter.
func NewMockRateLimiter() *MockRateLimiter {
	return &MockRateLimiter{
		suspensions: make(map[string]time.Time),
		callCounts:  make(map[string]int),
	}
}

// Check evaluates the suspension gate, or delegates to CheckFn.
func (m *MockRateLimiter) Check(ctx context.Context, accountID string) (driven.Decision, error) {
	if m.CheckFn != nil {
		return m.CheckFn(accountID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if until, ok := m.suspensions[accountID]; ok && time.Now().Before(until) {
		return driven.Decision{Allowed: false, RetryAfter: until, Reason: "suspended"}, nil
	}
	return driven.Decision{Allowed: true}, nil
}

// RecordCall counts one provider call.
func (m *MockRateLimiter) RecordCall(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCounts[accountID]++
	return nil
}

// Suspend blocks the account until the given time.
func (m *MockRateLimiter) Suspend(ctx context.Context, accountID string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspensions[accountID] = until
	return nil
}

// SuspendedUntil returns the suspension expiry, or zero time.
func (m *MockRateLimiter) SuspendedUntil(ctx context.Context, accountID string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suspensions[accountID], nil
}

// Calls returns how many provider calls were recorded for the account.
func (m *MockRateLimiter) Calls(accountID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCounts[accountID]
}
