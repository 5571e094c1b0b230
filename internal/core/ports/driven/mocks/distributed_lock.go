package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
)

// MockDistributedLock is a mock implementation of DistributedLock for testing.
// It simulates lock behavior with in-memory state and supports custom behavior injection.
type MockDistributedLock struct {
	mu      sync.Mutex
	locks   map[string]lockEntry
	counter int

	// Custom behavior hooks (optional)
	AcquireFn func(accountID string, ttl time.Duration) (string, bool, error)
	ReleaseFn func(accountID, token string) (bool, error)
	ExtendFn  func(accountID, token string, ttl time.Duration) error

	// Call counters for assertions
	AcquireCalls int
	ExtendCalls  int
	ReleaseCalls int
}

type lockEntry struct {
	token  string
	expiry time.Time
}

// NewMockDistributedLock creates a new mock distributed lock.
func NewMockDistributedLock() *MockDistributedLock {
	return &MockDistributedLock{
		locks: make(map[string]lockEntry),
	}
}

// Acquire attempts to take the lock for the account.
func (m *MockDistributedLock) Acquire(ctx context.Context, accountID string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	m.AcquireCalls++
	m.mu.Unlock()

	if m.AcquireFn != nil {
		return m.AcquireFn(accountID, ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, exists := m.locks[accountID]; exists && time.Now().Before(entry.expiry) {
		return "", false, nil
	}

	m.counter++
	token := fmt.Sprintf("mock-token-%d", m.counter)
	m.locks[accountID] = lockEntry{token: token, expiry: time.Now().Add(ttl)}
	return token, true, nil
}

// Release deletes the lock if the token still owns it.
func (m *MockDistributedLock) Release(ctx context.Context, accountID, token string) (bool, error) {
	m.mu.Lock()
	m.ReleaseCalls++
	m.mu.Unlock()

	if m.ReleaseFn != nil {
		return m.ReleaseFn(accountID, token)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[accountID]
	if !exists || entry.token != token {
		return false, nil
	}
	delete(m.locks, accountID)
	return true, nil
}

// Extend renews the TTL if the token still owns the lock.
func (m *MockDistributedLock) Extend(ctx context.Context, accountID, token string, ttl time.Duration) error {
	m.mu.Lock()
	m.ExtendCalls++
	m.mu.Unlock()

	if m.ExtendFn != nil {
		return m.ExtendFn(accountID, token, ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[accountID]
	if !exists || entry.token != token {
		return domain.ErrLockNotHeld
	}
	m.locks[accountID] = lockEntry{token: token, expiry: time.Now().Add(ttl)}
	return nil
}

// IsLocked reports whether any holder owns the lock.
func (m *MockDistributedLock) IsLocked(ctx context.Context, accountID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[accountID]
	return exists && time.Now().Before(entry.expiry), nil
}

// ForceRelease unconditionally deletes the lock.
func (m *MockDistributedLock) ForceRelease(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.locks, accountID)
	return nil
}

// SetLockHeld forces a lock to be held by an external owner (for test setup).
func (m *MockDistributedLock) SetLockHeld(accountID string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.locks[accountID] = lockEntry{token: "external-owner", expiry: time.Now().Add(ttl)}
}

// IsHeld checks if a lock is currently held (for test assertions).
func (m *MockDistributedLock) IsHeld(accountID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[accountID]
	return exists && time.Now().Before(entry.expiry)
}
