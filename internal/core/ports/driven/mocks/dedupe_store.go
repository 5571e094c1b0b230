package mocks

import (
	"context"
	"sync"
)

// MockDedupeStore is an in-memory DedupeStore for testing.
type MockDedupeStore struct {
	mu   sync.Mutex
	seen map[string]bool

	// Custom behavior hooks (optional)
	IsDuplicateFn func(externalRef string) (bool, error)
}

// NewMockDedupeStore creates a new mock dedupe store.
func NewMockDedupeStore() *MockDedupeStore {
	return &MockDedupeStore{
		seen: make(map[string]bool),
	}
}

// IsDuplicate claims the ref and reports whether it was already present.
func (m *MockDedupeStore) IsDuplicate(ctx context.Context, externalRef string) (bool, error) {
	if m.IsDuplicateFn != nil {
		return m.IsDuplicateFn(externalRef)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.seen[externalRef] {
		return true, nil
	}
	m.seen[externalRef] = true
	return false, nil
}

// BatchCheck reports existence without claiming.
func (m *MockDedupeStore) BatchCheck(ctx context.Context, externalRefs []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[string]bool, len(externalRefs))
	for _, ref := range externalRefs {
		result[ref] = m.seen[ref]
	}
	return result, nil
}

// Sweep is a no-op for the in-memory mock.
func (m *MockDedupeStore) Sweep(ctx context.Context) (int, error) {
	return 0, nil
}

// Claimed reports whether a ref has been claimed (for test assertions).
func (m *MockDedupeStore) Claimed(externalRef string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[externalRef]
}

// Preclaim marks refs as already emitted (for test setup).
func (m *MockDedupeStore) Preclaim(externalRefs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ref := range externalRefs {
		m.seen[ref] = true
	}
}
