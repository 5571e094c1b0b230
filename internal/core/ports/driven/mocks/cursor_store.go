package mocks

import (
	"context"
	"sync"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
)

// MockCursorStore is an in-memory CursorStore for testing.
type MockCursorStore struct {
	mu      sync.Mutex
	cursors map[string]*domain.Cursor

	// Custom behavior hooks (optional)
	SetFn func(accountID string, update domain.CursorUpdate) (*domain.Cursor, error)

	SetCalls int
}

// NewMockCursorStore creates a new mock cursor store.
func NewMockCursorStore() *MockCursorStore {
	return &MockCursorStore{
		cursors: make(map[string]*domain.Cursor),
	}
}

// Get returns the cursor, or nil if none exists.
func (m *MockCursorStore) Get(ctx context.Context, accountID string) (*domain.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cursor, ok := m.cursors[accountID]
	if !ok {
		return nil, nil
	}
	copied := *cursor
	return &copied, nil
}

// Set merges the update onto the stored cursor.
func (m *MockCursorStore) Set(ctx context.Context, accountID string, update domain.CursorUpdate) (*domain.Cursor, error) {
	m.mu.Lock()
	m.SetCalls++
	m.mu.Unlock()

	if m.SetFn != nil {
		return m.SetFn(accountID, update)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cursor, ok := m.cursors[accountID]
	if !ok {
		cursor = &domain.Cursor{AccountID: accountID}
		m.cursors[accountID] = cursor
	}
	cursor.Merge(update)
	copied := *cursor
	return &copied, nil
}

// RestoreFromCheckpoint returns the stored cursor; the mock keeps no separate
// checkpoint copy.
func (m *MockCursorStore) RestoreFromCheckpoint(ctx context.Context, accountID string) (*domain.Cursor, error) {
	cursor, err := m.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if cursor == nil {
		return nil, domain.ErrNotFound
	}
	return cursor, nil
}

// Seed stores a cursor directly (for test setup).
func (m *MockCursorStore) Seed(cursor *domain.Cursor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[cursor.AccountID] = cursor
}
