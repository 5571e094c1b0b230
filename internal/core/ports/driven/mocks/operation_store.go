package mocks

import (
	"context"
	"sync"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
)

// MockOperationStore is an in-memory OperationStore for testing.
type MockOperationStore struct {
	mu  sync.Mutex
	ops map[string]*domain.Operation

	// Custom behavior hooks (optional)
	SaveFn func(op *domain.Operation) error
}

// NewMockOperationStore creates a new mock operation store.
func NewMockOperationStore() *MockOperationStore {
	return &MockOperationStore{
		ops: make(map[string]*domain.Operation),
	}
}

// Save creates or updates an operation.
func (m *MockOperationStore) Save(ctx context.Context, op *domain.Operation) error {
	if m.SaveFn != nil {
		return m.SaveFn(op)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *op
	m.ops[op.ID] = &copied
	return nil
}

// Get returns the operation, or domain.ErrNotFound.
func (m *MockOperationStore) Get(ctx context.Context, operationID string) (*domain.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	op, ok := m.ops[operationID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *op
	return &copied, nil
}

// MockReplayGuard is an in-memory ReplayGuard for testing.
type MockReplayGuard struct {
	mu   sync.Mutex
	seen map[string]bool

	// Custom behavior hooks (optional)
	SeenFn func(eventID string) (bool, error)
}

// NewMockReplayGuard creates a new mock replay guard.
func NewMockReplayGuard() *MockReplayGuard {
	return &MockReplayGuard{
		seen: make(map[string]bool),
	}
}

// Seen claims the event ID and reports whether it was already claimed.
func (m *MockReplayGuard) Seen(ctx context.Context, eventID string) (bool, error) {
	if m.SeenFn != nil {
		return m.SeenFn(eventID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.seen[eventID] {
		return true, nil
	}
	m.seen[eventID] = true
	return false, nil
}
