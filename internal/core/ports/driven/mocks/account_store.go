package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
)

// MockAccountStore is an in-memory AccountStore for testing.
type MockAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*domain.LinkedAccount

	// Custom behavior hooks (optional)
	ListActiveFn func() ([]*domain.LinkedAccount, error)
}

// NewMockAccountStore creates a new mock account store.
func NewMockAccountStore() *MockAccountStore {
	return &MockAccountStore{
		accounts: make(map[string]*domain.LinkedAccount),
	}
}

// Save creates or updates a linked account.
func (m *MockAccountStore) Save(ctx context.Context, account *domain.LinkedAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *account
	m.accounts[account.ID] = &copied
	return nil
}

// Get returns the account, or domain.ErrNotFound.
func (m *MockAccountStore) Get(ctx context.Context, accountID string) (*domain.LinkedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[accountID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *account
	return &copied, nil
}

// ListActive returns all active accounts.
func (m *MockAccountStore) ListActive(ctx context.Context) ([]*domain.LinkedAccount, error) {
	if m.ListActiveFn != nil {
		return m.ListActiveFn()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var active []*domain.LinkedAccount
	for _, account := range m.accounts {
		if account.Active {
			copied := *account
			active = append(active, &copied)
		}
	}
	return active, nil
}

// Deactivate marks the account inactive.
func (m *MockAccountStore) Deactivate(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	account.Active = false
	return nil
}

// MockBalanceCache is an in-memory BalanceCache for testing.
type MockBalanceCache struct {
	mu       sync.Mutex
	balances map[string]*domain.Balance
}

// NewMockBalanceCache creates a new mock balance cache.
func NewMockBalanceCache() *MockBalanceCache {
	return &MockBalanceCache{
		balances: make(map[string]*domain.Balance),
	}
}

// Put stores the balance. The mock ignores the TTL.
func (m *MockBalanceCache) Put(ctx context.Context, balance *domain.Balance, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *balance
	m.balances[balance.AccountID] = &copied
	return nil
}

// Get returns the cached balance, or domain.ErrNotFound.
func (m *MockBalanceCache) Get(ctx context.Context, accountID string) (*domain.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	balance, ok := m.balances[accountID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *balance
	return &copied, nil
}
