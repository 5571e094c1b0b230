package driven

import (
	"context"
	"time"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
)

// AccountStore tracks bank accounts linked through active requisitions.
// Accounts with active links drive the scheduler's re-seeding pass.
type AccountStore interface {
	// Save creates or updates a linked account.
	Save(ctx context.Context, account *domain.LinkedAccount) error

	// Get returns the account, or domain.ErrNotFound.
	Get(ctx context.Context, accountID string) (*domain.LinkedAccount, error)

	// ListActive returns all accounts whose requisition is still active.
	ListActive(ctx context.Context) ([]*domain.LinkedAccount, error)

	// Deactivate marks the account's link inactive (consent expired or
	// revoked).
	Deactivate(ctx context.Context, accountID string) error
}

// BalanceCache holds short-lived balance snapshots written on successful
// balance tasks, so reads never force a provider call.
type BalanceCache interface {
	// Put stores the balance with the given TTL.
	Put(ctx context.Context, balance *domain.Balance, ttl time.Duration) error

	// Get returns the cached balance, or domain.ErrNotFound when expired or
	// never fetched.
	Get(ctx context.Context, accountID string) (*domain.Balance, error)
}
