package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.AccountService = (*AccountService)(nil)

// AccountServiceConfig holds dependencies for account reads.
type AccountServiceConfig struct {
	Accounts    driven.AccountStore
	Balances    driven.BalanceCache
	RateLimiter driven.RateLimiter
	Logger      *slog.Logger
}

// AccountService serves linked-account reads and cached balances. Reads
// never trigger provider calls; the scheduler keeps the cache warm.
type AccountService struct {
	accounts    driven.AccountStore
	balances    driven.BalanceCache
	rateLimiter driven.RateLimiter
	logger      *slog.Logger
}

// NewAccountService creates an account read service.
func NewAccountService(cfg AccountServiceConfig) *AccountService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		accounts:    cfg.Accounts,
		balances:    cfg.Balances,
		rateLimiter: cfg.RateLimiter,
		logger:      logger,
	}
}

// ListAccounts returns all actively linked accounts.
func (s *AccountService) ListAccounts(ctx context.Context) ([]*domain.LinkedAccount, error) {
	return s.accounts.ListActive(ctx)
}

// GetBalance returns the cached balance. When the account is currently rate
// limited the value is annotated as stale with the concrete next-available
// time instead of surfacing an opaque error.
func (s *AccountService) GetBalance(ctx context.Context, accountID string) (*domain.CachedBalance, error) {
	if _, err := s.accounts.Get(ctx, accountID); err != nil {
		return nil, err
	}

	balance, err := s.balances.Get(ctx, accountID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("balance not yet fetched for %s: %w", accountID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	result := &domain.CachedBalance{Balance: *balance}

	decision, err := s.rateLimiter.Check(ctx, accountID)
	if err != nil {
		s.logger.Warn("rate limit check failed on balance read", "account_id", accountID, "error", err)
		return result, nil
	}
	if !decision.Allowed {
		result.Stale = true
		retryAfter := decision.RetryAfter
		result.NextAvailable = &retryAfter
	}

	return result, nil
}
