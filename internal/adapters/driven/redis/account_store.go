package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven"
	"github.com/redis/go-redis/v9"
)

// Verify interface compliance
var (
	_ driven.AccountStore = (*AccountStore)(nil)
	_ driven.BalanceCache = (*BalanceCache)(nil)
)

const (
	accountPrefix  = "banksync:account:"
	accountListKey = "banksync:accounts"
	balancePrefix  = "banksync:balance:"
)

// AccountStore keeps linked accounts in per-account keys with a set index
// for listing.
type AccountStore struct {
	client *redis.Client
}

// NewAccountStore creates a Redis-backed linked-account store.
func NewAccountStore(client *redis.Client) *AccountStore {
	return &AccountStore{client: client}
}

// Save creates or updates a linked account.
func (s *AccountStore) Save(ctx context.Context, account *domain.LinkedAccount) error {
	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("marshal account %s: %w", account.ID, err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, accountPrefix+account.ID, data, 0)
	pipe.SAdd(ctx, accountListKey, account.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save account %s: %w", account.ID, err)
	}
	return nil
}

// Get returns the account, or domain.ErrNotFound.
func (s *AccountStore) Get(ctx context.Context, accountID string) (*domain.LinkedAccount, error) {
	data, err := s.client.Get(ctx, accountPrefix+accountID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", accountID, err)
	}

	var account domain.LinkedAccount
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, fmt.Errorf("unmarshal account %s: %w", accountID, err)
	}
	return &account, nil
}

// ListActive returns all accounts whose link is still active.
func (s *AccountStore) ListActive(ctx context.Context) ([]*domain.LinkedAccount, error) {
	ids, err := s.client.SMembers(ctx, accountListKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	var accounts []*domain.LinkedAccount
	for _, id := range ids {
		account, err := s.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			s.client.SRem(ctx, accountListKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if account.Active {
			accounts = append(accounts, account)
		}
	}
	return accounts, nil
}

// Deactivate marks the account's link inactive.
func (s *AccountStore) Deactivate(ctx context.Context, accountID string) error {
	account, err := s.Get(ctx, accountID)
	if err != nil {
		return err
	}
	account.Active = false
	return s.Save(ctx, account)
}

// BalanceCache holds short-lived balance snapshots.
type BalanceCache struct {
	client *redis.Client
}

// NewBalanceCache creates a Redis-backed balance cache.
func NewBalanceCache(client *redis.Client) *BalanceCache {
	return &BalanceCache{client: client}
}

// Put stores the balance with the given TTL.
func (c *BalanceCache) Put(ctx context.Context, balance *domain.Balance, ttl time.Duration) error {
	data, err := json.Marshal(balance)
	if err != nil {
		return fmt.Errorf("marshal balance %s: %w", balance.AccountID, err)
	}
	if err := c.client.Set(ctx, balancePrefix+balance.AccountID, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache balance %s: %w", balance.AccountID, err)
	}
	return nil
}

// Get returns the cached balance, or domain.ErrNotFound.
func (c *BalanceCache) Get(ctx context.Context, accountID string) (*domain.Balance, error) {
	data, err := c.client.Get(ctx, balancePrefix+accountID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get balance %s: %w", accountID, err)
	}

	var balance domain.Balance
	if err := json.Unmarshal(data, &balance); err != nil {
		return nil, fmt.Errorf("unmarshal balance %s: %w", accountID, err)
	}
	return &balance, nil
}
