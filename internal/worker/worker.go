package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driving"
	"github.com/ledgerbridge/banksync-core/internal/core/services"
)

// Verify interface compliance
var _ services.TaskExecutor = (*Executor)(nil)

// BalanceCacheTTL keeps balance reads fresh without extra provider calls.
const BalanceCacheTTL = 15 * time.Minute

// ExecutorConfig holds dependencies for the task executor.
type ExecutorConfig struct {
	Provider    driven.BankProvider
	RateLimiter driven.RateLimiter
	Accounts    driven.AccountStore
	Balances    driven.BalanceCache
	Operations  driven.OperationStore
	Sync        driving.SyncService
	Bus         driven.EventBus
	Logger      *slog.Logger
}

// Executor runs dispatched scheduler tasks: balance fetches, incremental
// transaction syncs and account detail refreshes. Provider failures bubble
// up unclassified so the scheduler can settle them per the taxonomy.
type Executor struct {
	provider    driven.BankProvider
	rateLimiter driven.RateLimiter
	accounts    driven.AccountStore
	balances    driven.BalanceCache
	operations  driven.OperationStore
	sync        driving.SyncService
	bus         driven.EventBus
	logger      *slog.Logger
}

// NewExecutor creates a task executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		provider:    cfg.Provider,
		rateLimiter: cfg.RateLimiter,
		accounts:    cfg.Accounts,
		balances:    cfg.Balances,
		operations:  cfg.Operations,
		sync:        cfg.Sync,
		bus:         cfg.Bus,
		logger:      logger,
	}
}

// Execute runs one task to completion.
func (e *Executor) Execute(ctx context.Context, task *domain.Task) error {
	start := time.Now()
	logger := e.logger.With("task_id", task.ID, "type", task.Type, "account_id", task.AccountID)

	var err error
	switch task.Type {
	case domain.TaskTypeBalance:
		err = e.executeBalance(ctx, task.AccountID)
	case domain.TaskTypeTransactions:
		err = e.executeTransactions(ctx, task.AccountID)
	case domain.TaskTypeDetails:
		err = e.executeDetails(ctx, task.AccountID)
	default:
		err = fmt.Errorf("%w: unknown task type %s", domain.ErrInvalidInput, task.Type)
	}

	if err != nil {
		logger.Warn("task execution failed", "duration", time.Since(start), "error", err)
		return err
	}

	logger.Info("task executed", "duration", time.Since(start))
	return nil
}

// executeBalance fetches the balance, refreshes the cache and announces the
// update.
func (e *Executor) executeBalance(ctx context.Context, accountID string) error {
	balance, err := e.provider.GetBalance(ctx, accountID)
	if err != nil {
		return err
	}
	if err := e.rateLimiter.RecordCall(ctx, accountID); err != nil {
		e.logger.Warn("failed to record provider call", "account_id", accountID, "error", err)
	}

	if err := e.balances.Put(ctx, balance, BalanceCacheTTL); err != nil {
		return fmt.Errorf("cache balance: %w", err)
	}

	_, err = e.bus.Emit(ctx, domain.EventAccountUpdated, map[string]any{
		"account_id": accountID,
		"balance":    balance.Amount,
		"currency":   balance.Currency,
		"source":     "balance-task",
	}, nil)
	return err
}

// executeTransactions creates a fresh operation and runs the sync pipeline.
// A lock conflict means another sync is already covering this account; the
// task is settled as done, not failed.
func (e *Executor) executeTransactions(ctx context.Context, accountID string) error {
	op := domain.NewOperation(accountID)
	if err := e.operations.Save(ctx, op); err != nil {
		return fmt.Errorf("create operation: %w", err)
	}

	err := e.sync.StartSync(ctx, accountID, op.ID, driving.SyncRequest{})
	if errors.Is(err, domain.ErrSyncInProgress) {
		e.logger.Info("sync already running, skipping scheduled sync", "account_id", accountID)
		return nil
	}
	return err
}

// executeDetails refreshes account metadata from the provider.
func (e *Executor) executeDetails(ctx context.Context, accountID string) error {
	details, err := e.provider.GetAccountDetails(ctx, accountID)
	if err != nil {
		return err
	}
	if err := e.rateLimiter.RecordCall(ctx, accountID); err != nil {
		e.logger.Warn("failed to record provider call", "account_id", accountID, "error", err)
	}

	existing, err := e.accounts.Get(ctx, accountID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if existing != nil {
		details.RequisitionID = existing.RequisitionID
		details.InstitutionID = existing.InstitutionID
		details.Active = existing.Active
		details.LinkedAt = existing.LinkedAt
	}

	if err := e.accounts.Save(ctx, details); err != nil {
		return fmt.Errorf("save account details: %w", err)
	}

	_, err = e.bus.Emit(ctx, domain.EventAccountUpdated, map[string]any{
		"account_id": accountID,
		"source":     "details-task",
	}, nil)
	return err
}
