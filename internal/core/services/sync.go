package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.SyncService = (*SyncPipeline)(nil)

const (
	// DefaultLockTTL bounds how long a crashed sync can block an account.
	DefaultLockTTL = 15 * time.Minute

	// DefaultLookbackDays is the initial window when no cursor exists.
	DefaultLookbackDays = 90

	// DefaultMaxPerSync caps transactions processed in one sync; reaching it
	// stops early without error, partial progress is resumable.
	DefaultMaxPerSync = 1000

	// snapshotEvery bounds operation write amplification.
	snapshotEvery = 10

	syncAttempts    = 3
	syncBackoffBase = time.Second
	syncBackoffCap  = 10 * time.Second
)

// SyncPipelineConfig holds dependencies and tuning for the sync pipeline.
type SyncPipelineConfig struct {
	Lock        driven.DistributedLock
	Dedupe      driven.DedupeStore
	Cursors     driven.CursorStore
	Operations  driven.OperationStore
	Provider    driven.BankProvider
	RateLimiter driven.RateLimiter
	Bus         driven.EventBus
	Logger      *slog.Logger

	LockTTL      time.Duration
	LookbackDays int
	MaxPerSync   int
}

// SyncPipeline runs the fetch → normalise → dedup → emit → checkpoint flow
// for one account. The account lock is held for the entire multi-attempt
// retry sequence; that is what makes "at most one concurrent sync per
// account" hold across transient retries.
type SyncPipeline struct {
	lock        driven.DistributedLock
	dedupe      driven.DedupeStore
	cursors     driven.CursorStore
	operations  driven.OperationStore
	provider    driven.BankProvider
	rateLimiter driven.RateLimiter
	bus         driven.EventBus
	logger      *slog.Logger

	lockTTL      time.Duration
	lookbackDays int
	maxPerSync   int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSyncPipeline creates a sync pipeline.
func NewSyncPipeline(cfg SyncPipelineConfig) *SyncPipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lockTTL := cfg.LockTTL
	if lockTTL == 0 {
		lockTTL = DefaultLockTTL
	}
	lookback := cfg.LookbackDays
	if lookback == 0 {
		lookback = DefaultLookbackDays
	}
	maxPerSync := cfg.MaxPerSync
	if maxPerSync == 0 {
		maxPerSync = DefaultMaxPerSync
	}

	return &SyncPipeline{
		lock:         cfg.Lock,
		dedupe:       cfg.Dedupe,
		cursors:      cfg.Cursors,
		operations:   cfg.Operations,
		provider:     cfg.Provider,
		rateLimiter:  cfg.RateLimiter,
		bus:          cfg.Bus,
		logger:       logger,
		lockTTL:      lockTTL,
		lookbackDays: lookback,
		maxPerSync:   maxPerSync,
		now:          time.Now,
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// RequestSync creates an operation and runs the pipeline for it. The lock is
// taken before returning so a conflicting request fails fast with
// domain.ErrSyncInProgress instead of queueing silently.
func (s *SyncPipeline) RequestSync(ctx context.Context, accountID string, req driving.SyncRequest) (*domain.Operation, error) {
	op := domain.NewOperation(accountID)
	if err := s.operations.Save(ctx, op); err != nil {
		return nil, fmt.Errorf("create operation: %w", err)
	}

	if err := s.StartSync(ctx, accountID, op.ID, req); err != nil {
		return op, err
	}

	// Return the final snapshot rather than the stale pending one.
	final, err := s.operations.Get(ctx, op.ID)
	if err != nil {
		return op, nil
	}
	return final, nil
}

// StartSync runs the pipeline against an existing operation.
func (s *SyncPipeline) StartSync(ctx context.Context, accountID, operationID string, req driving.SyncRequest) error {
	op, err := s.operations.Get(ctx, operationID)
	if err != nil {
		return fmt.Errorf("load operation %s: %w", operationID, err)
	}

	op.MarkInProgress()
	if err := s.operations.Save(ctx, op); err != nil {
		return fmt.Errorf("save operation %s: %w", operationID, err)
	}

	token, acquired, err := s.lock.Acquire(ctx, accountID, s.lockTTL)
	if err != nil || !acquired {
		op.MarkFailed(domain.ErrSyncInProgress.Error())
		_ = s.operations.Save(ctx, op)
		if err != nil {
			s.logger.Warn("lock acquisition failed", "account_id", accountID, "error", err)
		}
		return domain.ErrSyncInProgress
	}

	// Lock release must happen regardless of outcome. An owner mismatch here
	// means the lease expired mid-sync; log it, nothing to retry.
	defer func() {
		released, relErr := s.lock.Release(ctx, accountID, token)
		if relErr != nil {
			s.logger.Warn("lock release error", "account_id", accountID, "error", relErr)
		} else if !released {
			s.logger.Warn("lock lease expired before release", "account_id", accountID)
		}
	}()

	s.logger.Info("sync started", "account_id", accountID, "operation_id", op.ID)

	runErr := s.runWithRetries(ctx, accountID, op, req, token)
	if runErr != nil {
		op.MarkFailed(runErr.Error())
		_ = s.operations.Save(ctx, op)
		_, _ = s.bus.Emit(ctx, domain.EventSyncFailed, map[string]any{
			"account_id":   accountID,
			"operation_id": op.ID,
			"error":        runErr.Error(),
			"retryable":    true,
		}, nil)
		s.logger.Error("sync failed", "account_id", accountID, "operation_id", op.ID, "error", runErr)
		return runErr
	}

	op.MarkCompleted(op.Processed)
	if err := s.operations.Save(ctx, op); err != nil {
		s.logger.Warn("failed to save completed operation", "operation_id", op.ID, "error", err)
	}
	_, _ = s.bus.Emit(ctx, domain.EventSyncCompleted, map[string]any{
		"account_id":   accountID,
		"operation_id": op.ID,
		"processed":    op.Processed,
	}, nil)

	s.logger.Info("sync completed", "account_id", accountID, "operation_id", op.ID, "processed", op.Processed)
	return nil
}

// GetOperation returns an operation snapshot for polling.
func (s *SyncPipeline) GetOperation(ctx context.Context, operationID string) (*domain.Operation, error) {
	return s.operations.Get(ctx, operationID)
}

// runWithRetries executes the fetch loop under the already-held lock, up to
// syncAttempts times with capped exponential backoff. Rate-limit failures
// abort immediately; they carry their own scheduling semantics.
func (s *SyncPipeline) runWithRetries(ctx context.Context, accountID string, op *domain.Operation, req driving.SyncRequest, lockToken string) error {
	var lastErr error
	for attempt := 0; attempt < syncAttempts; attempt++ {
		if attempt > 0 {
			backoff := syncBackoffBase * time.Duration(1<<attempt)
			if backoff > syncBackoffCap {
				backoff = syncBackoffCap
			}
			if err := s.sleep(ctx, backoff); err != nil {
				return err
			}
			// Renew the lease so the retry sequence cannot outlive the lock.
			if err := s.lock.Extend(ctx, accountID, lockToken, s.lockTTL); err != nil {
				return fmt.Errorf("lease lost during retry: %w", err)
			}
			op.Errors = append(op.Errors, lastErr.Error())
		}

		err := s.runOnce(ctx, accountID, op, req)
		if err == nil {
			return nil
		}
		if rle, ok := domain.IsRateLimited(err); ok {
			_ = s.rateLimiter.Suspend(ctx, accountID, rle.RetryAfter)
			return err
		}
		lastErr = err
		s.logger.Warn("sync attempt failed", "account_id", accountID, "attempt", attempt+1, "error", err)
	}
	return lastErr
}

// runOnce executes one fetch pass: resolve the range, stream pages, dedup
// and emit, advance the cursor.
func (s *SyncPipeline) runOnce(ctx context.Context, accountID string, op *domain.Operation, req driving.SyncRequest) error {
	fromDate, toDate, err := s.resolveRange(ctx, accountID, req)
	if err != nil {
		return err
	}

	pager, err := s.provider.GetTransactions(ctx, accountID, fromDate, toDate)
	if err != nil {
		return err
	}

	capped := false
	lastRef := ""
	lastBookingDate := ""

	for {
		page, err := pager.Next(ctx)
		if err != nil {
			return err
		}
		if page == nil {
			break
		}
		if err := s.rateLimiter.RecordCall(ctx, accountID); err != nil {
			s.logger.Warn("failed to record provider call", "account_id", accountID, "error", err)
		}

		for _, raw := range page.Transactions {
			tx := domain.NormalizeTransaction(accountID, raw)

			dup, err := s.dedupe.IsDuplicate(ctx, tx.ExternalRef)
			if err != nil {
				// Fail open: the claim stands as not-duplicate.
				s.logger.Warn("dedupe check failed, treating as new", "external_ref", tx.ExternalRef, "error", err)
			}
			if dup {
				continue
			}

			if _, err := s.bus.Emit(ctx, domain.EventTransactionCreated, transactionPayload(tx), nil); err != nil {
				return fmt.Errorf("emit transaction %s: %w", tx.ExternalRef, err)
			}

			op.Processed++
			lastRef = tx.ExternalRef
			if tx.BookingDate > lastBookingDate {
				lastBookingDate = tx.BookingDate
			}

			if op.Processed%snapshotEvery == 0 {
				if err := s.operations.Save(ctx, op); err != nil {
					s.logger.Warn("failed to snapshot operation", "operation_id", op.ID, "error", err)
				}
			}

			if op.Processed >= s.maxPerSync {
				capped = true
				break
			}
		}

		update := domain.CursorUpdate{Token: domain.StringPtr(page.NextToken)}
		if lastRef != "" {
			update.LastTransactionRef = domain.StringPtr(lastRef)
		}
		if lastBookingDate != "" {
			update.SinceDate = domain.StringPtr(lastBookingDate)
		}
		if _, err := s.cursors.Set(ctx, accountID, update); err != nil {
			return fmt.Errorf("advance cursor: %w", err)
		}
		op.LastCursor = lastBookingDate

		if capped {
			s.logger.Info("per-sync cap reached, stopping early", "account_id", accountID, "processed", op.Processed)
			return nil
		}
	}

	// The full range completed; the next incremental sync resumes from the
	// upper bound.
	if _, err := s.cursors.Set(ctx, accountID, domain.CursorUpdate{SinceDate: domain.StringPtr(toDate)}); err != nil {
		return fmt.Errorf("finalise cursor: %w", err)
	}
	op.LastCursor = toDate
	return nil
}

// resolveRange picks the effective date bounds: explicit request bounds win,
// then the stored cursor, then the configured lookback window. Upper bound
// defaults to today.
func (s *SyncPipeline) resolveRange(ctx context.Context, accountID string, req driving.SyncRequest) (string, string, error) {
	now := s.now().UTC()

	toDate := req.ToDate
	if toDate == "" {
		toDate = now.Format("2006-01-02")
	}

	fromDate := req.FromDate
	if fromDate == "" {
		cursor, err := s.cursors.Get(ctx, accountID)
		if err != nil {
			return "", "", fmt.Errorf("read cursor: %w", err)
		}
		if cursor != nil && cursor.SinceDate != "" {
			fromDate = cursor.SinceDate
		} else {
			fromDate = now.AddDate(0, 0, -s.lookbackDays).Format("2006-01-02")
		}
	}

	return fromDate, toDate, nil
}

func transactionPayload(tx domain.Transaction) map[string]any {
	return map[string]any{
		"external_ref": tx.ExternalRef,
		"account_id":   tx.AccountID,
		"amount":       tx.Amount,
		"currency":     tx.Currency,
		"direction":    string(tx.Direction),
		"counterparty": tx.Counterparty,
		"description":  tx.Description,
		"booking_date": tx.BookingDate,
	}
}
