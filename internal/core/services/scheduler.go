package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.SchedulerService = (*Scheduler)(nil)

const (
	// DefaultTickInterval is how often the dispatch loop polls for due tasks.
	DefaultTickInterval = 30 * time.Second

	// DefaultReseedInterval is how often the re-seeding pass runs.
	DefaultReseedInterval = 30 * time.Minute

	// DefaultInterTaskDelay spaces sequential dispatches so one tick cannot
	// burst through the global per-minute cap.
	DefaultInterTaskDelay = 2 * time.Second
)

// TaskExecutor runs one dispatched task. Implemented by the worker.
type TaskExecutor interface {
	Execute(ctx context.Context, task *domain.Task) error
}

// SchedulerConfig holds dependencies and tuning for the scheduler.
type SchedulerConfig struct {
	Queue       driven.TaskQueue
	SeedMarker  driven.SeedMarker
	RateLimiter driven.RateLimiter
	Accounts    driven.AccountStore
	Executor    TaskExecutor
	Bus         driven.EventBus
	Logger      *slog.Logger

	TickInterval   time.Duration
	ReseedInterval time.Duration
	InterTaskDelay time.Duration
}

// Scheduler owns the durable task queue: a periodic tick pulls due tasks,
// re-validates each against the rate limiter and dispatches them
// sequentially. A slower re-seeding pass keeps every actively linked account
// polled at least daily.
type Scheduler struct {
	queue       driven.TaskQueue
	seedMarker  driven.SeedMarker
	rateLimiter driven.RateLimiter
	accounts    driven.AccountStore
	executor    TaskExecutor
	bus         driven.EventBus
	logger      *slog.Logger

	tickInterval   time.Duration
	reseedInterval time.Duration
	interTaskDelay time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewScheduler creates a scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tick := cfg.TickInterval
	if tick == 0 {
		tick = DefaultTickInterval
	}
	reseed := cfg.ReseedInterval
	if reseed == 0 {
		reseed = DefaultReseedInterval
	}
	delay := cfg.InterTaskDelay
	if delay == 0 {
		delay = DefaultInterTaskDelay
	}

	return &Scheduler{
		queue:          cfg.Queue,
		seedMarker:     cfg.SeedMarker,
		rateLimiter:    cfg.RateLimiter,
		accounts:       cfg.Accounts,
		executor:       cfg.Executor,
		bus:            cfg.Bus,
		logger:         logger,
		tickInterval:   tick,
		reseedInterval: reseed,
		interTaskDelay: delay,
		now:            time.Now,
		sleep:          sleepCtx,
	}
}

// Enqueue consults the rate limiter before storing: a denied task gets its
// next-run time pushed to the reported retry-after so it is never dispatched
// prematurely.
func (s *Scheduler) Enqueue(ctx context.Context, task *domain.Task) error {
	decision, err := s.rateLimiter.Check(ctx, task.AccountID)
	if err != nil {
		s.logger.Warn("rate limit check failed on enqueue", "task_id", task.ID, "error", err)
	} else if !decision.Allowed {
		task.Defer(decision.RetryAfter, "rate limited: "+decision.Reason)
	}
	return s.queue.Push(ctx, task)
}

// Start launches the tick and re-seeding loops.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("scheduler starting", "tick_interval", s.tickInterval, "reseed_interval", s.reseedInterval)

	go s.run(ctx)
	return nil
}

// Stop gracefully stops the loops.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	reseedTicker := time.NewTicker(s.reseedInterval)
	defer reseedTicker.Stop()

	// Seed and dispatch immediately on start so a restart resumes promptly.
	s.Reseed(ctx)
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Tick(ctx)
		case <-reseedTicker.C:
			s.Reseed(ctx)
		}
	}
}

// Tick pulls all due tasks, re-validates each against the rate limiter
// (state may have changed since enqueue) and dispatches the allowed ones
// sequentially with the inter-task delay. Failures in one task never abort
// the loop or other accounts' work.
func (s *Scheduler) Tick(ctx context.Context) {
	due, err := s.queue.Due(ctx, s.now())
	if err != nil {
		// Store unavailable: skip this tick, retry next interval.
		s.logger.Error("failed to read due tasks", "error", err)
		return
	}

	for i, task := range due {
		if i > 0 {
			if err := s.sleep(ctx, s.interTaskDelay); err != nil {
				return
			}
		}

		decision, err := s.rateLimiter.Check(ctx, task.AccountID)
		if err != nil {
			s.logger.Warn("rate limit re-check failed", "task_id", task.ID, "error", err)
			continue
		}
		if !decision.Allowed {
			task.Defer(decision.RetryAfter, "rate limited: "+decision.Reason)
			if err := s.queue.Reschedule(ctx, task); err != nil {
				s.logger.Error("failed to defer task", "task_id", task.ID, "error", err)
			}
			continue
		}

		s.dispatch(ctx, task)
	}
}

// dispatch executes one task and settles its outcome per the failure
// taxonomy.
func (s *Scheduler) dispatch(ctx context.Context, task *domain.Task) {
	task.MarkDispatched()
	s.logger.Info("dispatching task", "task_id", task.ID, "type", task.Type, "account_id", task.AccountID)

	err := s.executor.Execute(ctx, task)
	if err == nil {
		if err := s.queue.Remove(ctx, task.ID); err != nil {
			s.logger.Error("failed to remove completed task", "task_id", task.ID, "error", err)
		}
		return
	}

	// Rate-limit failures reschedule at the provider-reported retry-after
	// and never consume the retry budget.
	if rle, ok := domain.IsRateLimited(err); ok {
		_ = s.rateLimiter.Suspend(ctx, task.AccountID, rle.RetryAfter)
		task.Defer(rle.RetryAfter, err.Error())
		if err := s.queue.Reschedule(ctx, task); err != nil {
			s.logger.Error("failed to defer rate-limited task", "task_id", task.ID, "error", err)
		}
		s.logger.Info("task rate limited", "task_id", task.ID, "retry_after", rle.RetryAfter)
		return
	}

	if task.CanRetry() {
		task.Retry(s.now(), err.Error())
		if err := s.queue.Reschedule(ctx, task); err != nil {
			s.logger.Error("failed to reschedule task", "task_id", task.ID, "error", err)
		}
		s.logger.Warn("task failed, will retry", "task_id", task.ID, "retries", task.Retries, "next_run", task.NextRun, "error", err)
		return
	}

	// Retry budget exhausted: drop the task and report terminally.
	task.MarkFailed(err.Error())
	if err := s.queue.Remove(ctx, task.ID); err != nil {
		s.logger.Error("failed to remove failed task", "task_id", task.ID, "error", err)
	}
	_, _ = s.bus.Emit(ctx, domain.EventSyncFailed, map[string]any{
		"account_id": task.AccountID,
		"task_id":    task.ID,
		"task_type":  string(task.Type),
		"error":      task.LastError,
		"retryable":  false,
	}, nil)
	s.logger.Error("task failed terminally", "task_id", task.ID, "error", task.LastError)
}

// Reseed enqueues a balance and a transactions task for every actively
// linked account, at most once per account per day.
func (s *Scheduler) Reseed(ctx context.Context) {
	accounts, err := s.accounts.ListActive(ctx)
	if err != nil {
		s.logger.Error("failed to list accounts for re-seeding", "error", err)
		return
	}

	day := s.now().UTC().Format("2006-01-02")
	for _, account := range accounts {
		seeded, err := s.seedMarker.MarkSeeded(ctx, account.ID, day)
		if err != nil {
			s.logger.Warn("seed marker check failed", "account_id", account.ID, "error", err)
			continue
		}
		if !seeded {
			continue
		}

		for _, taskType := range []domain.TaskType{domain.TaskTypeBalance, domain.TaskTypeTransactions} {
			task := domain.NewTask(taskType, account.ID)
			if err := s.Enqueue(ctx, task); err != nil {
				s.logger.Error("failed to enqueue seeded task", "account_id", account.ID, "type", taskType, "error", err)
			}
		}
		s.logger.Info("re-seeded account", "account_id", account.ID, "day", day)
	}
}
