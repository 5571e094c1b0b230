package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven/mocks"
)

type stubExecutor struct {
	ExecuteFn func(ctx context.Context, task *domain.Task) error
	calls     []*domain.Task
}

func (s *stubExecutor) Execute(ctx context.Context, task *domain.Task) error {
	s.calls = append(s.calls, task)
	if s.ExecuteFn != nil {
		return s.ExecuteFn(ctx, task)
	}
	return nil
}

type schedulerFixture struct {
	queue     *mocks.MockTaskQueue
	limiter   *mocks.MockRateLimiter
	accounts  *mocks.MockAccountStore
	executor  *stubExecutor
	bus       *mocks.MockEventBus
	scheduler *Scheduler
	now       time.Time
}

func newTestScheduler(t *testing.T) *schedulerFixture {
	t.Helper()

	f := &schedulerFixture{
		queue:    mocks.NewMockTaskQueue(),
		limiter:  mocks.NewMockRateLimiter(),
		accounts: mocks.NewMockAccountStore(),
		executor: &stubExecutor{},
		bus:      mocks.NewMockEventBus(),
		now:      time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC),
	}
	f.scheduler = NewScheduler(SchedulerConfig{
		Queue:       f.queue,
		SeedMarker:  f.queue,
		RateLimiter: f.limiter,
		Accounts:    f.accounts,
		Executor:    f.executor,
		Bus:         f.bus,
	})
	f.scheduler.now = func() time.Time { return f.now }
	f.scheduler.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return f
}

func TestScheduler_Enqueue_DefersWhenRateLimited(t *testing.T) {
	f := newTestScheduler(t)
	retryAfter := f.now.Add(2 * time.Hour)
	f.limiter.CheckFn = func(accountID string) (driven.Decision, error) {
		return driven.Decision{Allowed: false, RetryAfter: retryAfter, Reason: "daily"}, nil
	}

	task := domain.NewTask(domain.TaskTypeBalance, "acc-1")
	if err := f.scheduler.Enqueue(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := f.queue.Get(context.Background(), task.ID)
	if !stored.NextRun.Equal(retryAfter) {
		t.Errorf("expected next run at %v, got %v", retryAfter, stored.NextRun)
	}
	if stored.Retries != 0 {
		t.Errorf("rate-limit deferral must not consume retries, got %d", stored.Retries)
	}
}

func TestScheduler_Tick_DispatchesAndRemoves(t *testing.T) {
	f := newTestScheduler(t)
	task := domain.NewTask(domain.TaskTypeBalance, "acc-1")
	task.NextRun = f.now.Add(-time.Minute)
	_ = f.queue.Push(context.Background(), task)

	f.scheduler.Tick(context.Background())

	if len(f.executor.calls) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(f.executor.calls))
	}
	if n, _ := f.queue.Len(context.Background()); n != 0 {
		t.Errorf("expected completed task removed, queue has %d", n)
	}
}

func TestScheduler_Tick_SkipsNotDue(t *testing.T) {
	f := newTestScheduler(t)
	task := domain.NewTask(domain.TaskTypeBalance, "acc-1")
	task.NextRun = f.now.Add(time.Hour)
	_ = f.queue.Push(context.Background(), task)

	f.scheduler.Tick(context.Background())

	if len(f.executor.calls) != 0 {
		t.Errorf("expected no dispatch for future task, got %d", len(f.executor.calls))
	}
	if n, _ := f.queue.Len(context.Background()); n != 1 {
		t.Errorf("expected task still queued, got %d", n)
	}
}

func TestScheduler_Tick_RecheckDefersRateLimited(t *testing.T) {
	f := newTestScheduler(t)
	task := domain.NewTask(domain.TaskTypeTransactions, "acc-1")
	task.NextRun = f.now.Add(-time.Minute)
	_ = f.queue.Push(context.Background(), task)

	// The account got suspended after the task was enqueued.
	retryAfter := f.now.Add(time.Hour)
	f.limiter.CheckFn = func(accountID string) (driven.Decision, error) {
		return driven.Decision{Allowed: false, RetryAfter: retryAfter, Reason: "suspended"}, nil
	}

	f.scheduler.Tick(context.Background())

	if len(f.executor.calls) != 0 {
		t.Fatal("expected no dispatch while rate limited")
	}
	stored, _ := f.queue.Get(context.Background(), task.ID)
	if !stored.NextRun.Equal(retryAfter) {
		t.Errorf("expected deferral to %v, got %v", retryAfter, stored.NextRun)
	}
}

func TestScheduler_Dispatch_RateLimitedDefersWithoutRetryCost(t *testing.T) {
	f := newTestScheduler(t)
	task := domain.NewTask(domain.TaskTypeTransactions, "acc-1")
	task.NextRun = f.now.Add(-time.Minute)
	_ = f.queue.Push(context.Background(), task)

	retryAfter := f.now.Add(45 * time.Minute)
	f.executor.ExecuteFn = func(ctx context.Context, task *domain.Task) error {
		return domain.NewRateLimitError("provider", retryAfter)
	}

	f.scheduler.Tick(context.Background())

	stored, _ := f.queue.Get(context.Background(), task.ID)
	if stored == nil {
		t.Fatal("expected task to remain queued")
	}
	if stored.Retries != 0 {
		t.Errorf("rate-limit failure must not consume retries, got %d", stored.Retries)
	}
	if !stored.NextRun.Equal(retryAfter) {
		t.Errorf("expected next run at provider retry-after %v, got %v", retryAfter, stored.NextRun)
	}

	// The 429 feeds back into the account suspension.
	until, _ := f.limiter.SuspendedUntil(context.Background(), "acc-1")
	if !until.Equal(retryAfter) {
		t.Errorf("expected suspension until %v, got %v", retryAfter, until)
	}
}

func TestScheduler_Dispatch_TransientFailureRetriesWithBackoff(t *testing.T) {
	f := newTestScheduler(t)
	task := domain.NewTask(domain.TaskTypeBalance, "acc-1")
	task.NextRun = f.now.Add(-time.Minute)
	_ = f.queue.Push(context.Background(), task)

	f.executor.ExecuteFn = func(ctx context.Context, task *domain.Task) error {
		return domain.NewTransientError(errors.New("connection reset"))
	}

	f.scheduler.Tick(context.Background())

	stored, _ := f.queue.Get(context.Background(), task.ID)
	if stored == nil {
		t.Fatal("expected task rescheduled")
	}
	if stored.Retries != 1 {
		t.Errorf("expected 1 retry consumed, got %d", stored.Retries)
	}
	expected := f.now.Add(domain.RetryBackoffBase)
	if !stored.NextRun.Equal(expected) {
		t.Errorf("expected backoff next run %v, got %v", expected, stored.NextRun)
	}
}

func TestScheduler_Dispatch_ExhaustedRetriesFailsTerminally(t *testing.T) {
	f := newTestScheduler(t)
	task := domain.NewTask(domain.TaskTypeBalance, "acc-1")
	task.NextRun = f.now.Add(-time.Minute)
	task.Retries = domain.DefaultMaxRetries
	_ = f.queue.Push(context.Background(), task)

	f.executor.ExecuteFn = func(ctx context.Context, task *domain.Task) error {
		return domain.NewTransientError(errors.New("still broken"))
	}

	f.scheduler.Tick(context.Background())

	if n, _ := f.queue.Len(context.Background()); n != 0 {
		t.Errorf("expected terminally failed task removed, queue has %d", n)
	}

	failed := f.bus.Emitted(domain.EventSyncFailed)
	if len(failed) != 1 {
		t.Fatalf("expected 1 sync-failed event, got %d", len(failed))
	}
	if failed[0].Payload["retryable"] != false {
		t.Error("expected terminal failure marked non-retryable")
	}
}

func TestScheduler_Reseed_OncePerDay(t *testing.T) {
	f := newTestScheduler(t)
	_ = f.accounts.Save(context.Background(), &domain.LinkedAccount{ID: "acc-1", Active: true})
	_ = f.accounts.Save(context.Background(), &domain.LinkedAccount{ID: "acc-2", Active: true})
	_ = f.accounts.Save(context.Background(), &domain.LinkedAccount{ID: "acc-3", Active: false})

	f.scheduler.Reseed(context.Background())

	// Two active accounts, a balance and a transactions task each.
	if n, _ := f.queue.Len(context.Background()); n != 4 {
		t.Fatalf("expected 4 seeded tasks, got %d", n)
	}

	// A second pass on the same day seeds nothing.
	f.scheduler.Reseed(context.Background())
	if n, _ := f.queue.Len(context.Background()); n != 4 {
		t.Errorf("expected reseed to be idempotent per day, got %d tasks", n)
	}

	// The next day seeds again.
	f.now = f.now.Add(24 * time.Hour)
	f.scheduler.Reseed(context.Background())
	if n, _ := f.queue.Len(context.Background()); n != 8 {
		t.Errorf("expected fresh seeding next day, got %d tasks", n)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	f := newTestScheduler(t)

	if err := f.scheduler.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Idempotent start.
	if err := f.scheduler.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error on second start: %v", err)
	}
	f.scheduler.Stop()
	// Stop after stop is a no-op.
	f.scheduler.Stop()
}
