package driven

import (
	"context"
	"time"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
)

// TaskQueue is the scheduler's durable priority queue, ordered by next-run
// time with enqueue order breaking ties. It survives process restarts.
type TaskQueue interface {
	// Push stores the task and indexes it by its NextRun time.
	Push(ctx context.Context, task *domain.Task) error

	// Due returns all tasks whose NextRun has elapsed at now, ordered by
	// NextRun then enqueue order. Tasks remain queued until Remove.
	Due(ctx context.Context, now time.Time) ([]*domain.Task, error)

	// Reschedule updates the stored task and re-indexes it at its new
	// NextRun time.
	Reschedule(ctx context.Context, task *domain.Task) error

	// Remove deletes the task from the queue.
	Remove(ctx context.Context, taskID string) error

	// Get returns a queued task by ID, or nil if absent.
	Get(ctx context.Context, taskID string) (*domain.Task, error)

	// Len returns the number of queued tasks.
	Len(ctx context.Context) (int64, error)

	// Ping checks queue backend health.
	Ping(ctx context.Context) error
}

// SeedMarker guards the periodic re-seeding pass so that each account is
// re-seeded at most once per day.
type SeedMarker interface {
	// MarkSeeded claims the (account, day) marker and reports true iff this
	// call won the claim, i.e. the account had not been seeded today.
	MarkSeeded(ctx context.Context, accountID string, day string) (bool, error)
}
