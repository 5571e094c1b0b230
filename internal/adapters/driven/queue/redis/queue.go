package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven"
	"github.com/redis/go-redis/v9"
)

const (
	queueKey   = "banksync:scheduler-queue"
	taskPrefix = "banksync:task:"
	seedPrefix = "banksync:seed:"

	// taskDataTTL bounds orphaned task bodies; the queue index itself has no
	// expiry.
	taskDataTTL = 7 * 24 * time.Hour
)

// Verify interface compliance
var (
	_ driven.TaskQueue  = (*Queue)(nil)
	_ driven.SeedMarker = (*Queue)(nil)
)

// Queue is the scheduler's durable queue: task bodies live in per-task keys,
// dispatch order lives in a sorted set scored by next-run time. Both survive
// process restarts.
type Queue struct {
	client *redis.Client
}

// NewQueue creates a Redis-backed task queue.
func NewQueue(client *redis.Client) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &Queue{client: client}, nil
}

// score encodes next-run time with enqueue order as the tie breaker: whole
// seconds carry the run time, the fractional part carries enqueue nanos.
func score(task *domain.Task) float64 {
	return float64(task.NextRun.Unix()) + float64(task.EnqueuedAt.Nanosecond())/2e9
}

// Push stores the task body and indexes it by next-run time.
func (q *Queue) Push(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return errors.New("task is required")
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.ID, err)
	}

	pipe := q.client.Pipeline()
	pipe.Set(ctx, taskPrefix+task.ID, data, taskDataTTL)
	pipe.ZAdd(ctx, queueKey, redis.Z{Score: score(task), Member: task.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue task %s: %w", task.ID, err)
	}
	return nil
}

// Due returns all tasks whose next-run time has elapsed, ordered by score.
func (q *Queue) Due(ctx context.Context, now time.Time) ([]*domain.Task, error) {
	ids, err := q.client.ZRangeByScore(ctx, queueKey, &redis.ZRangeBy{
		Min: "-inf",
		// +1 keeps sub-second tie-breaker fractions inside the bound
		Max: fmt.Sprintf("%d", now.Unix()+1),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read due tasks: %w", err)
	}

	var tasks []*domain.Task
	for _, id := range ids {
		task, err := q.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if task == nil {
			// Orphaned index entry, drop it
			q.client.ZRem(ctx, queueKey, id)
			continue
		}
		if task.IsDue(now) {
			tasks = append(tasks, task)
		}
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].NextRun.Equal(tasks[j].NextRun) {
			if tasks[i].Priority != tasks[j].Priority {
				return tasks[i].Priority < tasks[j].Priority
			}
			return tasks[i].EnqueuedAt.Before(tasks[j].EnqueuedAt)
		}
		return tasks[i].NextRun.Before(tasks[j].NextRun)
	})

	return tasks, nil
}

// Reschedule updates the task body and re-indexes it at the new next-run
// time.
func (q *Queue) Reschedule(ctx context.Context, task *domain.Task) error {
	return q.Push(ctx, task)
}

// Remove deletes the task from the queue.
func (q *Queue) Remove(ctx context.Context, taskID string) error {
	pipe := q.client.Pipeline()
	pipe.ZRem(ctx, queueKey, taskID)
	pipe.Del(ctx, taskPrefix+taskID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove task %s: %w", taskID, err)
	}
	return nil
}

// Get returns a queued task by ID, or nil if absent.
func (q *Queue) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	data, err := q.client.Get(ctx, taskPrefix+taskID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}

	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("unmarshal task %s: %w", taskID, err)
	}
	return &task, nil
}

// Len returns the number of queued tasks.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, queueKey).Result()
}

// MarkSeeded claims the (account, day) re-seeding marker. Reports true iff
// this call won the claim.
func (q *Queue) MarkSeeded(ctx context.Context, accountID string, day string) (bool, error) {
	won, err := q.client.SetNX(ctx, seedPrefix+accountID+":"+day, "1", 24*time.Hour).Result()
	if err != nil {
		return false, fmt.Errorf("mark seeded %s: %w", accountID, err)
	}
	return won, nil
}

// Ping checks if the queue backend is healthy.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}
