package domain

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// GenerateID creates a unique random ID.
func GenerateID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// TaskType identifies the type of background task
type TaskType string

const (
	// TaskTypeBalance fetches the current balance for an account
	TaskTypeBalance TaskType = "balance"
	// TaskTypeTransactions runs an incremental transaction sync for an account
	TaskTypeTransactions TaskType = "transactions"
	// TaskTypeDetails refreshes account detail metadata
	TaskTypeDetails TaskType = "details"
)

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskStatusScheduled  TaskStatus = "scheduled"
	TaskStatusDispatched TaskStatus = "dispatched"
	TaskStatusSucceeded  TaskStatus = "succeeded"
	TaskStatusFailed     TaskStatus = "failed"
)

const (
	// DefaultMaxRetries is the retry ceiling for transient task failures.
	DefaultMaxRetries = 3

	// RetryBackoffBase is the base delay for exponential task retry backoff.
	RetryBackoffBase = time.Minute
)

// Task is a unit of scheduled provider work owned by the scheduler.
// Its ID is deterministic from type, account and enqueue time so re-seeding
// within the same instant cannot produce duplicate queue entries.
type Task struct {
	// ID uniquely identifies the task in the queue
	ID string `json:"id"`

	// Type identifies what kind of provider call this task performs
	Type TaskType `json:"type"`

	// AccountID is the bank account this task operates on
	AccountID string `json:"account_id"`

	// Priority breaks ties between tasks due at the same time; lower runs first
	Priority int `json:"priority"`

	// Status is the current state of the task
	Status TaskStatus `json:"status"`

	// Retries counts transient failures. Rate-limit deferrals do not count.
	Retries int `json:"retries"`

	// NextRun is when the task becomes eligible for dispatch
	NextRun time.Time `json:"next_run"`

	// EnqueuedAt is when the task was first created
	EnqueuedAt time.Time `json:"enqueued_at"`

	// LastError contains the most recent failure message
	LastError string `json:"last_error,omitempty"`
}

// NewTask creates a task due immediately.
func NewTask(taskType TaskType, accountID string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:         fmt.Sprintf("%s:%s:%d", taskType, accountID, now.UnixNano()),
		Type:       taskType,
		AccountID:  accountID,
		Status:     TaskStatusScheduled,
		NextRun:    now,
		EnqueuedAt: now,
	}
}

// CanRetry reports whether the task has retry budget left.
func (t *Task) CanRetry() bool {
	return t.Retries < DefaultMaxRetries
}

// IsDue reports whether the task is eligible for dispatch at now.
func (t *Task) IsDue(now time.Time) bool {
	return t.Status == TaskStatusScheduled && !t.NextRun.After(now)
}

// Defer pushes the task's next run out to the given time without touching the
// retry budget. Used for rate-limit deferrals, which are throttling, not
// failures.
func (t *Task) Defer(until time.Time, reason string) {
	t.Status = TaskStatusScheduled
	t.NextRun = until
	t.LastError = reason
}

// Retry consumes one retry and reschedules with exponential backoff
// (base 1 minute, doubled per prior retry).
func (t *Task) Retry(now time.Time, reason string) {
	backoff := RetryBackoffBase * time.Duration(1<<t.Retries)
	t.Retries++
	t.Status = TaskStatusScheduled
	t.NextRun = now.Add(backoff)
	t.LastError = reason
}

// MarkDispatched transitions the task into execution.
func (t *Task) MarkDispatched() {
	t.Status = TaskStatusDispatched
}

// MarkFailed marks the task terminally failed.
func (t *Task) MarkFailed(reason string) {
	t.Status = TaskStatusFailed
	t.LastError = reason
}
