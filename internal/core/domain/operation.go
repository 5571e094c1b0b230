package domain

import (
	"time"

	"github.com/google/uuid"
)

// OperationStatus represents the current state of a sync operation
type OperationStatus string

const (
	OperationStatusPending    OperationStatus = "pending"
	OperationStatusInProgress OperationStatus = "in_progress"
	OperationStatusCompleted  OperationStatus = "completed"
	OperationStatusFailed     OperationStatus = "failed"
)

// OperationRetention is how long finished operations remain queryable.
const OperationRetention = 7 * 24 * time.Hour

// Operation is one user-visible sync attempt, pollable by API callers.
// It is created when a sync is requested and mutated only by the sync
// pipeline.
type Operation struct {
	// ID uniquely identifies the operation (UUID)
	ID string `json:"id"`

	// AccountID is the account being synced
	AccountID string `json:"account_id"`

	// Status is the current state
	Status OperationStatus `json:"status"`

	// Processed is the number of transactions emitted so far
	Processed int `json:"processed"`

	// Errors collects failure messages from attempts
	Errors []string `json:"errors,omitempty"`

	// LastCursor is the cursor token reached by this operation, if any
	LastCursor string `json:"last_cursor,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewOperation creates a pending operation for the account.
func NewOperation(accountID string) *Operation {
	return &Operation{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Status:    OperationStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// MarkInProgress transitions the operation into execution.
func (o *Operation) MarkInProgress() {
	now := time.Now().UTC()
	o.Status = OperationStatusInProgress
	o.StartedAt = &now
}

// MarkCompleted records success with the final processed count.
func (o *Operation) MarkCompleted(processed int) {
	now := time.Now().UTC()
	o.Status = OperationStatusCompleted
	o.Processed = processed
	o.CompletedAt = &now
}

// MarkFailed records terminal failure.
func (o *Operation) MarkFailed(errMsg string) {
	now := time.Now().UTC()
	o.Status = OperationStatusFailed
	o.Errors = append(o.Errors, errMsg)
	o.CompletedAt = &now
}
