package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
)

// MockTaskQueue is an in-memory TaskQueue and SeedMarker for testing.
type MockTaskQueue struct {
	mu     sync.Mutex
	tasks  map[string]*domain.Task
	seeded map[string]bool

	// Custom behavior hooks (optional)
	PushFn func(task *domain.Task) error
	DueFn  func(now time.Time) ([]*domain.Task, error)
}

// NewMockTaskQueue creates a new mock task queue.
func NewMockTaskQueue() *MockTaskQueue {
	return &MockTaskQueue{
		tasks:  make(map[string]*domain.Task),
		seeded: make(map[string]bool),
	}
}

// Push stores the task.
func (m *MockTaskQueue) Push(ctx context.Context, task *domain.Task) error {
	if m.PushFn != nil {
		return m.PushFn(task)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task
	return nil
}

// Due returns all due tasks ordered by NextRun then priority.
func (m *MockTaskQueue) Due(ctx context.Context, now time.Time) ([]*domain.Task, error) {
	if m.DueFn != nil {
		return m.DueFn(now)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*domain.Task
	for _, task := range m.tasks {
		if task.IsDue(now) {
			due = append(due, task)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		if !due[i].NextRun.Equal(due[j].NextRun) {
			return due[i].NextRun.Before(due[j].NextRun)
		}
		if due[i].Priority != due[j].Priority {
			return due[i].Priority < due[j].Priority
		}
		return due[i].EnqueuedAt.Before(due[j].EnqueuedAt)
	})
	return due, nil
}

// Reschedule updates the stored task.
func (m *MockTaskQueue) Reschedule(ctx context.Context, task *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task
	return nil
}

// Remove deletes the task.
func (m *MockTaskQueue) Remove(ctx context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, taskID)
	return nil
}

// Get returns a queued task by ID, or nil.
func (m *MockTaskQueue) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[taskID], nil
}

// Len returns the number of queued tasks.
func (m *MockTaskQueue) Len(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.tasks)), nil
}

// Ping reports healthy.
func (m *MockTaskQueue) Ping(ctx context.Context) error {
	return nil
}

// MarkSeeded claims the (account, day) marker.
func (m *MockTaskQueue) MarkSeeded(ctx context.Context, accountID string, day string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := accountID + ":" + day
	if m.seeded[key] {
		return false, nil
	}
	m.seeded[key] = true
	return true, nil
}

// All returns every queued task (for test assertions).
func (m *MockTaskQueue) All() []*domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	tasks := make([]*domain.Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		tasks = append(tasks, task)
	}
	return tasks
}
