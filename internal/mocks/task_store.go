package mocks

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clubworks/backend/internal/domain"
	"github.com/clubworks/backend/internal/store"
)

// MockTaskStore is a stateful in-memory store.TaskStore. It applies the same
// lax write semantics as the Postgres implementation: status and progress
// updates are unconditional, including transitions out of terminal states.
type MockTaskStore struct {
	// Function fields for customizable behavior; nil falls through to the
	// in-memory default.
	CreateTaskWithSubtasksFn func(ctx context.Context, task *domain.Task) error
	GetTaskFn                func(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	UpdateTaskStatusFn       func(ctx context.Context, id uuid.UUID, status domain.TaskStatus, errMsg string) error
	UpdateSubtaskStatusFn    func(ctx context.Context, id uuid.UUID, status domain.TaskStatus, errMsg string) error
	SetTaskResultFn          func(ctx context.Context, id uuid.UUID, result json.RawMessage) error

	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task
}

// NewMockTaskStore creates an empty in-memory task store.
func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{
		tasks: make(map[uuid.UUID]*domain.Task),
	}
}

// Task returns a snapshot of the stored task, or nil if absent. Test helper.
func (m *MockTaskStore) Task(id uuid.UUID) *domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil
	}
	cp := *t
	cp.Subtasks = append([]domain.Subtask(nil), t.Subtasks...)
	return &cp
}

// Subtask returns a snapshot of one stored subtask, or nil. Test helper.
func (m *MockTaskStore) Subtask(taskID uuid.UUID, stepIndex int) *domain.Subtask {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID]
	if !ok {
		return nil
	}
	for i := range t.Subtasks {
		if t.Subtasks[i].StepIndex == stepIndex {
			cp := t.Subtasks[i]
			return &cp
		}
	}
	return nil
}

// CreateTaskWithSubtasks implements store.TaskStore.
func (m *MockTaskStore) CreateTaskWithSubtasks(ctx context.Context, task *domain.Task) error {
	if m.CreateTaskWithSubtasksFn != nil {
		return m.CreateTaskWithSubtasksFn(ctx, task)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[task.ID]; exists {
		return store.ErrDuplicate
	}

	cp := *task
	cp.Subtasks = append([]domain.Subtask(nil), task.Subtasks...)
	m.tasks[task.ID] = &cp
	return nil
}

// GetTask implements store.TaskStore.
func (m *MockTaskStore) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	if m.GetTaskFn != nil {
		return m.GetTaskFn(ctx, id)
	}

	t := m.Task(id)
	if t == nil {
		return nil, store.ErrTaskNotFound
	}
	return t, nil
}

// ListTasks implements store.TaskStore.
func (m *MockTaskStore) ListTasks(ctx context.Context, filter store.TaskFilter) (*store.TaskPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []domain.Task
	for _, t := range m.tasks {
		if filter.EntityType != "" && t.EntityType != filter.EntityType {
			continue
		}
		if filter.EntityID != "" && t.EntityID != filter.EntityID {
			continue
		}
		cp := *t
		cp.Subtasks = append([]domain.Subtask(nil), t.Subtasks...)
		matched = append(matched, cp)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}

	total := len(matched)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &store.TaskPage{
		Tasks: matched[start:end],
		Total: total,
		Page:  page,
		Limit: limit,
	}, nil
}

// UpdateTaskStatus implements store.TaskStore.
func (m *MockTaskStore) UpdateTaskStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus, errMsg string) error {
	if m.UpdateTaskStatusFn != nil {
		return m.UpdateTaskStatusFn(ctx, id, status, errMsg)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}

	now := time.Now().UTC()
	t.Status = status
	t.Error = errMsg
	switch {
	case status == domain.TaskStatusRunning:
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
	case status.IsTerminal():
		t.FinishedAt = &now
	}
	return nil
}

// UpdateTaskProgress implements store.TaskStore.
func (m *MockTaskStore) UpdateTaskProgress(ctx context.Context, id uuid.UUID, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	t.Progress = progress
	return nil
}

// SetTaskResult implements store.TaskStore.
func (m *MockTaskStore) SetTaskResult(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	if m.SetTaskResultFn != nil {
		return m.SetTaskResultFn(ctx, id, result)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	t.Result = result
	return nil
}

// FindSubtask implements store.TaskStore.
func (m *MockTaskStore) FindSubtask(ctx context.Context, taskID uuid.UUID, stepIndex int) (*domain.Subtask, error) {
	st := m.Subtask(taskID, stepIndex)
	if st == nil {
		return nil, store.ErrSubtaskNotFound
	}
	return st, nil
}

// UpdateSubtaskStatus implements store.TaskStore.
func (m *MockTaskStore) UpdateSubtaskStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus, errMsg string) error {
	if m.UpdateSubtaskStatusFn != nil {
		return m.UpdateSubtaskStatusFn(ctx, id, status, errMsg)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.findSubtaskByIDLocked(id)
	if st == nil {
		return store.ErrSubtaskNotFound
	}

	now := time.Now().UTC()
	st.Status = status
	st.Error = errMsg
	switch {
	case status == domain.TaskStatusRunning:
		if st.StartedAt == nil {
			st.StartedAt = &now
		}
	case status.IsTerminal():
		st.FinishedAt = &now
	}
	return nil
}

// UpdateSubtaskProgress implements store.TaskStore.
func (m *MockTaskStore) UpdateSubtaskProgress(ctx context.Context, id uuid.UUID, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.findSubtaskByIDLocked(id)
	if st == nil {
		return store.ErrSubtaskNotFound
	}
	st.Progress = progress
	return nil
}

// SetSubtaskResult implements store.TaskStore.
func (m *MockTaskStore) SetSubtaskResult(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.findSubtaskByIDLocked(id)
	if st == nil {
		return store.ErrSubtaskNotFound
	}
	st.Result = result
	return nil
}

// ListStalePendingTasks implements store.TaskStore.
func (m *MockTaskStore) ListStalePendingTasks(ctx context.Context, olderThan time.Duration) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)

	var stale []domain.Task
	for _, t := range m.tasks {
		if t.Status != domain.TaskStatusPending || t.CreatedAt.After(cutoff) {
			continue
		}
		cp := *t
		cp.Subtasks = append([]domain.Subtask(nil), t.Subtasks...)
		stale = append(stale, cp)
	}

	sort.Slice(stale, func(i, j int) bool {
		return stale[i].CreatedAt.Before(stale[j].CreatedAt)
	})
	return stale, nil
}

func (m *MockTaskStore) findSubtaskByIDLocked(id uuid.UUID) *domain.Subtask {
	for _, t := range m.tasks {
		for i := range t.Subtasks {
			if t.Subtasks[i].ID == id {
				return &t.Subtasks[i]
			}
		}
	}
	return nil
}
