package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/clubworks/backend/internal/domain"
)

// TaskFilter narrows and paginates ListTasks results. Page is 1-based.
type TaskFilter struct {
	Page       int
	Limit      int
	EntityType string
	EntityID   string
}

// TaskPage is one page of tasks plus pagination metadata.
type TaskPage struct {
	Tasks []domain.Task `json:"tasks"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// TaskStore defines the interface for persisting tasks and subtasks.
//
// Status and progress writes are unconditional: the store does not guard
// transitions out of terminal states. Callers that need stricter semantics
// must check the current state themselves.
type TaskStore interface {
	// CreateTaskWithSubtasks persists the task and all of its subtasks in a
	// single transaction so readers never observe a partial subtask set.
	CreateTaskWithSubtasks(ctx context.Context, task *domain.Task) error

	// GetTask retrieves a task with its subtasks ordered by step index.
	// Returns ErrTaskNotFound if no such task exists.
	GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ListTasks returns a page of tasks ordered newest-first, optionally
	// filtered by entity tag.
	ListTasks(ctx context.Context, filter TaskFilter) (*TaskPage, error)

	// UpdateTaskStatus unconditionally overwrites the task's status and error
	// message, stamping StartedAt on RUNNING and FinishedAt on terminal states.
	UpdateTaskStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus, errMsg string) error

	// UpdateTaskProgress unconditionally overwrites the task's progress.
	UpdateTaskProgress(ctx context.Context, id uuid.UUID, progress int) error

	// SetTaskResult stores the task's structured result payload.
	SetTaskResult(ctx context.Context, id uuid.UUID, result json.RawMessage) error

	// FindSubtask resolves a subtask by its (taskID, stepIndex) composite key.
	// Returns ErrSubtaskNotFound if no such subtask exists.
	FindSubtask(ctx context.Context, taskID uuid.UUID, stepIndex int) (*domain.Subtask, error)

	// UpdateSubtaskStatus unconditionally overwrites a subtask's status and
	// error message, with the same timestamp bookkeeping as tasks.
	UpdateSubtaskStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus, errMsg string) error

	// UpdateSubtaskProgress unconditionally overwrites a subtask's progress.
	UpdateSubtaskProgress(ctx context.Context, id uuid.UUID, progress int) error

	// SetSubtaskResult stores a subtask's structured result payload.
	SetSubtaskResult(ctx context.Context, id uuid.UUID, result json.RawMessage) error

	// ListStalePendingTasks returns tasks still PENDING after olderThan,
	// candidates for reconciliation against the job store.
	ListStalePendingTasks(ctx context.Context, olderThan time.Duration) ([]domain.Task, error)
}
