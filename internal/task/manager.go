// Package task implements the state-machine operations over tasks and
// subtasks: creation, status transitions, progress tracking and queries.
package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/clubworks/backend/internal/domain"
	"github.com/clubworks/backend/internal/store"
)

// CreateTaskParams holds everything needed to create a task together with
// its planned subtasks. SubtaskNames fixes the subtask list's length and
// order; each name becomes one PENDING subtask with StepIndex matching its
// slice position.
type CreateTaskParams struct {
	Name         string
	Description  string
	EntityType   string
	EntityID     string
	SubtaskNames []string
}

// Manager performs the state-machine operations over tasks and subtasks.
//
// All status and progress writes are unconditional: completing an already
// failed task silently overwrites the previous terminal fields. This laxity
// is deliberate and covered by tests; callers that need guarded transitions
// must check state themselves.
type Manager struct {
	store  store.TaskStore
	logger *slog.Logger
}

// NewManager creates a new task Manager.
func NewManager(taskStore store.TaskStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		store:  taskStore,
		logger: logger.With("component", "task_manager"),
	}
}

// CreateTask creates a PENDING task plus one PENDING subtask per name in
// params.SubtaskNames, atomically, and returns the task with its subtasks
// populated. The returned id is caller-visible before any work starts.
func (m *Manager) CreateTask(ctx context.Context, params CreateTaskParams) (*domain.Task, error) {
	task, err := domain.NewTask(params.Name, params.Description, params.EntityType, params.EntityID, params.SubtaskNames)
	if err != nil {
		return nil, fmt.Errorf("failed to build task: %w", err)
	}

	if err := m.store.CreateTaskWithSubtasks(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	m.logger.Info("task created",
		"task_id", task.ID,
		"name", task.Name,
		"entity_type", task.EntityType,
		"entity_id", task.EntityID,
		"subtask_count", len(task.Subtasks))

	return task, nil
}

// MarkTaskRunning transitions the task to RUNNING.
func (m *Manager) MarkTaskRunning(ctx context.Context, taskID uuid.UUID) error {
	return m.store.UpdateTaskStatus(ctx, taskID, domain.TaskStatusRunning, "")
}

// MarkTaskCompleted transitions the task to COMPLETED, forces progress to
// 100 and stores the optional result payload.
func (m *Manager) MarkTaskCompleted(ctx context.Context, taskID uuid.UUID, result json.RawMessage) error {
	if err := m.store.UpdateTaskStatus(ctx, taskID, domain.TaskStatusCompleted, ""); err != nil {
		return err
	}

	if err := m.store.UpdateTaskProgress(ctx, taskID, 100); err != nil {
		return err
	}

	if len(result) > 0 {
		if err := m.store.SetTaskResult(ctx, taskID, result); err != nil {
			return err
		}
	}

	return nil
}

// MarkTaskFailed transitions the task to FAILED with the given message.
// Progress is left wherever the worker last set it.
func (m *Manager) MarkTaskFailed(ctx context.Context, taskID uuid.UUID, message string) error {
	return m.store.UpdateTaskStatus(ctx, taskID, domain.TaskStatusFailed, message)
}

// UpdateTaskProgress overwrites the task's progress. No 0-100 bounds
// validation happens at this layer.
func (m *Manager) UpdateTaskProgress(ctx context.Context, taskID uuid.UUID, progress int) error {
	return m.store.UpdateTaskProgress(ctx, taskID, progress)
}

// MarkSubtaskRunning transitions the subtask at (taskID, stepIndex) to
// RUNNING. Fails with store.ErrSubtaskNotFound if the step does not exist;
// nothing is mutated in that case.
func (m *Manager) MarkSubtaskRunning(ctx context.Context, taskID uuid.UUID, stepIndex int) error {
	sub, err := m.store.FindSubtask(ctx, taskID, stepIndex)
	if err != nil {
		return err
	}

	return m.store.UpdateSubtaskStatus(ctx, sub.ID, domain.TaskStatusRunning, "")
}

// MarkSubtaskCompleted transitions the subtask at (taskID, stepIndex) to
// COMPLETED with progress 100 and an optional result payload.
func (m *Manager) MarkSubtaskCompleted(ctx context.Context, taskID uuid.UUID, stepIndex int, result json.RawMessage) error {
	sub, err := m.store.FindSubtask(ctx, taskID, stepIndex)
	if err != nil {
		return err
	}

	if err := m.store.UpdateSubtaskStatus(ctx, sub.ID, domain.TaskStatusCompleted, ""); err != nil {
		return err
	}

	if err := m.store.UpdateSubtaskProgress(ctx, sub.ID, 100); err != nil {
		return err
	}

	if len(result) > 0 {
		if err := m.store.SetSubtaskResult(ctx, sub.ID, result); err != nil {
			return err
		}
	}

	return nil
}

// MarkSubtaskFailed transitions the subtask at (taskID, stepIndex) to FAILED
// with the given message.
func (m *Manager) MarkSubtaskFailed(ctx context.Context, taskID uuid.UUID, stepIndex int, message string) error {
	sub, err := m.store.FindSubtask(ctx, taskID, stepIndex)
	if err != nil {
		return err
	}

	return m.store.UpdateSubtaskStatus(ctx, sub.ID, domain.TaskStatusFailed, message)
}

// UpdateSubtaskProgress overwrites the progress of the subtask at
// (taskID, stepIndex).
func (m *Manager) UpdateSubtaskProgress(ctx context.Context, taskID uuid.UUID, stepIndex int, progress int) error {
	sub, err := m.store.FindSubtask(ctx, taskID, stepIndex)
	if err != nil {
		return err
	}

	return m.store.UpdateSubtaskProgress(ctx, sub.ID, progress)
}

// GetTask retrieves a task with its subtasks. Returns store.ErrTaskNotFound
// if no such task exists.
func (m *Manager) GetTask(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	return m.store.GetTask(ctx, taskID)
}

// ListTasks returns a page of tasks ordered newest-first.
func (m *Manager) ListTasks(ctx context.Context, filter store.TaskFilter) (*store.TaskPage, error) {
	return m.store.ListTasks(ctx, filter)
}
