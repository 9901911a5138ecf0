package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a task or subtask
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending   TaskStatus = "PENDING"
	TaskStatusRunning   TaskStatus = "RUNNING"
	TaskStatusCompleted TaskStatus = "COMPLETED"
	TaskStatusFailed    TaskStatus = "FAILED"
)

// Entity tag constants linking tasks back to the domain object they provision
const (
	EntityTypeTeam        = "TEAM"
	EntityTypeEvent       = "EVENT"
	EntityTypeDiscordUser = "DISCORD_USER"
	EntityTypeDiscordTeam = "DISCORD_TEAM"
)

// Common validation errors for Task and Subtask
var (
	ErrEmptyTaskID       = errors.New("task ID cannot be empty")
	ErrEmptyTaskName     = errors.New("task name cannot be empty")
	ErrInvalidStatus     = errors.New("invalid task status")
	ErrNegativeStepIndex = errors.New("subtask step index cannot be negative")
)

// Task represents one logical unit of asynchronous work. It carries overall
// status and caller-set progress, and owns an ordered list of subtasks fixed
// at creation time. Progress is not derived from subtask completion.
type Task struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	EntityType  string          `json:"entity_type,omitempty"`
	EntityID    string          `json:"entity_id,omitempty"`
	Status      TaskStatus      `json:"status"`
	Progress    int             `json:"progress"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
	Subtasks    []Subtask       `json:"subtasks,omitempty"`
}

// Subtask is one named step or independent operation within a task,
// addressed by (TaskID, StepIndex). Its status and progress are independent
// of the parent task; nothing propagates automatically.
type Subtask struct {
	ID         uuid.UUID       `json:"id"`
	TaskID     uuid.UUID       `json:"task_id"`
	StepIndex  int             `json:"step_index"`
	Name       string          `json:"name"`
	Status     TaskStatus      `json:"status"`
	Progress   int             `json:"progress"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// NewTask creates a pending task with progress 0 and one pending subtask per
// name in subtaskNames, StepIndex matching the slice position.
// Returns an error if validation fails.
func NewTask(name, description, entityType, entityID string, subtaskNames []string) (*Task, error) {
	now := time.Now().UTC()

	task := &Task{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		EntityType:  entityType,
		EntityID:    entityID,
		Status:      TaskStatusPending,
		Progress:    0,
		CreatedAt:   now,
	}

	for i, subtaskName := range subtaskNames {
		task.Subtasks = append(task.Subtasks, Subtask{
			ID:        uuid.New(),
			TaskID:    task.ID,
			StepIndex: i,
			Name:      subtaskName,
			Status:    TaskStatusPending,
			Progress:  0,
			CreatedAt: now,
		})
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.Name == "" {
		return ErrEmptyTaskName
	}

	if !IsValidTaskStatus(t.Status) {
		return ErrInvalidStatus
	}

	for i := range t.Subtasks {
		if err := t.Subtasks[i].Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks if the Subtask has valid data.
func (s *Subtask) Validate() error {
	if s.ID == uuid.Nil || s.TaskID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if s.Name == "" {
		return ErrEmptyTaskName
	}

	if s.StepIndex < 0 {
		return ErrNegativeStepIndex
	}

	if !IsValidTaskStatus(s.Status) {
		return ErrInvalidStatus
	}

	return nil
}

// IsTerminal reports whether the status is COMPLETED or FAILED. The model
// does not reject transitions out of a terminal state; callers that care
// must check explicitly.
func (ts TaskStatus) IsTerminal() bool {
	return ts == TaskStatusCompleted || ts == TaskStatusFailed
}

// IsValidTaskStatus checks if the given status is a valid TaskStatus.
func IsValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}
