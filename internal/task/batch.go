package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/clubworks/backend/internal/domain"
)

// RoleAction distinguishes the two kinds of role operation in a batch.
type RoleAction string

// Possible role actions
const (
	RoleActionAssign RoleAction = "ASSIGN"
	RoleActionRemove RoleAction = "REMOVE"
)

// RoleOperation is one independent role change within a batch task.
// RoleName is optional display data; subtask names fall back to the id.
type RoleOperation struct {
	RoleID   string     `json:"role_id"`
	RoleName string     `json:"role_name,omitempty"`
	Action   RoleAction `json:"action"`
}

// Label returns the human-readable form used in subtask names and results,
// preferring the role name over the raw id.
func (op RoleOperation) Label() string {
	if op.RoleName != "" {
		return op.RoleName
	}
	return op.RoleID
}

// BatchManager specializes task creation for "one task, N independent
// operations" workflows such as updating a user's role set. It adds no
// storage of its own: its value is construction-time shaping (operation →
// subtask name, entity tagging); the runtime methods forward to the Manager.
type BatchManager struct {
	manager *Manager
	logger  *slog.Logger
}

// NewBatchManager creates a new BatchManager on top of the given Manager.
func NewBatchManager(manager *Manager, logger *slog.Logger) *BatchManager {
	if logger == nil {
		logger = slog.Default()
	}

	return &BatchManager{
		manager: manager,
		logger:  logger.With("component", "batch_manager"),
	}
}

// CreateUserRoleTask creates one task covering all the role changes for one
// user. Removals occupy the lowest step indices, additions follow, both in
// caller order, so StepIndex has a deterministic, displayable meaning.
func (b *BatchManager) CreateUserRoleTask(ctx context.Context, userID string, toRemove, toAdd []RoleOperation) (*domain.Task, error) {
	return b.createRoleTask(ctx, domain.EntityTypeDiscordUser, userID,
		fmt.Sprintf("Update roles for user %s", userID), toRemove, toAdd)
}

// CreateTeamRoleTask is the team-scoped variant of CreateUserRoleTask.
func (b *BatchManager) CreateTeamRoleTask(ctx context.Context, teamID string, toRemove, toAdd []RoleOperation) (*domain.Task, error) {
	return b.createRoleTask(ctx, domain.EntityTypeDiscordTeam, teamID,
		fmt.Sprintf("Update roles for team %s", teamID), toRemove, toAdd)
}

func (b *BatchManager) createRoleTask(ctx context.Context, entityType, entityID, name string, toRemove, toAdd []RoleOperation) (*domain.Task, error) {
	subtaskNames := SubtaskNamesForOperations(toRemove, toAdd)

	task, err := b.manager.CreateTask(ctx, CreateTaskParams{
		Name:         name,
		EntityType:   entityType,
		EntityID:     entityID,
		SubtaskNames: subtaskNames,
	})
	if err != nil {
		return nil, err
	}

	b.logger.Debug("batch task created",
		"task_id", task.ID,
		"entity_type", entityType,
		"entity_id", entityID,
		"remove_count", len(toRemove),
		"add_count", len(toAdd))

	return task, nil
}

// SubtaskNamesForOperations builds the subtask name list for a batch of role
// operations: removals first, then additions, preserving caller input order.
func SubtaskNamesForOperations(toRemove, toAdd []RoleOperation) []string {
	names := make([]string, 0, len(toRemove)+len(toAdd))
	for _, op := range toRemove {
		names = append(names, fmt.Sprintf("Remove %s", op.Label()))
	}
	for _, op := range toAdd {
		names = append(names, fmt.Sprintf("Assign %s", op.Label()))
	}
	return names
}

// MarkSubtaskRunning forwards to the Manager.
func (b *BatchManager) MarkSubtaskRunning(ctx context.Context, taskID uuid.UUID, stepIndex int) error {
	return b.manager.MarkSubtaskRunning(ctx, taskID, stepIndex)
}

// MarkSubtaskCompleted forwards to the Manager.
func (b *BatchManager) MarkSubtaskCompleted(ctx context.Context, taskID uuid.UUID, stepIndex int, result json.RawMessage) error {
	return b.manager.MarkSubtaskCompleted(ctx, taskID, stepIndex, result)
}

// MarkSubtaskFailed forwards to the Manager.
func (b *BatchManager) MarkSubtaskFailed(ctx context.Context, taskID uuid.UUID, stepIndex int, message string) error {
	return b.manager.MarkSubtaskFailed(ctx, taskID, stepIndex, message)
}

// MarkBatchTaskRunning forwards to the Manager.
func (b *BatchManager) MarkBatchTaskRunning(ctx context.Context, taskID uuid.UUID) error {
	return b.manager.MarkTaskRunning(ctx, taskID)
}

// MarkBatchTaskCompleted forwards to the Manager.
func (b *BatchManager) MarkBatchTaskCompleted(ctx context.Context, taskID uuid.UUID, result json.RawMessage) error {
	return b.manager.MarkTaskCompleted(ctx, taskID, result)
}

// MarkBatchTaskFailed forwards to the Manager.
func (b *BatchManager) MarkBatchTaskFailed(ctx context.Context, taskID uuid.UUID, message string) error {
	return b.manager.MarkTaskFailed(ctx, taskID, message)
}
