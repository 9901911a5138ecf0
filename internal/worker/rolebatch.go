package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/clubworks/backend/internal/integration"
	"github.com/clubworks/backend/internal/queue"
	"github.com/clubworks/backend/internal/task"
)

// RoleBatchPayload is the discord-queue job body: all role changes for one
// user, plus the task created for progress visibility.
type RoleBatchPayload struct {
	UserID             string               `json:"user_id"`
	OperationsToRemove []task.RoleOperation `json:"operations_to_remove"`
	OperationsToAdd    []task.RoleOperation `json:"operations_to_add"`
	TaskID             uuid.UUID            `json:"task_id"`
}

// OperationResult records the outcome of one role operation.
type OperationResult struct {
	StepIndex int    `json:"step_index"`
	Action    string `json:"action"`
	Role      string `json:"role"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// BatchResult is the aggregate stored on the batch task. Success is the only
// place total or partial failure is visible at the task level: the task's
// own status is COMPLETED whenever all operations were attempted.
type BatchResult struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Results []OperationResult `json:"results"`
}

// RoleBatcher consumes role-batch jobs. Operations execute sequentially in
// caller order, removals before additions, each isolated: a failing
// operation is recorded on its subtask and the loop continues. The discord
// queue runs this handler at concurrency 1; a second in-flight mutation for
// the same session can read stale role state and silently no-op.
type RoleBatcher struct {
	batch  *task.BatchManager
	chat   integration.ChatService
	logger *slog.Logger
}

// NewRoleBatcher creates a RoleBatcher over the batch façade and the chat service.
func NewRoleBatcher(batch *task.BatchManager, chat integration.ChatService, logger *slog.Logger) *RoleBatcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &RoleBatcher{
		batch:  batch,
		chat:   chat,
		logger: logger.With("component", "role_batch_worker"),
	}
}

// Handle processes one role-batch job.
//
// Errors inside an operation are isolated; errors outside that isolation
// (payload decode, writing the final aggregate) fail the batch task and
// propagate to the queue's retry policy.
func (w *RoleBatcher) Handle(ctx context.Context, job *queue.Job) error {
	var payload RoleBatchPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal role batch payload: %w", err)
	}

	log := w.logger.With(
		"task_id", payload.TaskID,
		"user_id", payload.UserID,
		"job_id", job.ID,
	)

	if err := w.batch.MarkBatchTaskRunning(ctx, payload.TaskID); err != nil {
		return fmt.Errorf("failed to mark batch task running: %w", err)
	}

	total := len(payload.OperationsToRemove) + len(payload.OperationsToAdd)
	results := make([]OperationResult, 0, total)

	// Removals occupy the lowest step indices, additions follow, matching
	// the subtask order the façade declared at creation time.
	stepIndex := 0
	for _, op := range payload.OperationsToRemove {
		results = append(results, w.runOperation(ctx, payload.TaskID, payload.UserID, stepIndex, task.RoleActionRemove, op))
		stepIndex++
	}
	for _, op := range payload.OperationsToAdd {
		results = append(results, w.runOperation(ctx, payload.TaskID, payload.UserID, stepIndex, task.RoleActionAssign, op))
		stepIndex++
	}

	successCount := 0
	for _, res := range results {
		if res.Success {
			successCount++
		}
	}

	aggregate := BatchResult{
		Success: successCount == total,
		Message: fmt.Sprintf("%d/%d role operations succeeded", successCount, total),
		Results: results,
	}

	resultJSON, err := json.Marshal(aggregate)
	if err != nil {
		if markErr := w.batch.MarkBatchTaskFailed(ctx, payload.TaskID, err.Error()); markErr != nil {
			log.Error("failed to mark batch task failed", "error", markErr)
		}
		return fmt.Errorf("failed to marshal batch result: %w", err)
	}

	// The batch task is always COMPLETED once every operation was attempted,
	// even when every operation failed; only the aggregate's Success flag
	// and the per-subtask statuses carry the outcome.
	if err := w.batch.MarkBatchTaskCompleted(ctx, payload.TaskID, resultJSON); err != nil {
		if markErr := w.batch.MarkBatchTaskFailed(ctx, payload.TaskID, err.Error()); markErr != nil {
			log.Error("failed to mark batch task failed", "error", markErr)
		}
		return fmt.Errorf("failed to mark batch task completed: %w", err)
	}

	log.Info("role batch processed",
		"success_count", successCount,
		"total_count", total)
	return nil
}

// runOperation executes one isolated role operation. Any error, including
// failures from the subtask bookkeeping itself, is captured in the returned
// result; nothing escapes to abort the batch.
func (w *RoleBatcher) runOperation(ctx context.Context, taskID uuid.UUID, userID string, stepIndex int, action task.RoleAction, op task.RoleOperation) OperationResult {
	result := OperationResult{
		StepIndex: stepIndex,
		Action:    string(action),
		Role:      op.Label(),
	}

	fail := func(err error) OperationResult {
		result.Error = err.Error()
		if markErr := w.batch.MarkSubtaskFailed(ctx, taskID, stepIndex, err.Error()); markErr != nil {
			w.logger.Error("failed to mark subtask failed",
				"task_id", taskID,
				"step_index", stepIndex,
				"error", markErr)
		}
		return result
	}

	if err := w.batch.MarkSubtaskRunning(ctx, taskID, stepIndex); err != nil {
		return fail(err)
	}

	var err error
	switch action {
	case task.RoleActionRemove:
		err = w.chat.RemoveRole(ctx, userID, op.RoleID)
	case task.RoleActionAssign:
		err = w.chat.AssignRole(ctx, userID, op.RoleID)
	}
	if err != nil {
		return fail(err)
	}

	label, _ := json.Marshal(map[string]string{
		"message": fmt.Sprintf("%s %s", actionVerb(action), op.Label()),
	})
	if err := w.batch.MarkSubtaskCompleted(ctx, taskID, stepIndex, label); err != nil {
		return fail(err)
	}

	result.Success = true
	return result
}

func actionVerb(action task.RoleAction) string {
	if action == task.RoleActionRemove {
		return "Removed"
	}
	return "Assigned"
}
