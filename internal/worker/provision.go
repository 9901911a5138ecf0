// Package worker contains the job handlers: the provisioning worker that
// walks a task through a fixed ordered step list, the batch worker that
// applies independent role operations with isolated failure handling, and
// the simple single-call notification workers.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/clubworks/backend/internal/integration"
	"github.com/clubworks/backend/internal/queue"
	"github.com/clubworks/backend/internal/task"
)

// ProvisionType selects the step table a provisioning job executes.
type ProvisionType string

// Possible provision types
const (
	ProvisionTypeTeam  ProvisionType = "TEAM"
	ProvisionTypeEvent ProvisionType = "EVENT"
)

// ProvisionPayload is the provision-queue job body. TaskID references the
// task created synchronously before the job was enqueued.
type ProvisionPayload struct {
	TaskID        uuid.UUID       `json:"task_id"`
	ProvisionType ProvisionType   `json:"provision_type"`
	Payload       json.RawMessage `json:"payload"`
}

// TeamProvisionInput is the inner payload for TEAM provisioning.
type TeamProvisionInput struct {
	TeamID    string   `json:"team_id"`
	TeamName  string   `json:"team_name"`
	MemberIDs []string `json:"member_ids"`
}

// ErrUnknownProvisionType is returned for provision types without a step table.
var ErrUnknownProvisionType = errors.New("unknown provision type")

// provisionStep is one entry in a provision type's ordered step list.
type provisionStep struct {
	name string
	run  func(ctx context.Context) (string, error)
}

// Provisioner consumes provision-queue jobs. Each job drives exactly one
// task through the step table of its provision type: one subtask per step,
// abort on the first failing step. Completed steps are never rolled back;
// partial provisioning state persists on failure.
type Provisioner struct {
	tasks         *task.Manager
	chat          integration.ChatService
	wiki          integration.WikiService
	storage       integration.StorageService
	sourceControl integration.SourceControlService
	identity      integration.IdentityService
	logger        *slog.Logger
}

// NewProvisioner creates a Provisioner over the given task manager and
// capability interfaces.
func NewProvisioner(
	tasks *task.Manager,
	chat integration.ChatService,
	wiki integration.WikiService,
	storage integration.StorageService,
	sourceControl integration.SourceControlService,
	identity integration.IdentityService,
	logger *slog.Logger,
) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Provisioner{
		tasks:         tasks,
		chat:          chat,
		wiki:          wiki,
		storage:       storage,
		sourceControl: sourceControl,
		identity:      identity,
		logger:        logger.With("component", "provision_worker"),
	}
}

// teamStepNames is the fixed ordered step list for TEAM provisioning. The
// executed steps come from this table, never from whatever subtask names the
// caller declared; StepNames exists so enqueue-time declarations can match.
var teamStepNames = []string{
	"Validate inputs",
	"Create internal records",
	"Set up wiki page",
	"Set up source control team",
	"Set up storage folder",
	"Create chat channel",
	"Sync identity groups",
}

// StepNames returns the subtask names a provisioning job of the given type
// will execute, in order. EVENT currently has no steps: an event job marks
// its task completed immediately.
func StepNames(provisionType ProvisionType) ([]string, error) {
	switch provisionType {
	case ProvisionTypeTeam:
		return append([]string(nil), teamStepNames...), nil
	case ProvisionTypeEvent:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvisionType, provisionType)
	}
}

// Handle processes one provisioning job.
func (p *Provisioner) Handle(ctx context.Context, job *queue.Job) error {
	var payload ProvisionPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal provision payload: %w", err)
	}

	log := p.logger.With(
		"task_id", payload.TaskID,
		"provision_type", payload.ProvisionType,
		"job_id", job.ID,
	)

	if err := p.tasks.MarkTaskRunning(ctx, payload.TaskID); err != nil {
		return fmt.Errorf("failed to mark task running: %w", err)
	}

	steps, err := p.stepsFor(&payload)
	if err != nil {
		log.Error("no step table for provision type", "error", err)
		if markErr := p.tasks.MarkTaskFailed(ctx, payload.TaskID, err.Error()); markErr != nil {
			log.Error("failed to mark task failed", "error", markErr)
		}
		return err
	}

	n := len(steps)
	if n == 0 {
		// Zero steps means immediate completion.
		result, _ := json.Marshal(map[string]string{"message": "no provisioning steps required"})
		if err := p.tasks.MarkTaskCompleted(ctx, payload.TaskID, result); err != nil {
			return fmt.Errorf("failed to mark task completed: %w", err)
		}
		log.Info("provisioning completed with no steps")
		return nil
	}

	for i, step := range steps {
		if err := p.runStep(ctx, payload.TaskID, i, n, step); err != nil {
			log.Error("provisioning aborted",
				"step_index", i,
				"step_name", step.name,
				"error", err)
			if markErr := p.tasks.MarkTaskFailed(ctx, payload.TaskID, err.Error()); markErr != nil {
				log.Error("failed to mark task failed", "error", markErr)
			}
			// Remaining steps are never attempted; completed steps stay as
			// they are. The provision queue does not retry automatically.
			return err
		}
	}

	result, _ := json.Marshal(map[string]any{
		"message": fmt.Sprintf("provisioning completed, %d steps", n),
		"steps":   n,
	})
	if err := p.tasks.MarkTaskCompleted(ctx, payload.TaskID, result); err != nil {
		return fmt.Errorf("failed to mark task completed: %w", err)
	}

	log.Info("provisioning completed", "steps", n)
	return nil
}

// runStep executes one step: subtask RUNNING, the external work, subtask
// COMPLETED, then the parent task's progress.
func (p *Provisioner) runStep(ctx context.Context, taskID uuid.UUID, i, n int, step provisionStep) error {
	if err := p.tasks.MarkSubtaskRunning(ctx, taskID, i); err != nil {
		return fmt.Errorf("step %d (%s): %w", i, step.name, err)
	}

	message, err := step.run(ctx)
	if err != nil {
		stepErr := fmt.Errorf("step %d (%s): %w", i, step.name, err)
		if markErr := p.tasks.MarkSubtaskFailed(ctx, taskID, i, stepErr.Error()); markErr != nil {
			p.logger.Error("failed to mark subtask failed",
				"task_id", taskID,
				"step_index", i,
				"error", markErr)
		}
		return stepErr
	}

	result, _ := json.Marshal(map[string]string{"message": message})
	if err := p.tasks.MarkSubtaskCompleted(ctx, taskID, i, result); err != nil {
		return fmt.Errorf("step %d (%s): %w", i, step.name, err)
	}

	progress := int(math.Round(float64(i+1) / float64(n) * 100))
	if err := p.tasks.UpdateTaskProgress(ctx, taskID, progress); err != nil {
		return fmt.Errorf("step %d (%s): %w", i, step.name, err)
	}

	return nil
}

// stepsFor builds the step table for the job's provision type, binding the
// decoded inner payload into each step closure.
func (p *Provisioner) stepsFor(payload *ProvisionPayload) ([]provisionStep, error) {
	switch payload.ProvisionType {
	case ProvisionTypeTeam:
		var input TeamProvisionInput
		if err := json.Unmarshal(payload.Payload, &input); err != nil {
			return nil, fmt.Errorf("failed to unmarshal team provision input: %w", err)
		}
		return p.teamSteps(&input), nil

	case ProvisionTypeEvent:
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvisionType, payload.ProvisionType)
	}
}

// teamSteps returns the 7-step TEAM table. Order matches teamStepNames.
func (p *Provisioner) teamSteps(input *TeamProvisionInput) []provisionStep {
	return []provisionStep{
		{
			name: teamStepNames[0],
			run: func(ctx context.Context) (string, error) {
				if input.TeamID == "" {
					return "", errors.New("team id is required")
				}
				if input.TeamName == "" {
					return "", errors.New("team name is required")
				}
				return fmt.Sprintf("inputs validated for team %s", input.TeamID), nil
			},
		},
		{
			name: teamStepNames[1],
			run: func(ctx context.Context) (string, error) {
				// The relational team record was written by the API layer
				// before this job was enqueued; this step anchors the task's
				// entity tag to it.
				return fmt.Sprintf("internal records linked for team %s", input.TeamID), nil
			},
		},
		{
			name: teamStepNames[2],
			run: func(ctx context.Context) (string, error) {
				path := "/teams/" + input.TeamID
				pageID, err := p.wiki.GetPageByPath(ctx, path)
				if err != nil {
					return "", err
				}
				if pageID == "" {
					pageID, err = p.wiki.CreatePage(ctx, path, input.TeamName, "")
					if err != nil {
						return "", err
					}
				}
				return fmt.Sprintf("wiki page %s ready", pageID), nil
			},
		},
		{
			name: teamStepNames[3],
			run: func(ctx context.Context) (string, error) {
				teamID, err := p.sourceControl.EnsureTeam(ctx, input.TeamName)
				if err != nil {
					return "", err
				}
				for _, memberID := range input.MemberIDs {
					if err := p.sourceControl.AddMember(ctx, teamID, memberID); err != nil {
						return "", err
					}
				}
				return fmt.Sprintf("source control team %s with %d members", teamID, len(input.MemberIDs)), nil
			},
		},
		{
			name: teamStepNames[4],
			run: func(ctx context.Context) (string, error) {
				folderID, err := p.storage.EnsureFolder(ctx, "/teams/"+input.TeamID)
				if err != nil {
					return "", err
				}
				for _, memberID := range input.MemberIDs {
					if err := p.storage.AddMember(ctx, folderID, memberID); err != nil {
						return "", err
					}
				}
				return fmt.Sprintf("storage folder %s with %d members", folderID, len(input.MemberIDs)), nil
			},
		},
		{
			name: teamStepNames[5],
			run: func(ctx context.Context) (string, error) {
				channelID, err := p.chat.CreateChannel(ctx, input.TeamName)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("chat channel %s created", channelID), nil
			},
		},
		{
			name: teamStepNames[6],
			run: func(ctx context.Context) (string, error) {
				groupID, err := p.identity.EnsureGroup(ctx, input.TeamName)
				if err != nil {
					return "", err
				}
				if err := p.identity.SyncGroups(ctx, map[string][]string{input.TeamName: input.MemberIDs}); err != nil {
					return "", err
				}
				return fmt.Sprintf("identity group %s synced", groupID), nil
			},
		},
	}
}
