package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubworks/backend/internal/domain"
	"github.com/clubworks/backend/internal/mocks"
	"github.com/clubworks/backend/internal/queue"
	"github.com/clubworks/backend/internal/task"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type provisionFixture struct {
	taskStore     *mocks.MockTaskStore
	manager       *task.Manager
	chat          *mocks.MockChatService
	wiki          *mocks.MockWikiService
	storage       *mocks.MockStorageService
	sourceControl *mocks.MockSourceControlService
	identity      *mocks.MockIdentityService
	provisioner   *Provisioner
}

func newProvisionFixture(t *testing.T) *provisionFixture {
	t.Helper()

	f := &provisionFixture{
		taskStore:     mocks.NewMockTaskStore(),
		chat:          &mocks.MockChatService{},
		wiki:          &mocks.MockWikiService{},
		storage:       &mocks.MockStorageService{},
		sourceControl: &mocks.MockSourceControlService{},
		identity:      &mocks.MockIdentityService{},
	}
	f.manager = task.NewManager(f.taskStore, newTestLogger())
	f.provisioner = NewProvisioner(f.manager, f.chat, f.wiki, f.storage, f.sourceControl, f.identity, newTestLogger())
	return f
}

// createProvisionTask mirrors the dispatcher's enqueue-time task creation:
// one subtask per step name.
func (f *provisionFixture) createProvisionTask(t *testing.T, provisionType ProvisionType) uuid.UUID {
	t.Helper()

	names, err := StepNames(provisionType)
	require.NoError(t, err)

	entityType := domain.EntityTypeTeam
	if provisionType == ProvisionTypeEvent {
		entityType = domain.EntityTypeEvent
	}

	created, err := f.manager.CreateTask(context.Background(), task.CreateTaskParams{
		Name:         "Provision",
		EntityType:   entityType,
		EntityID:     "entity-1",
		SubtaskNames: names,
	})
	require.NoError(t, err)
	return created.ID
}

func provisionJob(t *testing.T, taskID uuid.UUID, provisionType ProvisionType, input any) *queue.Job {
	t.Helper()

	inner, err := json.Marshal(input)
	require.NoError(t, err)
	payload, err := json.Marshal(ProvisionPayload{
		TaskID:        taskID,
		ProvisionType: provisionType,
		Payload:       inner,
	})
	require.NoError(t, err)

	return &queue.Job{ID: uuid.New(), Queue: "provision", Name: "provision", Payload: payload}
}

func TestStepNames(t *testing.T) {
	t.Parallel()

	teamNames, err := StepNames(ProvisionTypeTeam)
	require.NoError(t, err)
	assert.Len(t, teamNames, 7)
	assert.Equal(t, "Validate inputs", teamNames[0])
	assert.Equal(t, "Sync identity groups", teamNames[6])

	eventNames, err := StepNames(ProvisionTypeEvent)
	require.NoError(t, err)
	assert.Empty(t, eventNames)

	_, err = StepNames(ProvisionType("WORKSHOP"))
	assert.ErrorIs(t, err, ErrUnknownProvisionType)
}

func TestProvisioner_TeamHappyPath(t *testing.T) {
	t.Parallel()

	f := newProvisionFixture(t)
	taskID := f.createProvisionTask(t, ProvisionTypeTeam)

	job := provisionJob(t, taskID, ProvisionTypeTeam, TeamProvisionInput{
		TeamID:    "team-1",
		TeamName:  "Rocket",
		MemberIDs: []string{"u1", "u2"},
	})

	require.NoError(t, f.provisioner.Handle(context.Background(), job))

	stored := f.taskStore.Task(taskID)
	assert.Equal(t, domain.TaskStatusCompleted, stored.Status)
	assert.Equal(t, 100, stored.Progress)

	for i := 0; i < 7; i++ {
		sub := f.taskStore.Subtask(taskID, i)
		assert.Equal(t, domain.TaskStatusCompleted, sub.Status, "step %d", i)
		assert.Equal(t, 100, sub.Progress, "step %d", i)
	}

	assert.Equal(t, []string{"Rocket"}, f.chat.CreatedChannels)
	assert.Equal(t, 1, f.identity.SyncCalls)
}

func TestProvisioner_AbortOnFirstFailure(t *testing.T) {
	t.Parallel()

	f := newProvisionFixture(t)
	taskID := f.createProvisionTask(t, ProvisionTypeTeam)

	// Step 3 (source control) fails; steps 0..2 succeed, steps 4..6 must
	// never run.
	f.sourceControl.EnsureTeamFn = func(ctx context.Context, name string) (string, error) {
		return "", errors.New("source control unreachable")
	}

	job := provisionJob(t, taskID, ProvisionTypeTeam, TeamProvisionInput{
		TeamID:   "team-1",
		TeamName: "Rocket",
	})

	err := f.provisioner.Handle(context.Background(), job)
	require.ErrorContains(t, err, "source control unreachable")

	stored := f.taskStore.Task(taskID)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "source control unreachable")

	for i := 0; i < 3; i++ {
		assert.Equal(t, domain.TaskStatusCompleted, f.taskStore.Subtask(taskID, i).Status, "step %d", i)
	}
	assert.Equal(t, domain.TaskStatusFailed, f.taskStore.Subtask(taskID, 3).Status)
	for i := 4; i < 7; i++ {
		assert.Equal(t, domain.TaskStatusPending, f.taskStore.Subtask(taskID, i).Status, "step %d", i)
	}

	// Progress reflects the 3 completed steps of 7: round(3/7*100) = 43.
	assert.Equal(t, 43, stored.Progress)

	// Nothing after the failing step touched its external system.
	assert.Empty(t, f.chat.CreatedChannels)
	assert.Zero(t, f.identity.SyncCalls)
}

func TestProvisioner_ValidationFailureStopsEverything(t *testing.T) {
	t.Parallel()

	f := newProvisionFixture(t)
	taskID := f.createProvisionTask(t, ProvisionTypeTeam)

	job := provisionJob(t, taskID, ProvisionTypeTeam, TeamProvisionInput{
		TeamID: "", // missing
	})

	err := f.provisioner.Handle(context.Background(), job)
	require.ErrorContains(t, err, "team id is required")

	stored := f.taskStore.Task(taskID)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
	assert.Equal(t, 0, stored.Progress)
	assert.Equal(t, domain.TaskStatusFailed, f.taskStore.Subtask(taskID, 0).Status)
	assert.Equal(t, domain.TaskStatusPending, f.taskStore.Subtask(taskID, 1).Status)
}

func TestProvisioner_EventCompletesImmediately(t *testing.T) {
	t.Parallel()

	f := newProvisionFixture(t)
	taskID := f.createProvisionTask(t, ProvisionTypeEvent)

	job := provisionJob(t, taskID, ProvisionTypeEvent, map[string]string{"event_id": "ev-1"})

	require.NoError(t, f.provisioner.Handle(context.Background(), job))

	stored := f.taskStore.Task(taskID)
	assert.Equal(t, domain.TaskStatusCompleted, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	assert.Empty(t, stored.Subtasks)
	assert.JSONEq(t, `{"message":"no provisioning steps required"}`, string(stored.Result))
}

func TestProvisioner_UnknownProvisionType(t *testing.T) {
	t.Parallel()

	f := newProvisionFixture(t)
	created, err := f.manager.CreateTask(context.Background(), task.CreateTaskParams{
		Name:       "Provision",
		EntityType: domain.EntityTypeTeam,
		EntityID:   "entity-1",
	})
	require.NoError(t, err)

	job := provisionJob(t, created.ID, ProvisionType("WORKSHOP"), map[string]string{})

	err = f.provisioner.Handle(context.Background(), job)
	require.ErrorIs(t, err, ErrUnknownProvisionType)
	assert.Equal(t, domain.TaskStatusFailed, f.taskStore.Task(created.ID).Status)
}

func TestProvisioner_MissingTaskRow(t *testing.T) {
	t.Parallel()

	f := newProvisionFixture(t)
	job := provisionJob(t, uuid.New(), ProvisionTypeTeam, TeamProvisionInput{TeamID: "t", TeamName: "n"})

	err := f.provisioner.Handle(context.Background(), job)
	assert.ErrorContains(t, err, "failed to mark task running")
}

func TestProvisioner_WikiReusesExistingPage(t *testing.T) {
	t.Parallel()

	f := newProvisionFixture(t)
	taskID := f.createProvisionTask(t, ProvisionTypeTeam)

	createCalls := 0
	f.wiki.GetPageByPathFn = func(ctx context.Context, path string) (string, error) {
		return "existing-page", nil
	}
	f.wiki.CreatePageFn = func(ctx context.Context, path, title, content string) (string, error) {
		createCalls++
		return "new-page", nil
	}

	job := provisionJob(t, taskID, ProvisionTypeTeam, TeamProvisionInput{TeamID: "team-1", TeamName: "Rocket"})
	require.NoError(t, f.provisioner.Handle(context.Background(), job))

	assert.Zero(t, createCalls, "existing page must not be recreated")
}
