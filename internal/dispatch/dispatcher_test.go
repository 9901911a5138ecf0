package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubworks/backend/internal/config"
	"github.com/clubworks/backend/internal/domain"
	"github.com/clubworks/backend/internal/mocks"
	"github.com/clubworks/backend/internal/queue"
	"github.com/clubworks/backend/internal/store"
	"github.com/clubworks/backend/internal/task"
	"github.com/clubworks/backend/internal/worker"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func testQueueConfig() config.QueueConfig {
	return config.QueueConfig{
		BufferSize:           10,
		ProvisionConcurrency: 2,
		NotifyConcurrency:    5,
		SyncConcurrency:      2,
		StalledAfterMinutes:  30,
		RetentionHours:       24,
	}
}

func noopHandlers() Handlers {
	noop := func(ctx context.Context, job *queue.Job) error { return nil }
	return Handlers{
		Email:         noop,
		QRCode:        noop,
		SyncGroups:    noop,
		Provision:     noop,
		PaymentStatus: noop,
		Discord:       noop,
	}
}

type dispatcherFixture struct {
	taskStore  *mocks.MockTaskStore
	jobStore   *mocks.MockJobStore
	manager    *task.Manager
	dispatcher *Dispatcher
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()

	f := &dispatcherFixture{
		taskStore: mocks.NewMockTaskStore(),
		jobStore:  mocks.NewMockJobStore(),
	}
	f.manager = task.NewManager(f.taskStore, newTestLogger())
	f.dispatcher = NewDispatcher(testQueueConfig(), f.jobStore, f.manager, noopHandlers(), newTestLogger())
	return f
}

func TestParseQueueID(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]QueueID{
		"email":          QueueEmail,
		"qr-code":        QueueQRCode,
		"sync-groups":    QueueSyncGroups,
		"provision":      QueueProvision,
		"payment-status": QueuePaymentStatus,
		"discord":        QueueDiscord,
	} {
		got, err := ParseQueueID(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got)
		assert.Equal(t, name, got.String())
	}

	_, err := ParseQueueID("telegraph")
	assert.ErrorIs(t, err, ErrUnknownQueue)
}

func TestDispatcher_PolicyDefaults(t *testing.T) {
	t.Parallel()

	f := newDispatcherFixture(t)
	ctx := context.Background()

	emailID, err := f.dispatcher.EnqueueEmailJob(ctx, worker.EmailPayload{To: "a@b.c"}, queue.Options{})
	require.NoError(t, err)
	rec := f.jobStore.Job(emailID)
	assert.Equal(t, 3, rec.MaxAttempts)
	assert.Equal(t, 2*time.Second, rec.Backoff)

	qrID, err := f.dispatcher.EnqueueQRCodeJob(ctx, worker.QRCodePayload{TicketID: "t"}, queue.Options{})
	require.NoError(t, err)
	rec = f.jobStore.Job(qrID)
	assert.Equal(t, 2, rec.MaxAttempts)
	assert.Equal(t, time.Second, rec.Backoff)

	syncID, err := f.dispatcher.EnqueueSyncGroupsJob(ctx, worker.GroupSyncPayload{}, queue.Options{})
	require.NoError(t, err)
	rec = f.jobStore.Job(syncID)
	assert.Equal(t, 5, rec.MaxAttempts)
	assert.Equal(t, 5*time.Second, rec.Backoff)

	payID, err := f.dispatcher.EnqueuePaymentStatusJob(ctx, worker.PaymentStatusPayload{PaymentID: "p"}, queue.Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, f.jobStore.Job(payID).MaxAttempts)
}

func TestDispatcher_EnqueueProvisionTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("two-phase create then enqueue", func(t *testing.T) {
		t.Parallel()

		f := newDispatcherFixture(t)

		input, _ := json.Marshal(worker.TeamProvisionInput{TeamID: "team-1", TeamName: "Rocket"})
		jobID, taskID, err := f.dispatcher.EnqueueProvisionTask(ctx, ProvisionTaskParams{
			ProvisionType: worker.ProvisionTypeTeam,
			Name:          "Provision team Rocket",
			EntityID:      "team-1",
			Payload:       input,
		})
		require.NoError(t, err)

		// The task is pollable and PENDING before any worker pickup, with
		// one subtask per step the worker will actually execute.
		stored := f.taskStore.Task(taskID)
		require.NotNil(t, stored)
		assert.Equal(t, domain.TaskStatusPending, stored.Status)
		assert.Equal(t, domain.EntityTypeTeam, stored.EntityType)

		names, err := worker.StepNames(worker.ProvisionTypeTeam)
		require.NoError(t, err)
		require.Len(t, stored.Subtasks, len(names))
		for i, sub := range stored.Subtasks {
			assert.Equal(t, names[i], sub.Name)
		}

		// The job row links back to the task and carries provision policy:
		// a single attempt, no backoff.
		rec := f.jobStore.Job(jobID)
		require.NotNil(t, rec)
		assert.Equal(t, "provision", rec.Queue)
		assert.Equal(t, 1, rec.MaxAttempts)
		require.True(t, rec.TaskID.Valid)
		assert.Equal(t, taskID, rec.TaskID.UUID)

		var payload worker.ProvisionPayload
		require.NoError(t, json.Unmarshal(rec.Payload, &payload))
		assert.Equal(t, taskID, payload.TaskID)
		assert.Equal(t, worker.ProvisionTypeTeam, payload.ProvisionType)
	})

	t.Run("event task has no subtasks", func(t *testing.T) {
		t.Parallel()

		f := newDispatcherFixture(t)

		_, taskID, err := f.dispatcher.EnqueueProvisionTask(ctx, ProvisionTaskParams{
			ProvisionType: worker.ProvisionTypeEvent,
			Name:          "Provision event",
			EntityID:      "event-1",
			Payload:       json.RawMessage(`{}`),
		})
		require.NoError(t, err)

		stored := f.taskStore.Task(taskID)
		assert.Equal(t, domain.EntityTypeEvent, stored.EntityType)
		assert.Empty(t, stored.Subtasks)
	})

	t.Run("enqueue failure still returns the task id", func(t *testing.T) {
		t.Parallel()

		f := newDispatcherFixture(t)
		f.jobStore.SaveJobFn = func(ctx context.Context, job *store.JobRecord) error {
			return errors.New("job table unavailable")
		}

		jobID, taskID, err := f.dispatcher.EnqueueProvisionTask(ctx, ProvisionTaskParams{
			ProvisionType: worker.ProvisionTypeTeam,
			Name:          "Provision team",
			EntityID:      "team-1",
			Payload:       json.RawMessage(`{}`),
		})
		require.Error(t, err)
		assert.Equal(t, uuid.Nil, jobID)

		// The orphaned PENDING task is the reconciler's problem, but the
		// caller still gets its id to poll.
		assert.NotEqual(t, uuid.Nil, taskID)
		assert.Equal(t, domain.TaskStatusPending, f.taskStore.Task(taskID).Status)
	})

	t.Run("unknown provision type creates nothing", func(t *testing.T) {
		t.Parallel()

		f := newDispatcherFixture(t)

		_, _, err := f.dispatcher.EnqueueProvisionTask(ctx, ProvisionTaskParams{
			ProvisionType: worker.ProvisionType("WORKSHOP"),
			Name:          "Provision workshop",
			EntityID:      "w-1",
		})
		require.ErrorIs(t, err, worker.ErrUnknownProvisionType)

		page, err := f.manager.ListTasks(ctx, store.TaskFilter{})
		require.NoError(t, err)
		assert.Zero(t, page.Total)
	})
}

func TestDispatcher_EnqueueRoleBatchJob(t *testing.T) {
	t.Parallel()

	f := newDispatcherFixture(t)
	taskID := uuid.New()

	jobID, err := f.dispatcher.EnqueueRoleBatchJob(context.Background(), worker.RoleBatchPayload{
		UserID: "user-1",
		TaskID: taskID,
		OperationsToAdd: []task.RoleOperation{
			{RoleID: "r1", Action: task.RoleActionAssign},
		},
	}, queue.Options{})
	require.NoError(t, err)

	rec := f.jobStore.Job(jobID)
	require.NotNil(t, rec)
	assert.Equal(t, "discord", rec.Queue)
	assert.Equal(t, 3, rec.MaxAttempts)
	require.True(t, rec.TaskID.Valid)
	assert.Equal(t, taskID, rec.TaskID.UUID)
}

func TestDispatcher_GetJobStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("existing job", func(t *testing.T) {
		t.Parallel()

		f := newDispatcherFixture(t)
		jobID, err := f.dispatcher.EnqueueEmailJob(ctx, worker.EmailPayload{To: "a@b.c"}, queue.Options{})
		require.NoError(t, err)

		info, err := f.dispatcher.GetJobStatus(ctx, QueueEmail, jobID)
		require.NoError(t, err)
		assert.Equal(t, jobID.String(), info.ID)
		assert.Equal(t, "send-email", info.Name)
		assert.Equal(t, string(store.JobStatusQueued), info.Status)
		assert.NotNil(t, info.CreatedAt)
	})

	t.Run("missing job reports not_found", func(t *testing.T) {
		t.Parallel()

		f := newDispatcherFixture(t)
		info, err := f.dispatcher.GetJobStatus(ctx, QueueEmail, uuid.New())
		require.NoError(t, err)
		assert.Equal(t, JobStatusNotFound, info.Status)
	})

	t.Run("job in a different queue is not visible", func(t *testing.T) {
		t.Parallel()

		f := newDispatcherFixture(t)
		jobID, err := f.dispatcher.EnqueueEmailJob(ctx, worker.EmailPayload{To: "a@b.c"}, queue.Options{})
		require.NoError(t, err)

		info, err := f.dispatcher.GetJobStatus(ctx, QueueDiscord, jobID)
		require.NoError(t, err)
		assert.Equal(t, JobStatusNotFound, info.Status)
	})
}

func TestDispatcher_GetQueueStats(t *testing.T) {
	t.Parallel()

	f := newDispatcherFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.dispatcher.EnqueueEmailJob(ctx, worker.EmailPayload{To: "a@b.c"}, queue.Options{})
		require.NoError(t, err)
	}

	counts, err := f.dispatcher.GetQueueStats(ctx, QueueEmail)
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Waiting)
	assert.Equal(t, 3, counts.Total)

	counts, err = f.dispatcher.GetQueueStats(ctx, QueueDiscord)
	require.NoError(t, err)
	assert.Zero(t, counts.Total)
}

func TestDispatcher_RetryFailedJob(t *testing.T) {
	t.Parallel()

	f := newDispatcherFixture(t)
	err := f.dispatcher.RetryFailedJob(context.Background(), QueueProvision, uuid.New())
	assert.ErrorIs(t, err, store.ErrJobNotFound)
}

func TestDispatcher_ClearCompletedJobs(t *testing.T) {
	t.Parallel()

	f := newDispatcherFixture(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	recent := time.Now().UTC()

	oldID := uuid.New()
	require.NoError(t, f.jobStore.SaveJob(ctx, &store.JobRecord{
		ID: oldID, Queue: "email", Name: "send-email",
		Status: store.JobStatusCompleted, CreatedAt: old, FinishedAt: &old,
	}))
	recentID := uuid.New()
	require.NoError(t, f.jobStore.SaveJob(ctx, &store.JobRecord{
		ID: recentID, Queue: "email", Name: "send-email",
		Status: store.JobStatusCompleted, CreatedAt: recent, FinishedAt: &recent,
	}))

	removed, err := f.dispatcher.ClearCompletedJobs(ctx, QueueEmail)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.Nil(t, f.jobStore.Job(oldID))
	assert.NotNil(t, f.jobStore.Job(recentID))
}
