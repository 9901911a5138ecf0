package task

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubworks/backend/internal/domain"
	"github.com/clubworks/backend/internal/mocks"
	"github.com/clubworks/backend/internal/store"
)

func TestReconciler_ReconcileOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	// A stale age of zero makes every PENDING task a candidate immediately.
	config := ReconcilerConfig{CheckInterval: time.Hour, StaleTaskAge: 0}

	createTask := func(t *testing.T, manager *Manager) uuid.UUID {
		t.Helper()
		created, err := manager.CreateTask(ctx, CreateTaskParams{
			Name:       "Provision team",
			EntityType: domain.EntityTypeTeam,
			EntityID:   "team-9",
		})
		require.NoError(t, err)
		return created.ID
	}

	t.Run("orphaned pending task is failed", func(t *testing.T) {
		t.Parallel()

		taskStore := mocks.NewMockTaskStore()
		jobStore := mocks.NewMockJobStore()
		manager := NewManager(taskStore, newTestLogger())
		reconciler := NewReconciler(manager, taskStore, jobStore, config, newTestLogger())

		id := createTask(t, manager)

		require.NoError(t, reconciler.ReconcileOnce(ctx))

		stored := taskStore.Task(id)
		assert.Equal(t, domain.TaskStatusFailed, stored.Status)
		assert.Contains(t, stored.Error, "stale: no job enqueued")
	})

	t.Run("pending task with a job row is left alone", func(t *testing.T) {
		t.Parallel()

		taskStore := mocks.NewMockTaskStore()
		jobStore := mocks.NewMockJobStore()
		manager := NewManager(taskStore, newTestLogger())
		reconciler := NewReconciler(manager, taskStore, jobStore, config, newTestLogger())

		id := createTask(t, manager)
		require.NoError(t, jobStore.SaveJob(ctx, &store.JobRecord{
			ID:        uuid.New(),
			Queue:     "provision",
			Name:      "provision",
			Status:    store.JobStatusQueued,
			TaskID:    uuid.NullUUID{UUID: id, Valid: true},
			CreatedAt: time.Now().UTC(),
		}))

		require.NoError(t, reconciler.ReconcileOnce(ctx))

		assert.Equal(t, domain.TaskStatusPending, taskStore.Task(id).Status)
	})

	t.Run("running and terminal tasks are never candidates", func(t *testing.T) {
		t.Parallel()

		taskStore := mocks.NewMockTaskStore()
		jobStore := mocks.NewMockJobStore()
		manager := NewManager(taskStore, newTestLogger())
		reconciler := NewReconciler(manager, taskStore, jobStore, config, newTestLogger())

		running := createTask(t, manager)
		require.NoError(t, manager.MarkTaskRunning(ctx, running))
		completed := createTask(t, manager)
		require.NoError(t, manager.MarkTaskCompleted(ctx, completed, nil))

		require.NoError(t, reconciler.ReconcileOnce(ctx))

		assert.Equal(t, domain.TaskStatusRunning, taskStore.Task(running).Status)
		assert.Equal(t, domain.TaskStatusCompleted, taskStore.Task(completed).Status)
	})
}

func TestReconciler_StartStop(t *testing.T) {
	t.Parallel()

	taskStore := mocks.NewMockTaskStore()
	jobStore := mocks.NewMockJobStore()
	manager := NewManager(taskStore, newTestLogger())

	reconciler := NewReconciler(manager, taskStore, jobStore, ReconcilerConfig{
		CheckInterval: 10 * time.Millisecond,
		StaleTaskAge:  0,
	}, newTestLogger())

	id, err := manager.CreateTask(context.Background(), CreateTaskParams{
		Name:       "orphan",
		EntityType: domain.EntityTypeTeam,
		EntityID:   "team-1",
	})
	require.NoError(t, err)

	reconciler.Start()
	defer reconciler.Stop()

	assert.Eventually(t, func() bool {
		return taskStore.Task(id.ID).Status == domain.TaskStatusFailed
	}, time.Second, 10*time.Millisecond)
}
