package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubworks/backend/internal/domain"
	"github.com/clubworks/backend/internal/mocks"
	"github.com/clubworks/backend/internal/store"
	"github.com/clubworks/backend/internal/task"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func newTaskRouter(t *testing.T) (*mocks.MockTaskStore, *task.Manager, http.Handler) {
	t.Helper()

	taskStore := mocks.NewMockTaskStore()
	manager := task.NewManager(taskStore, newTestLogger())
	handler := NewTaskHandler(manager, newTestLogger())

	r := chi.NewRouter()
	r.Get("/api/tasks", handler.ListTasks)
	r.Get("/api/tasks/{id}", handler.GetTask)
	return taskStore, manager, r
}

func TestTaskHandler_GetTask(t *testing.T) {
	t.Parallel()

	t.Run("returns the task with subtasks", func(t *testing.T) {
		t.Parallel()

		_, manager, router := newTaskRouter(t)
		created, err := manager.CreateTask(context.Background(), task.CreateTaskParams{
			Name:         "Provision team",
			EntityType:   domain.EntityTypeTeam,
			EntityID:     "team-1",
			SubtaskNames: []string{"first", "second"},
		})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks/"+created.ID.String(), nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var got domain.Task
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, domain.TaskStatusPending, got.Status)
		require.Len(t, got.Subtasks, 2)
		assert.Equal(t, "first", got.Subtasks[0].Name)
	})

	t.Run("missing task is 404", func(t *testing.T) {
		t.Parallel()

		_, _, router := newTaskRouter(t)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks/"+uuid.NewString(), nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed id is 400", func(t *testing.T) {
		t.Parallel()

		_, _, router := newTaskRouter(t)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks/not-a-uuid", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTaskHandler_ListTasks(t *testing.T) {
	t.Parallel()

	seed := func(t *testing.T, manager *task.Manager, entityType, entityID string) {
		t.Helper()
		_, err := manager.CreateTask(context.Background(), task.CreateTaskParams{
			Name:       "work",
			EntityType: entityType,
			EntityID:   entityID,
		})
		require.NoError(t, err)
	}

	t.Run("filters by entity tag", func(t *testing.T) {
		t.Parallel()

		_, manager, router := newTaskRouter(t)
		seed(t, manager, domain.EntityTypeTeam, "team-1")
		seed(t, manager, domain.EntityTypeTeam, "team-2")
		seed(t, manager, domain.EntityTypeEvent, "event-1")

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks?entity_type=TEAM", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var page store.TaskPage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		assert.Equal(t, 2, page.Total)

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks?entity_type=TEAM&entity_id=team-2", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		assert.Equal(t, 1, page.Total)
	})

	t.Run("rejects bad pagination", func(t *testing.T) {
		t.Parallel()

		_, _, router := newTaskRouter(t)

		for _, target := range []string{
			"/api/tasks?page=0",
			"/api/tasks?page=abc",
			"/api/tasks?limit=0",
			"/api/tasks?limit=500",
		} {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		}
	})
}
