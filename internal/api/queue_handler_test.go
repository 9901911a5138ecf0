package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubworks/backend/internal/config"
	"github.com/clubworks/backend/internal/dispatch"
	"github.com/clubworks/backend/internal/mocks"
	"github.com/clubworks/backend/internal/queue"
	"github.com/clubworks/backend/internal/store"
	"github.com/clubworks/backend/internal/task"
	"github.com/clubworks/backend/internal/worker"
)

func newQueueRouter(t *testing.T) (*dispatch.Dispatcher, http.Handler) {
	t.Helper()

	jobStore := mocks.NewMockJobStore()
	manager := task.NewManager(mocks.NewMockTaskStore(), newTestLogger())

	noop := func(ctx context.Context, job *queue.Job) error { return nil }
	dispatcher := dispatch.NewDispatcher(config.QueueConfig{
		BufferSize:           10,
		ProvisionConcurrency: 2,
		NotifyConcurrency:    5,
		SyncConcurrency:      2,
		StalledAfterMinutes:  30,
		RetentionHours:       24,
	}, jobStore, manager, dispatch.Handlers{
		Email:         noop,
		QRCode:        noop,
		SyncGroups:    noop,
		Provision:     noop,
		PaymentStatus: noop,
		Discord:       noop,
	}, newTestLogger())

	handler := NewQueueHandler(dispatcher, newTestLogger())

	r := chi.NewRouter()
	r.Route("/api/queues/{queue}", func(r chi.Router) {
		r.Get("/stats", handler.GetQueueStats)
		r.Get("/jobs/{id}", handler.GetJobStatus)
		r.Post("/jobs/{id}/retry", handler.RetryJob)
		r.Post("/clean", handler.CleanQueue)
	})
	return dispatcher, r
}

func TestQueueHandler_GetQueueStats(t *testing.T) {
	t.Parallel()

	dispatcher, router := newQueueRouter(t)

	_, err := dispatcher.EnqueueEmailJob(context.Background(), worker.EmailPayload{To: "a@b.c"}, queue.Options{})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/queues/email/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var counts store.JobCounts
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &counts))
	assert.Equal(t, 1, counts.Waiting)
	assert.Equal(t, 1, counts.Total)
}

func TestQueueHandler_UnknownQueue(t *testing.T) {
	t.Parallel()

	_, router := newQueueRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/queues/telegraph/stats", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueueHandler_GetJobStatus(t *testing.T) {
	t.Parallel()

	t.Run("existing job", func(t *testing.T) {
		t.Parallel()

		dispatcher, router := newQueueRouter(t)
		jobID, err := dispatcher.EnqueueEmailJob(context.Background(), worker.EmailPayload{To: "a@b.c"}, queue.Options{})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/queues/email/jobs/"+jobID.String(), nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var info dispatch.JobStatusInfo
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
		assert.Equal(t, "queued", info.Status)
		assert.Equal(t, "send-email", info.Name)
	})

	t.Run("pruned job answers not_found with 200", func(t *testing.T) {
		t.Parallel()

		_, router := newQueueRouter(t)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/queues/email/jobs/"+uuid.NewString(), nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var info dispatch.JobStatusInfo
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
		assert.Equal(t, dispatch.JobStatusNotFound, info.Status)
	})

	t.Run("malformed job id is 400", func(t *testing.T) {
		t.Parallel()

		_, router := newQueueRouter(t)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/queues/email/jobs/xyz", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestQueueHandler_RetryJob(t *testing.T) {
	t.Parallel()

	t.Run("missing job is 404", func(t *testing.T) {
		t.Parallel()

		_, router := newQueueRouter(t)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/queues/provision/jobs/"+uuid.NewString()+"/retry", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("non-failed job is 409", func(t *testing.T) {
		t.Parallel()

		dispatcher, router := newQueueRouter(t)
		jobID, err := dispatcher.EnqueueEmailJob(context.Background(), worker.EmailPayload{To: "a@b.c"}, queue.Options{})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/queues/email/jobs/"+jobID.String()+"/retry", nil))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestQueueHandler_CleanQueue(t *testing.T) {
	t.Parallel()

	_, router := newQueueRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/queues/email/clean", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Zero(t, body["removed"])
}
