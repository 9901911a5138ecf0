package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clubworks/backend/internal/api/shared"
	"github.com/clubworks/backend/internal/dispatch"
	"github.com/clubworks/backend/internal/store"
)

// QueueHandler serves the queue and job introspection endpoints.
type QueueHandler struct {
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// NewQueueHandler creates a new QueueHandler
func NewQueueHandler(dispatcher *dispatch.Dispatcher, logger *slog.Logger) *QueueHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &QueueHandler{
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("component", "queue_handler")),
	}
}

// queueID resolves the {queue} URL parameter; a miss writes the error
// response and reports false.
func (h *QueueHandler) queueID(w http.ResponseWriter, r *http.Request) (dispatch.QueueID, bool) {
	id, err := dispatch.ParseQueueID(chi.URLParam(r, "queue"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusNotFound, "Unknown queue")
		return 0, false
	}
	return id, true
}

// GetQueueStats handles GET /api/queues/{queue}/stats requests.
func (h *QueueHandler) GetQueueStats(w http.ResponseWriter, r *http.Request) {
	id, ok := h.queueID(w, r)
	if !ok {
		return
	}

	counts, err := h.dispatcher.GetQueueStats(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get queue stats", "queue", id.String(), "error", err)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to get queue stats")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, counts)
}

// GetJobStatus handles GET /api/queues/{queue}/jobs/{id} requests. A job
// that never existed or was already pruned gets a 200 with status
// "not_found" rather than a 404, so pollers see a stable shape.
func (h *QueueHandler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.queueID(w, r)
	if !ok {
		return
	}

	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job ID")
		return
	}

	info, err := h.dispatcher.GetJobStatus(r.Context(), id, jobID)
	if err != nil {
		h.logger.Error("failed to get job status", "queue", id.String(), "job_id", jobID, "error", err)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to get job status")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, info)
}

// RetryJob handles POST /api/queues/{queue}/jobs/{id}/retry requests.
func (h *QueueHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.queueID(w, r)
	if !ok {
		return
	}

	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job ID")
		return
	}

	if err := h.dispatcher.RetryFailedJob(r.Context(), id, jobID); err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Job not found")
			return
		}

		h.logger.Error("failed to retry job", "queue", id.String(), "job_id", jobID, "error", err)
		shared.RespondWithError(w, r, http.StatusConflict, err.Error())
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "requeued"})
}

// CleanQueue handles POST /api/queues/{queue}/clean requests, pruning
// completed jobs older than the retention window.
func (h *QueueHandler) CleanQueue(w http.ResponseWriter, r *http.Request) {
	id, ok := h.queueID(w, r)
	if !ok {
		return
	}

	removed, err := h.dispatcher.ClearCompletedJobs(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to clean queue", "queue", id.String(), "error", err)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to clean queue")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[string]int{"removed": removed})
}
