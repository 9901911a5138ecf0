package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/clubworks/backend/internal/api"
)

// setupRouter creates and configures the application router with all routes
// and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}).Handler)

	taskHandler := api.NewTaskHandler(app.taskManager, app.logger)
	queueHandler := api.NewQueueHandler(app.dispatcher, app.logger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/tasks", taskHandler.ListTasks)
		r.Get("/tasks/{id}", taskHandler.GetTask)

		r.Route("/queues/{queue}", func(r chi.Router) {
			r.Get("/stats", queueHandler.GetQueueStats)
			r.Get("/jobs/{id}", queueHandler.GetJobStatus)
			r.Post("/jobs/{id}/retry", queueHandler.RetryJob)
			r.Post("/clean", queueHandler.CleanQueue)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
