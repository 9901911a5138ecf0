package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clubworks/backend/internal/store"
)

// ReconcilerConfig holds configuration for the reconciler.
type ReconcilerConfig struct {
	// CheckInterval defines how often to scan for orphaned tasks.
	// If zero, defaults to 5 minutes.
	CheckInterval time.Duration

	// StaleTaskAge defines how long a task may stay PENDING without a
	// corresponding job before it is considered orphaned.
	StaleTaskAge time.Duration
}

// DefaultReconcilerConfig returns a ReconcilerConfig with reasonable defaults.
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		CheckInterval: 5 * time.Minute,
		StaleTaskAge:  30 * time.Minute,
	}
}

// Reconciler closes the gap left by the non-transactional create-then-enqueue
// sequence: a task row is written before its job, so a crash between the two
// writes leaves a PENDING task no worker will ever pick up. The reconciler
// periodically finds PENDING tasks older than StaleTaskAge with no job row
// referencing them and marks them FAILED.
type Reconciler struct {
	manager    *Manager
	taskStore  store.TaskStore
	jobStore   store.JobStore
	config     ReconcilerConfig
	logger     *slog.Logger
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewReconciler creates a new Reconciler.
func NewReconciler(manager *Manager, taskStore store.TaskStore, jobStore store.JobStore, config ReconcilerConfig, logger *slog.Logger) *Reconciler {
	if config.CheckInterval == 0 {
		config.CheckInterval = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Reconciler{
		manager:    manager,
		taskStore:  taskStore,
		jobStore:   jobStore,
		config:     config,
		logger:     logger.With("component", "task_reconciler"),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start launches the periodic reconciliation loop.
func (r *Reconciler) Start() {
	r.wg.Add(1)
	go r.loop()
}

// Stop terminates the loop and waits for the in-flight pass to finish.
func (r *Reconciler) Stop() {
	r.cancelFunc()
	r.wg.Wait()
}

func (r *Reconciler) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			if err := r.ReconcileOnce(r.ctx); err != nil {
				r.logger.Error("reconciliation pass failed", "error", err)
			}
		}
	}
}

// ReconcileOnce runs a single reconciliation pass.
func (r *Reconciler) ReconcileOnce(ctx context.Context) error {
	staleTasks, err := r.taskStore.ListStalePendingTasks(ctx, r.config.StaleTaskAge)
	if err != nil {
		return fmt.Errorf("failed to list stale pending tasks: %w", err)
	}

	if len(staleTasks) == 0 {
		return nil
	}

	r.logger.Info("found stale pending tasks", "count", len(staleTasks))

	for _, staleTask := range staleTasks {
		hasJob, err := r.jobStore.ExistsJobForTask(ctx, staleTask.ID)
		if err != nil {
			r.logger.Error("failed to check job existence for stale task",
				"task_id", staleTask.ID,
				"error", err)
			continue
		}

		if hasJob {
			// A job exists but has not been picked up yet; leave it to the queue.
			continue
		}

		message := fmt.Sprintf("stale: no job enqueued within %s of task creation", r.config.StaleTaskAge)
		if err := r.manager.MarkTaskFailed(ctx, staleTask.ID, message); err != nil {
			r.logger.Error("failed to mark orphaned task as failed",
				"task_id", staleTask.ID,
				"error", err)
			continue
		}

		r.logger.Warn("marked orphaned task as failed",
			"task_id", staleTask.ID,
			"task_name", staleTask.Name,
			"created_at", staleTask.CreatedAt)
	}

	return nil
}
