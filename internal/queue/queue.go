package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clubworks/backend/internal/store"
)

// Common errors returned by the Queue
var (
	ErrQueueClosed = errors.New("queue is closed")
	ErrQueueFull   = errors.New("queue is full")
	ErrNoHandler   = errors.New("queue has no handler registered")
)

// Config holds the per-queue policy: concurrency ceiling, default attempt
// count and backoff base, and stalled-job detection settings.
type Config struct {
	// Name identifies the queue; it is also the durable partition key.
	Name string

	// Concurrency is the number of worker goroutines draining this queue.
	// If zero or negative, defaults to 1.
	Concurrency int

	// BufferSize is the in-memory channel capacity. If zero, defaults to 100.
	BufferSize int

	// DefaultAttempts is the maximum delivery count applied to jobs that do
	// not override it. If zero, defaults to 1 (no retry).
	DefaultAttempts int

	// DefaultBackoff is the exponential backoff base applied between retry
	// deliveries. Zero means immediate re-delivery.
	DefaultBackoff time.Duration

	// StalledAfter marks active jobs older than this as stalled. If zero,
	// the stalled monitor is disabled.
	StalledAfter time.Duration

	// StalledCheckInterval defines how often to scan for stalled jobs.
	// If zero, defaults to 1 minute.
	StalledCheckInterval time.Duration
}

// Queue is one named job queue. Jobs are persisted before delivery so a
// crash between enqueue and pickup loses nothing; the in-memory channel is
// only a delivery mechanism, re-fed from the store at startup.
type Queue struct {
	config  Config
	store   store.JobStore
	handler Handler
	jobChan chan *Job
	logger  *slog.Logger

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	mu     sync.Mutex
	closed bool

	// Lifecycle event hooks; nil hooks are skipped.
	onCompleted func(job *Job)
	onFailed    func(job *Job, err error)
	onStalled   func(rec store.JobRecord)
}

// New creates a queue with the given policy and durable store. The handler
// must be registered with SetHandler before Start.
func New(config Config, jobStore store.JobStore, logger *slog.Logger) *Queue {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 100
	}
	if config.DefaultAttempts <= 0 {
		config.DefaultAttempts = 1
	}
	if config.StalledCheckInterval == 0 {
		config.StalledCheckInterval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Queue{
		config:     config,
		store:      jobStore,
		jobChan:    make(chan *Job, config.BufferSize),
		logger:     logger.With("queue", config.Name),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Name returns the queue's name.
func (q *Queue) Name() string {
	return q.config.Name
}

// SetHandler registers the function that processes this queue's jobs.
func (q *Queue) SetHandler(handler Handler) {
	q.handler = handler
}

// OnCompleted registers a hook fired after a job completes.
func (q *Queue) OnCompleted(fn func(job *Job)) {
	q.onCompleted = fn
}

// OnFailed registers a hook fired after a job exhausts its attempts.
func (q *Queue) OnFailed(fn func(job *Job, err error)) {
	q.onFailed = fn
}

// OnStalled registers a hook fired for jobs stuck in the active state.
func (q *Queue) OnStalled(fn func(rec store.JobRecord)) {
	q.onStalled = fn
}

// Enqueue persists a job and hands it to the workers. The job row is written
// before channel delivery so introspection sees it immediately and a crash
// cannot lose it. Returns the job id.
func (q *Queue) Enqueue(ctx context.Context, name string, payload []byte, opts Options) (uuid.UUID, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return uuid.Nil, ErrQueueClosed
	}
	q.mu.Unlock()

	job := &Job{
		ID:          uuid.New(),
		Queue:       q.config.Name,
		Name:        name,
		Payload:     payload,
		Priority:    opts.Priority,
		MaxAttempts: q.config.DefaultAttempts,
		Backoff:     q.config.DefaultBackoff,
		CreatedAt:   time.Now().UTC(),
	}
	if opts.Attempts > 0 {
		job.MaxAttempts = opts.Attempts
	}
	if opts.Backoff > 0 {
		job.Backoff = opts.Backoff
	}
	if opts.TaskID != uuid.Nil {
		job.TaskID = uuid.NullUUID{UUID: opts.TaskID, Valid: true}
	}

	status := store.JobStatusQueued
	if opts.Delay > 0 {
		status = store.JobStatusDelayed
	}

	if err := q.store.SaveJob(ctx, job.record(status)); err != nil {
		return uuid.Nil, fmt.Errorf("failed to save job: %w", err)
	}

	if opts.Delay > 0 {
		q.releaseAfter(job, opts.Delay)
		q.logger.Debug("job enqueued with delay",
			"job_id", job.ID,
			"job_name", job.Name,
			"delay", opts.Delay)
		return job.ID, nil
	}

	if err := q.deliver(job); err != nil {
		return uuid.Nil, err
	}

	q.logger.Debug("job enqueued",
		"job_id", job.ID,
		"job_name", job.Name,
		"queue_len", len(q.jobChan),
		"queue_cap", cap(q.jobChan))

	return job.ID, nil
}

// Start recovers persisted jobs into the channel and launches the workers
// and the stalled-job monitor.
func (q *Queue) Start() error {
	if q.handler == nil {
		return ErrNoHandler
	}

	if err := q.recover(); err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}

	for i := 0; i < q.config.Concurrency; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	if q.config.StalledAfter > 0 {
		q.wg.Add(1)
		go q.stalledMonitor()
	}

	return nil
}

// Close stops intake, lets in-flight jobs finish and waits for the workers.
// Jobs still buffered in the channel remain queued in the store and are
// recovered on the next start.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.cancelFunc()
	q.wg.Wait()
	q.logger.Info("queue closed")
}

// RequeueFailed resets a failed job and re-delivers it. Used by the operator
// retry path. Returns store.ErrJobNotFound if the job no longer exists.
func (q *Queue) RequeueFailed(ctx context.Context, jobID uuid.UUID) error {
	rec, err := q.store.GetJob(ctx, q.config.Name, jobID)
	if err != nil {
		return err
	}

	if rec.Status != store.JobStatusFailed {
		return fmt.Errorf("job %s is %s, only failed jobs can be retried", jobID, rec.Status)
	}

	if err := q.store.UpdateJobStatus(ctx, jobID, store.JobStatusQueued, 0, ""); err != nil {
		return err
	}

	job := jobFromRecord(rec)
	job.Attempts = 0

	if err := q.deliver(job); err != nil {
		return err
	}

	q.logger.Info("failed job requeued", "job_id", jobID, "job_name", rec.Name)
	return nil
}

// recover re-feeds persisted jobs into the channel: queued jobs as-is,
// active and delayed jobs reset to queued (their workers and delay timers
// died with the previous process).
func (q *Queue) recover() error {
	ctx := context.Background()

	var toDeliver []store.JobRecord
	for _, status := range []store.JobStatus{store.JobStatusQueued, store.JobStatusActive, store.JobStatusDelayed} {
		jobs, err := q.store.ListJobsByStatus(ctx, q.config.Name, status)
		if err != nil {
			return fmt.Errorf("failed to list %s jobs: %w", status, err)
		}

		for _, rec := range jobs {
			if status != store.JobStatusQueued {
				if err := q.store.UpdateJobStatus(ctx, rec.ID, store.JobStatusQueued, rec.Attempts, "reset after recovery"); err != nil {
					q.logger.Error("failed to reset job for recovery",
						"job_id", rec.ID,
						"previous_status", status,
						"error", err)
					continue
				}
			}
			toDeliver = append(toDeliver, rec)
		}
	}

	if len(toDeliver) > 0 {
		q.logger.Info("recovering persisted jobs", "count", len(toDeliver))
	}

	for i := range toDeliver {
		select {
		case q.jobChan <- jobFromRecord(&toDeliver[i]):
		default:
			q.logger.Error("failed to requeue recovered job, queue is full",
				"job_id", toDeliver[i].ID,
				"job_name", toDeliver[i].Name)
		}
	}

	return nil
}

// deliver performs the non-blocking channel hand-off.
func (q *Queue) deliver(job *Job) error {
	select {
	case q.jobChan <- job:
		return nil
	default:
		// The job row stays queued in the store; it is recovered on restart.
		return fmt.Errorf("%w: capacity %d reached", ErrQueueFull, cap(q.jobChan))
	}
}

// releaseAfter arms a timer that flips a delayed job to queued and delivers it.
func (q *Queue) releaseAfter(job *Job, delay time.Duration) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-q.ctx.Done():
			// The delayed row is recovered as queued on the next start.
			return
		case <-timer.C:
		}

		ctx := context.Background()
		if err := q.store.UpdateJobStatus(ctx, job.ID, store.JobStatusQueued, job.Attempts, ""); err != nil {
			q.logger.Error("failed to release delayed job", "job_id", job.ID, "error", err)
			return
		}

		if err := q.deliver(job); err != nil {
			q.logger.Error("failed to deliver delayed job", "job_id", job.ID, "error", err)
		}
	}()
}

// worker drains the channel until the queue is closed.
func (q *Queue) worker(id int) {
	defer q.wg.Done()

	q.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-q.ctx.Done():
			q.logger.Debug("stopping worker", "worker_id", id)
			return

		case job := <-q.jobChan:
			q.processJob(job, id)
		}
	}
}

// processJob runs one delivery attempt and applies the retry policy.
func (q *Queue) processJob(job *Job, workerID int) {
	ctx := context.Background()
	job.Attempts++

	log := q.logger.With(
		"job_id", job.ID,
		"job_name", job.Name,
		"attempt", job.Attempts,
		"max_attempts", job.MaxAttempts,
		"worker_id", workerID,
	)

	if err := q.store.UpdateJobStatus(ctx, job.ID, store.JobStatusActive, job.Attempts, ""); err != nil {
		log.Error("failed to mark job active", "error", err)
		return
	}

	log.Info("processing job")

	err := q.handler(ctx, job)
	if err == nil {
		if updateErr := q.store.UpdateJobStatus(ctx, job.ID, store.JobStatusCompleted, job.Attempts, ""); updateErr != nil {
			log.Error("failed to mark job completed", "error", updateErr)
		}
		log.Info("job completed")
		if q.onCompleted != nil {
			q.onCompleted(job)
		}
		return
	}

	log.Error("job attempt failed", "error", err)

	if job.Attempts < job.MaxAttempts {
		backoff := q.backoffFor(job)
		if updateErr := q.store.UpdateJobStatus(ctx, job.ID, store.JobStatusDelayed, job.Attempts, err.Error()); updateErr != nil {
			log.Error("failed to mark job delayed for retry", "error", updateErr)
			return
		}

		log.Info("retrying job", "backoff", backoff)
		q.releaseAfter(job, backoff)
		return
	}

	if updateErr := q.store.UpdateJobStatus(ctx, job.ID, store.JobStatusFailed, job.Attempts, err.Error()); updateErr != nil {
		log.Error("failed to mark job failed", "error", updateErr)
	}

	log.Error("job failed permanently", "error", err)
	if q.onFailed != nil {
		q.onFailed(job, err)
	}
}

// backoffFor computes the exponential delay before the next attempt:
// base * 2^(attempts-1).
func (q *Queue) backoffFor(job *Job) time.Duration {
	if job.Backoff <= 0 {
		return 0
	}

	backoff := job.Backoff
	for i := 1; i < job.Attempts; i++ {
		backoff *= 2
	}
	return backoff
}

// stalledMonitor periodically flags jobs stuck in the active state. Stalled
// jobs are surfaced through the OnStalled hook and logs only; there is no
// automatic recovery while the process is running.
func (q *Queue) stalledMonitor() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.config.StalledCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return

		case <-ticker.C:
			ctx := context.Background()

			active, err := q.store.ListJobsByStatus(ctx, q.config.Name, store.JobStatusActive)
			if err != nil {
				q.logger.Error("failed to check for stalled jobs", "error", err)
				continue
			}

			cutoff := time.Now().UTC().Add(-q.config.StalledAfter)
			for _, rec := range active {
				if rec.ProcessedAt == nil || rec.ProcessedAt.After(cutoff) {
					continue
				}

				q.logger.Warn("job appears stalled",
					"job_id", rec.ID,
					"job_name", rec.Name,
					"processed_at", rec.ProcessedAt)
				if q.onStalled != nil {
					q.onStalled(rec)
				}
			}
		}
	}
}
