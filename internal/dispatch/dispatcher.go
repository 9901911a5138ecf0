// Package dispatch owns the set of background job queues and the typed
// enqueue surface the rest of the application uses. Queues are held as
// static fields addressed by a closed QueueID enum, so every dispatch path
// is checked at compile time and there is no "unknown queue" case at
// runtime.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clubworks/backend/internal/config"
	"github.com/clubworks/backend/internal/domain"
	"github.com/clubworks/backend/internal/queue"
	"github.com/clubworks/backend/internal/store"
	"github.com/clubworks/backend/internal/task"
	"github.com/clubworks/backend/internal/worker"
)

// QueueID identifies one of the application's queues.
type QueueID int

// The full set of queues. Adding a queue means adding a constant here, a
// field on Dispatcher and a case in the switches below; the compiler flags
// any call site left behind.
const (
	QueueEmail QueueID = iota
	QueueQRCode
	QueueSyncGroups
	QueueProvision
	QueuePaymentStatus
	QueueDiscord
)

// String returns the queue's durable partition name.
func (id QueueID) String() string {
	switch id {
	case QueueEmail:
		return "email"
	case QueueQRCode:
		return "qr-code"
	case QueueSyncGroups:
		return "sync-groups"
	case QueueProvision:
		return "provision"
	case QueuePaymentStatus:
		return "payment-status"
	case QueueDiscord:
		return "discord"
	default:
		return fmt.Sprintf("QueueID(%d)", int(id))
	}
}

// ErrUnknownQueue is returned when a queue name from an external caller
// does not match any queue.
var ErrUnknownQueue = fmt.Errorf("unknown queue")

// ParseQueueID maps an external queue name to its QueueID. Only the HTTP
// layer needs this; internal callers use the constants directly.
func ParseQueueID(name string) (QueueID, error) {
	switch name {
	case "email":
		return QueueEmail, nil
	case "qr-code":
		return QueueQRCode, nil
	case "sync-groups":
		return QueueSyncGroups, nil
	case "provision":
		return QueueProvision, nil
	case "payment-status":
		return QueuePaymentStatus, nil
	case "discord":
		return QueueDiscord, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownQueue, name)
	}
}

// Handlers bundles the per-queue job handlers wired in at construction.
type Handlers struct {
	Email         queue.Handler
	QRCode        queue.Handler
	SyncGroups    queue.Handler
	Provision     queue.Handler
	PaymentStatus queue.Handler
	Discord       queue.Handler
}

// Dispatcher owns the application's queues and exposes typed enqueue and
// introspection operations over them.
type Dispatcher struct {
	email         *queue.Queue
	qrCode        *queue.Queue
	syncGroups    *queue.Queue
	provision     *queue.Queue
	paymentStatus *queue.Queue
	discord       *queue.Queue

	jobStore  store.JobStore
	manager   *task.Manager
	retention time.Duration
	logger    *slog.Logger
}

// NewDispatcher builds the queues with their policies and registers the
// handlers. Concurrency ceilings come from configuration except for the
// discord queue, which stays at 1 so role mutations against the chat
// service never interleave.
func NewDispatcher(
	cfg config.QueueConfig,
	jobStore store.JobStore,
	manager *task.Manager,
	handlers Handlers,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "dispatcher")

	stalledAfter := time.Duration(cfg.StalledAfterMinutes) * time.Minute

	build := func(id QueueID, concurrency, attempts int, backoff time.Duration, handler queue.Handler) *queue.Queue {
		q := queue.New(queue.Config{
			Name:            id.String(),
			Concurrency:     concurrency,
			BufferSize:      cfg.BufferSize,
			DefaultAttempts: attempts,
			DefaultBackoff:  backoff,
			StalledAfter:    stalledAfter,
		}, jobStore, logger)
		q.SetHandler(handler)
		return q
	}

	return &Dispatcher{
		email:         build(QueueEmail, cfg.NotifyConcurrency, 3, 2*time.Second, handlers.Email),
		qrCode:        build(QueueQRCode, cfg.NotifyConcurrency, 2, time.Second, handlers.QRCode),
		syncGroups:    build(QueueSyncGroups, cfg.SyncConcurrency, 5, 5*time.Second, handlers.SyncGroups),
		provision:     build(QueueProvision, cfg.ProvisionConcurrency, 1, 0, handlers.Provision),
		paymentStatus: build(QueuePaymentStatus, cfg.NotifyConcurrency, 3, 2*time.Second, handlers.PaymentStatus),
		discord:       build(QueueDiscord, 1, 3, 2*time.Second, handlers.Discord),
		jobStore:      jobStore,
		manager:       manager,
		retention:     time.Duration(cfg.RetentionHours) * time.Hour,
		logger:        logger,
	}
}

// queueFor resolves a QueueID to its handle.
func (d *Dispatcher) queueFor(id QueueID) *queue.Queue {
	switch id {
	case QueueEmail:
		return d.email
	case QueueQRCode:
		return d.qrCode
	case QueueSyncGroups:
		return d.syncGroups
	case QueueProvision:
		return d.provision
	case QueuePaymentStatus:
		return d.paymentStatus
	case QueueDiscord:
		return d.discord
	default:
		panic(fmt.Sprintf("no queue for %s", id))
	}
}

// Start recovers and starts every queue. A queue that fails to start stops
// the whole startup; partially started queues are closed by the caller's
// shutdown path.
func (d *Dispatcher) Start() error {
	for _, q := range d.queues() {
		if err := q.Start(); err != nil {
			return fmt.Errorf("failed to start %s queue: %w", q.Name(), err)
		}
	}
	d.logger.Info("all queues started")
	return nil
}

// Close shuts down every queue, waiting for in-flight jobs.
func (d *Dispatcher) Close() {
	for _, q := range d.queues() {
		q.Close()
	}
	d.logger.Info("all queues closed")
}

func (d *Dispatcher) queues() []*queue.Queue {
	return []*queue.Queue{d.email, d.qrCode, d.syncGroups, d.provision, d.paymentStatus, d.discord}
}

// EnqueueEmailJob queues one outbound email.
func (d *Dispatcher) EnqueueEmailJob(ctx context.Context, payload worker.EmailPayload, opts queue.Options) (uuid.UUID, error) {
	return d.enqueueJSON(ctx, d.email, "send-email", payload, opts)
}

// EnqueueQRCodeJob queues one QR code generation.
func (d *Dispatcher) EnqueueQRCodeJob(ctx context.Context, payload worker.QRCodePayload, opts queue.Options) (uuid.UUID, error) {
	return d.enqueueJSON(ctx, d.qrCode, "generate-qr-code", payload, opts)
}

// EnqueueSyncGroupsJob queues one identity-group reconciliation.
func (d *Dispatcher) EnqueueSyncGroupsJob(ctx context.Context, payload worker.GroupSyncPayload, opts queue.Options) (uuid.UUID, error) {
	return d.enqueueJSON(ctx, d.syncGroups, "sync-groups", payload, opts)
}

// EnqueuePaymentStatusJob queues one payment status check.
func (d *Dispatcher) EnqueuePaymentStatusJob(ctx context.Context, payload worker.PaymentStatusPayload, opts queue.Options) (uuid.UUID, error) {
	return d.enqueueJSON(ctx, d.paymentStatus, "check-payment-status", payload, opts)
}

// EnqueueRoleBatchJob queues one role-operation batch on the serialized
// discord queue. The payload's TaskID must reference a task created
// beforehand, typically through task.BatchManager.
func (d *Dispatcher) EnqueueRoleBatchJob(ctx context.Context, payload worker.RoleBatchPayload, opts queue.Options) (uuid.UUID, error) {
	opts.TaskID = payload.TaskID
	return d.enqueueJSON(ctx, d.discord, "role-batch", payload, opts)
}

// ProvisionTaskParams describes one provisioning request.
type ProvisionTaskParams struct {
	ProvisionType worker.ProvisionType
	Name          string
	Description   string
	EntityID      string
	Payload       json.RawMessage
}

// EnqueueProvisionTask creates the task record first and then queues the
// provisioning job referencing it. The two writes are deliberately not
// atomic: the task id returns to the caller even if the enqueue fails, so
// there is always something to poll, and the reconciler fails tasks whose
// job never made it into the queue.
func (d *Dispatcher) EnqueueProvisionTask(ctx context.Context, params ProvisionTaskParams) (jobID, taskID uuid.UUID, err error) {
	subtaskNames, err := worker.StepNames(params.ProvisionType)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}

	entityType := domain.EntityTypeTeam
	if params.ProvisionType == worker.ProvisionTypeEvent {
		entityType = domain.EntityTypeEvent
	}

	t, err := d.manager.CreateTask(ctx, task.CreateTaskParams{
		Name:         params.Name,
		Description:  params.Description,
		EntityType:   entityType,
		EntityID:     params.EntityID,
		SubtaskNames: subtaskNames,
	})
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("failed to create provisioning task: %w", err)
	}

	payload := worker.ProvisionPayload{
		TaskID:        t.ID,
		ProvisionType: params.ProvisionType,
		Payload:       params.Payload,
	}

	jobID, err = d.enqueueJSON(ctx, d.provision, "provision", payload, queue.Options{TaskID: t.ID})
	if err != nil {
		// The task stays PENDING; the reconciler marks it failed once it
		// exceeds the stale age without a matching job.
		d.logger.Error("task created but job enqueue failed",
			"task_id", t.ID,
			"provision_type", params.ProvisionType,
			"error", err)
		return uuid.Nil, t.ID, err
	}

	return jobID, t.ID, nil
}

func (d *Dispatcher) enqueueJSON(ctx context.Context, q *queue.Queue, name string, payload any, opts queue.Options) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal %s payload: %w", name, err)
	}
	return q.Enqueue(ctx, name, data, opts)
}

// JobStatusInfo is the normalized job view returned to callers regardless
// of queue.
type JobStatusInfo struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Status       string          `json:"status"`
	Progress     int             `json:"progress"`
	FailedReason string          `json:"failed_reason,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	CreatedAt    *time.Time      `json:"created_at,omitempty"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

// JobStatusNotFound is the Status value for jobs that do not exist, whether
// never enqueued or already pruned.
const JobStatusNotFound = "not_found"

// GetJobStatus returns the normalized view of one job. A missing job is not
// an error; it reports status "not_found" so pollers of pruned jobs get a
// stable answer.
func (d *Dispatcher) GetJobStatus(ctx context.Context, id QueueID, jobID uuid.UUID) (*JobStatusInfo, error) {
	rec, err := d.jobStore.GetJob(ctx, id.String(), jobID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return &JobStatusInfo{
				ID:     jobID.String(),
				Status: JobStatusNotFound,
			}, nil
		}
		return nil, err
	}

	created := rec.CreatedAt
	return &JobStatusInfo{
		ID:           rec.ID.String(),
		Name:         rec.Name,
		Status:       string(rec.Status),
		Progress:     rec.Progress,
		FailedReason: rec.FailedReason,
		Data:         rec.Payload,
		CreatedAt:    &created,
		ProcessedAt:  rec.ProcessedAt,
		FinishedAt:   rec.FinishedAt,
	}, nil
}

// GetQueueStats returns per-status job counts for one queue.
func (d *Dispatcher) GetQueueStats(ctx context.Context, id QueueID) (*store.JobCounts, error) {
	return d.jobStore.CountJobsByStatus(ctx, id.String())
}

// RetryFailedJob resets a failed job and re-delivers it. Returns
// store.ErrJobNotFound if the job is absent or already pruned.
func (d *Dispatcher) RetryFailedJob(ctx context.Context, id QueueID, jobID uuid.UUID) error {
	return d.queueFor(id).RequeueFailed(ctx, jobID)
}

// ClearCompletedJobs prunes completed jobs older than the retention window
// and reports how many were removed.
func (d *Dispatcher) ClearCompletedJobs(ctx context.Context, id QueueID) (int, error) {
	cutoff := time.Now().UTC().Add(-d.retention)
	removed, err := d.jobStore.DeleteCompletedJobsBefore(ctx, id.String(), cutoff)
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		d.logger.Info("cleared completed jobs", "queue", id.String(), "removed", removed)
	}
	return removed, nil
}
