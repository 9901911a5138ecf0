package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the queue runtime's view of a job's lifecycle.
type JobStatus string

// Possible job status values
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusDelayed   JobStatus = "delayed"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobRecord is the durable projection of a queued job. The queue runtime
// exclusively owns job lifecycle; task rows are a separate caller-visible
// projection updated by workers, never by the queue itself.
type JobRecord struct {
	ID           uuid.UUID
	Queue        string
	Name         string
	Payload      json.RawMessage
	Status       JobStatus
	Priority     int
	Attempts     int
	MaxAttempts  int
	Backoff      time.Duration
	Progress     int
	FailedReason string
	TaskID       uuid.NullUUID
	CreatedAt    time.Time
	ProcessedAt  *time.Time
	FinishedAt   *time.Time
}

// JobCounts holds per-status job counts for one queue.
type JobCounts struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
	Total     int `json:"total"`
}

// JobStore defines the interface for the durable backing of the queue runtime.
type JobStore interface {
	// SaveJob persists a new job record.
	SaveJob(ctx context.Context, job *JobRecord) error

	// GetJob retrieves a job by queue name and id.
	// Returns ErrJobNotFound if no such job exists.
	GetJob(ctx context.Context, queue string, id uuid.UUID) (*JobRecord, error)

	// UpdateJobStatus overwrites a job's status, attempt count and failure
	// reason, stamping ProcessedAt on active and FinishedAt on terminal states.
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status JobStatus, attempts int, failedReason string) error

	// UpdateJobProgress overwrites a job's progress.
	UpdateJobProgress(ctx context.Context, id uuid.UUID, progress int) error

	// CountJobsByStatus returns per-status counts for one queue.
	CountJobsByStatus(ctx context.Context, queue string) (*JobCounts, error)

	// ListJobsByStatus returns all jobs in a queue with the given status,
	// oldest first. Used for startup recovery.
	ListJobsByStatus(ctx context.Context, queue string, status JobStatus) ([]JobRecord, error)

	// DeleteCompletedJobsBefore prunes completed jobs finished before the
	// cutoff and reports how many were removed.
	DeleteCompletedJobsBefore(ctx context.Context, queue string, cutoff time.Time) (int, error)

	// ExistsJobForTask reports whether any job references the given task.
	// Used by the reconciler to detect orphaned tasks.
	ExistsJobForTask(ctx context.Context, taskID uuid.UUID) (bool, error)
}
