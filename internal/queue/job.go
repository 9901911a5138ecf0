// Package queue implements a set of independent named job queues, each
// backed by a shared durable store and drained by workers at a configured
// concurrency, with per-queue retry and backoff policy.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/clubworks/backend/internal/store"
)

// Job is the queue runtime's unit of dispatch. The runtime exclusively owns
// the job lifecycle (queued → active → completed/failed); any task rows a
// worker maintains are a separate projection updated by the handler, never
// by the queue itself.
type Job struct {
	ID          uuid.UUID
	Queue       string
	Name        string
	Payload     json.RawMessage
	Priority    int
	Attempts    int
	MaxAttempts int
	Backoff     time.Duration
	TaskID      uuid.NullUUID
	CreatedAt   time.Time
}

// Options overrides the queue's default policy for a single job.
// Zero values leave the corresponding default in place.
type Options struct {
	// Delay postpones the job's first delivery.
	Delay time.Duration

	// Priority orders recovery; higher first.
	Priority int

	// Attempts overrides the queue's default maximum attempt count.
	Attempts int

	// Backoff overrides the queue's default exponential backoff base.
	Backoff time.Duration

	// TaskID links the job to the task whose progress it drives.
	TaskID uuid.UUID
}

// Handler processes one job. A nil return completes the job; an error
// triggers the queue's retry policy until attempts are exhausted.
type Handler func(ctx context.Context, job *Job) error

// record converts the job to its durable representation.
func (j *Job) record(status store.JobStatus) *store.JobRecord {
	return &store.JobRecord{
		ID:          j.ID,
		Queue:       j.Queue,
		Name:        j.Name,
		Payload:     j.Payload,
		Status:      status,
		Priority:    j.Priority,
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		Backoff:     j.Backoff,
		TaskID:      j.TaskID,
		CreatedAt:   j.CreatedAt,
	}
}

// jobFromRecord rebuilds an in-memory job from its durable representation.
func jobFromRecord(rec *store.JobRecord) *Job {
	return &Job{
		ID:          rec.ID,
		Queue:       rec.Queue,
		Name:        rec.Name,
		Payload:     rec.Payload,
		Priority:    rec.Priority,
		Attempts:    rec.Attempts,
		MaxAttempts: rec.MaxAttempts,
		Backoff:     rec.Backoff,
		TaskID:      rec.TaskID,
		CreatedAt:   rec.CreatedAt,
	}
}
