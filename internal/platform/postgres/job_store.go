package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clubworks/backend/internal/store"
)

// PostgresJobStore implements the store.JobStore interface using PostgreSQL.
type PostgresJobStore struct {
	db *sql.DB
}

// NewPostgresJobStore creates a new PostgresJobStore.
func NewPostgresJobStore(db *sql.DB) *PostgresJobStore {
	return &PostgresJobStore{
		db: db,
	}
}

// Ensure PostgresJobStore implements store.JobStore
var _ store.JobStore = (*PostgresJobStore)(nil)

// SaveJob persists a new job record.
func (s *PostgresJobStore) SaveJob(ctx context.Context, job *store.JobRecord) error {
	query := `
		INSERT INTO jobs (id, queue, name, payload, status, priority, attempts, max_attempts,
		                  backoff_ms, progress, failed_reason, task_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.Queue,
		job.Name,
		[]byte(job.Payload),
		job.Status,
		job.Priority,
		job.Attempts,
		job.MaxAttempts,
		job.Backoff.Milliseconds(),
		job.Progress,
		job.FailedReason,
		job.TaskID,
		job.CreatedAt,
	)
	if err != nil {
		return store.NewStoreError("job", "save", "failed to save job", err)
	}

	return nil
}

// GetJob retrieves a job by queue name and id.
func (s *PostgresJobStore) GetJob(ctx context.Context, queue string, id uuid.UUID) (*store.JobRecord, error) {
	query := `
		SELECT id, queue, name, payload, status, priority, attempts, max_attempts,
		       backoff_ms, progress, failed_reason, task_id, created_at, processed_at, finished_at
		FROM jobs
		WHERE queue = $1 AND id = $2
	`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, queue, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// UpdateJobStatus overwrites a job's status, attempt count and failure reason.
// ProcessedAt is stamped when the job goes active, FinishedAt on terminal states.
func (s *PostgresJobStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status store.JobStatus, attempts int, failedReason string) error {
	now := time.Now().UTC()

	var query string
	args := []any{status, attempts, failedReason}
	switch status {
	case store.JobStatusActive:
		query = `UPDATE jobs SET status = $1, attempts = $2, failed_reason = $3, processed_at = $4 WHERE id = $5`
		args = append(args, now, id)
	case store.JobStatusCompleted, store.JobStatusFailed:
		query = `UPDATE jobs SET status = $1, attempts = $2, failed_reason = $3, finished_at = $4 WHERE id = $5`
		args = append(args, now, id)
	default:
		query = `UPDATE jobs SET status = $1, attempts = $2, failed_reason = $3, finished_at = NULL WHERE id = $4`
		args = append(args, id)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return store.NewStoreError("job", "update_status", "failed to update job status", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrJobNotFound
	}

	return nil
}

// UpdateJobProgress overwrites a job's progress.
func (s *PostgresJobStore) UpdateJobProgress(ctx context.Context, id uuid.UUID, progress int) error {
	result, err := s.db.ExecContext(ctx, `UPDATE jobs SET progress = $1 WHERE id = $2`, progress, id)
	if err != nil {
		return store.NewStoreError("job", "update_progress", "failed to update job progress", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrJobNotFound
	}

	return nil
}

// CountJobsByStatus returns per-status counts for one queue.
func (s *PostgresJobStore) CountJobsByStatus(ctx context.Context, queue string) (*store.JobCounts, error) {
	query := `SELECT status, COUNT(*) FROM jobs WHERE queue = $1 GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query, queue)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := &store.JobCounts{}
	for rows.Next() {
		var status store.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job count row: %w", err)
		}

		switch status {
		case store.JobStatusQueued:
			counts.Waiting = count
		case store.JobStatusActive:
			counts.Active = count
		case store.JobStatusCompleted:
			counts.Completed = count
		case store.JobStatusFailed:
			counts.Failed = count
		case store.JobStatusDelayed:
			counts.Delayed = count
		}
		counts.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job count rows: %w", err)
	}

	return counts, nil
}

// ListJobsByStatus returns all jobs in a queue with the given status, oldest first.
func (s *PostgresJobStore) ListJobsByStatus(ctx context.Context, queue string, status store.JobStatus) ([]store.JobRecord, error) {
	query := `
		SELECT id, queue, name, payload, status, priority, attempts, max_attempts,
		       backoff_ms, progress, failed_reason, task_id, created_at, processed_at, finished_at
		FROM jobs
		WHERE queue = $1 AND status = $2
		ORDER BY priority DESC, created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, queue, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs by status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []store.JobRecord
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}

	return jobs, nil
}

// DeleteCompletedJobsBefore prunes completed jobs finished before the cutoff.
func (s *PostgresJobStore) DeleteCompletedJobsBefore(ctx context.Context, queue string, cutoff time.Time) (int, error) {
	query := `DELETE FROM jobs WHERE queue = $1 AND status = $2 AND finished_at < $3`

	result, err := s.db.ExecContext(ctx, query, queue, store.JobStatusCompleted, cutoff)
	if err != nil {
		return 0, store.NewStoreError("job", "prune", "failed to delete completed jobs", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rowsAffected), nil
}

// ExistsJobForTask reports whether any job references the given task.
func (s *PostgresJobStore) ExistsJobForTask(ctx context.Context, taskID uuid.UUID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM jobs WHERE task_id = $1)`

	if err := s.db.QueryRowContext(ctx, query, taskID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check job existence for task: %w", err)
	}

	return exists, nil
}

func scanJob(row rowScanner) (*store.JobRecord, error) {
	var j store.JobRecord
	var payload []byte
	var backoffMs int64
	var processedAt, finishedAt sql.NullTime

	err := row.Scan(
		&j.ID, &j.Queue, &j.Name, &payload, &j.Status, &j.Priority,
		&j.Attempts, &j.MaxAttempts, &backoffMs, &j.Progress, &j.FailedReason,
		&j.TaskID, &j.CreatedAt, &processedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Payload = payload
	j.Backoff = time.Duration(backoffMs) * time.Millisecond
	if processedAt.Valid {
		j.ProcessedAt = &processedAt.Time
	}
	if finishedAt.Valid {
		j.FinishedAt = &finishedAt.Time
	}

	return &j, nil
}
