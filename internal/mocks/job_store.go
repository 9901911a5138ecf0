package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clubworks/backend/internal/store"
)

// MockJobStore is a stateful in-memory store.JobStore with the same
// timestamp bookkeeping as the Postgres implementation.
type MockJobStore struct {
	// Function fields for customizable behavior.
	SaveJobFn         func(ctx context.Context, job *store.JobRecord) error
	UpdateJobStatusFn func(ctx context.Context, id uuid.UUID, status store.JobStatus, attempts int, failedReason string) error

	mu   sync.Mutex
	jobs map[uuid.UUID]*store.JobRecord
}

// NewMockJobStore creates an empty in-memory job store.
func NewMockJobStore() *MockJobStore {
	return &MockJobStore{
		jobs: make(map[uuid.UUID]*store.JobRecord),
	}
}

// Job returns a snapshot of the stored job, or nil if absent. Test helper.
func (m *MockJobStore) Job(id uuid.UUID) *store.JobRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.jobs[id]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

// SaveJob implements store.JobStore.
func (m *MockJobStore) SaveJob(ctx context.Context, job *store.JobRecord) error {
	if m.SaveJobFn != nil {
		return m.SaveJobFn(ctx, job)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.ID]; exists {
		return store.ErrDuplicate
	}

	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

// GetJob implements store.JobStore.
func (m *MockJobStore) GetJob(ctx context.Context, queue string, id uuid.UUID) (*store.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.jobs[id]
	if !ok || rec.Queue != queue {
		return nil, store.ErrJobNotFound
	}
	cp := *rec
	return &cp, nil
}

// UpdateJobStatus implements store.JobStore.
func (m *MockJobStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status store.JobStatus, attempts int, failedReason string) error {
	if m.UpdateJobStatusFn != nil {
		return m.UpdateJobStatusFn(ctx, id, status, attempts, failedReason)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}

	now := time.Now().UTC()
	rec.Status = status
	rec.Attempts = attempts
	rec.FailedReason = failedReason
	switch status {
	case store.JobStatusActive:
		rec.ProcessedAt = &now
	case store.JobStatusCompleted, store.JobStatusFailed:
		rec.FinishedAt = &now
	}
	return nil
}

// UpdateJobProgress implements store.JobStore.
func (m *MockJobStore) UpdateJobProgress(ctx context.Context, id uuid.UUID, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	rec.Progress = progress
	return nil
}

// CountJobsByStatus implements store.JobStore.
func (m *MockJobStore) CountJobsByStatus(ctx context.Context, queue string) (*store.JobCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := &store.JobCounts{}
	for _, rec := range m.jobs {
		if rec.Queue != queue {
			continue
		}
		counts.Total++
		switch rec.Status {
		case store.JobStatusQueued:
			counts.Waiting++
		case store.JobStatusActive:
			counts.Active++
		case store.JobStatusCompleted:
			counts.Completed++
		case store.JobStatusFailed:
			counts.Failed++
		case store.JobStatusDelayed:
			counts.Delayed++
		}
	}
	return counts, nil
}

// ListJobsByStatus implements store.JobStore.
func (m *MockJobStore) ListJobsByStatus(ctx context.Context, queue string, status store.JobStatus) ([]store.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []store.JobRecord
	for _, rec := range m.jobs {
		if rec.Queue != queue || rec.Status != status {
			continue
		}
		out = append(out, *rec)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteCompletedJobsBefore implements store.JobStore.
func (m *MockJobStore) DeleteCompletedJobsBefore(ctx context.Context, queue string, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, rec := range m.jobs {
		if rec.Queue != queue || rec.Status != store.JobStatusCompleted {
			continue
		}
		if rec.FinishedAt == nil || rec.FinishedAt.After(cutoff) {
			continue
		}
		delete(m.jobs, id)
		removed++
	}
	return removed, nil
}

// ExistsJobForTask implements store.JobStore.
func (m *MockJobStore) ExistsJobForTask(ctx context.Context, taskID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.jobs {
		if rec.TaskID.Valid && rec.TaskID.UUID == taskID {
			return true, nil
		}
	}
	return false, nil
}
