package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clubworks/backend/internal/domain"
	"github.com/clubworks/backend/internal/platform/logger"
	"github.com/clubworks/backend/internal/store"
)

// PostgresTaskStore implements the store.TaskStore interface using PostgreSQL.
type PostgresTaskStore struct {
	db *sql.DB
}

// NewPostgresTaskStore creates a new PostgresTaskStore.
func NewPostgresTaskStore(db *sql.DB) *PostgresTaskStore {
	return &PostgresTaskStore{
		db: db,
	}
}

// Ensure PostgresTaskStore implements store.TaskStore
var _ store.TaskStore = (*PostgresTaskStore)(nil)

const insertTaskQuery = `
	INSERT INTO tasks (id, name, description, entity_type, entity_id, status, progress, error_message, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

const insertSubtaskQuery = `
	INSERT INTO subtasks (id, task_id, step_index, name, status, progress, error_message, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

// CreateTaskWithSubtasks persists the task and all of its subtasks in a
// single transaction. Readers never observe a task with a partial subtask set.
func (s *PostgresTaskStore) CreateTaskWithSubtasks(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx)

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, insertTaskQuery,
			task.ID,
			task.Name,
			task.Description,
			task.EntityType,
			task.EntityID,
			task.Status,
			task.Progress,
			task.Error,
			task.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert task: %w", err)
		}

		for i := range task.Subtasks {
			sub := &task.Subtasks[i]
			_, err := tx.ExecContext(ctx, insertSubtaskQuery,
				sub.ID,
				sub.TaskID,
				sub.StepIndex,
				sub.Name,
				sub.Status,
				sub.Progress,
				sub.Error,
				sub.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert subtask %d: %w", sub.StepIndex, err)
			}
		}

		return nil
	})

	if err != nil {
		log.Error("failed to create task with subtasks",
			"task_id", task.ID,
			"subtask_count", len(task.Subtasks),
			"error", err)
		return err
	}

	return nil
}

// GetTask retrieves a task with its subtasks ordered by step index.
func (s *PostgresTaskStore) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `
		SELECT id, name, description, entity_type, entity_id, status, progress, result, error_message,
		       created_at, started_at, finished_at
		FROM tasks
		WHERE id = $1
	`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	subtasks, err := s.getSubtasks(ctx, id)
	if err != nil {
		return nil, err
	}
	task.Subtasks = subtasks

	return task, nil
}

// ListTasks returns a page of tasks ordered newest-first, with total/page
// metadata. Subtasks are populated for every returned task.
func (s *PostgresTaskStore) ListTasks(ctx context.Context, filter store.TaskFilter) (*store.TaskPage, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}

	where := "WHERE 1=1"
	args := []any{}
	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		where += fmt.Sprintf(" AND entity_type = $%d", len(args))
	}
	if filter.EntityID != "" {
		args = append(args, filter.EntityID)
		where += fmt.Sprintf(" AND entity_id = $%d", len(args))
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM tasks " + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}

	listArgs := append(args, limit, (page-1)*limit)
	listQuery := fmt.Sprintf(`
		SELECT id, name, description, entity_type, entity_id, status, progress, result, error_message,
		       created_at, started_at, finished_at
		FROM tasks %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)

	rows, err := s.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tasks := []domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	for i := range tasks {
		subtasks, err := s.getSubtasks(ctx, tasks[i].ID)
		if err != nil {
			return nil, err
		}
		tasks[i].Subtasks = subtasks
	}

	return &store.TaskPage{
		Tasks: tasks,
		Total: total,
		Page:  page,
		Limit: limit,
	}, nil
}

// UpdateTaskStatus unconditionally overwrites the task's status and error
// message. StartedAt is stamped when the task moves to RUNNING, FinishedAt
// when it reaches a terminal state. No prior-state validation is performed.
func (s *PostgresTaskStore) UpdateTaskStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus, errMsg string) error {
	return updateStatus(ctx, s.db, "tasks", "task", id, status, errMsg)
}

// UpdateTaskProgress unconditionally overwrites the task's progress.
func (s *PostgresTaskStore) UpdateTaskProgress(ctx context.Context, id uuid.UUID, progress int) error {
	return updateProgress(ctx, s.db, "tasks", "task", id, progress)
}

// SetTaskResult stores the task's structured result payload.
func (s *PostgresTaskStore) SetTaskResult(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	return setResult(ctx, s.db, "tasks", "task", id, result)
}

// FindSubtask resolves a subtask by its (taskID, stepIndex) composite key.
func (s *PostgresTaskStore) FindSubtask(ctx context.Context, taskID uuid.UUID, stepIndex int) (*domain.Subtask, error) {
	query := `
		SELECT id, task_id, step_index, name, status, progress, result, error_message,
		       created_at, started_at, finished_at
		FROM subtasks
		WHERE task_id = $1 AND step_index = $2
	`

	sub, err := scanSubtask(s.db.QueryRowContext(ctx, query, taskID, stepIndex))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrSubtaskNotFound
		}
		return nil, fmt.Errorf("failed to find subtask: %w", err)
	}

	return sub, nil
}

// UpdateSubtaskStatus unconditionally overwrites a subtask's status and error message.
func (s *PostgresTaskStore) UpdateSubtaskStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus, errMsg string) error {
	return updateStatus(ctx, s.db, "subtasks", "subtask", id, status, errMsg)
}

// UpdateSubtaskProgress unconditionally overwrites a subtask's progress.
func (s *PostgresTaskStore) UpdateSubtaskProgress(ctx context.Context, id uuid.UUID, progress int) error {
	return updateProgress(ctx, s.db, "subtasks", "subtask", id, progress)
}

// SetSubtaskResult stores a subtask's structured result payload.
func (s *PostgresTaskStore) SetSubtaskResult(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	return setResult(ctx, s.db, "subtasks", "subtask", id, result)
}

// ListStalePendingTasks returns tasks still PENDING after olderThan, oldest first.
func (s *PostgresTaskStore) ListStalePendingTasks(ctx context.Context, olderThan time.Duration) ([]domain.Task, error) {
	query := `
		SELECT id, name, description, entity_type, entity_id, status, progress, result, error_message,
		       created_at, started_at, finished_at
		FROM tasks
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, domain.TaskStatusPending, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return nil, fmt.Errorf("failed to list stale pending tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}

// getSubtasks loads all subtasks for a task ordered by step index.
func (s *PostgresTaskStore) getSubtasks(ctx context.Context, taskID uuid.UUID) ([]domain.Subtask, error) {
	query := `
		SELECT id, task_id, step_index, name, status, progress, result, error_message,
		       created_at, started_at, finished_at
		FROM subtasks
		WHERE task_id = $1
		ORDER BY step_index ASC
	`

	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subtasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subtasks []domain.Subtask
	for rows.Next() {
		sub, err := scanSubtask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subtask row: %w", err)
		}
		subtasks = append(subtasks, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subtask rows: %w", err)
	}

	return subtasks, nil
}

// updateStatus writes status, error message and the timestamp bookkeeping
// shared by tasks and subtasks: started_at is set once when entering RUNNING,
// finished_at when entering a terminal state. Runs on any store.Querier, so
// both *sql.DB and an open transaction work.
func updateStatus(ctx context.Context, q store.Querier, table, entity string, id uuid.UUID, status domain.TaskStatus, errMsg string) error {
	now := time.Now().UTC()

	var query string
	args := []any{status, errMsg}
	switch {
	case status == domain.TaskStatusRunning:
		query = `UPDATE ` + table + ` SET status = $1, error_message = $2, started_at = COALESCE(started_at, $3) WHERE id = $4`
		args = append(args, now, id)
	case status.IsTerminal():
		query = `UPDATE ` + table + ` SET status = $1, error_message = $2, finished_at = $3 WHERE id = $4`
		args = append(args, now, id)
	default:
		query = `UPDATE ` + table + ` SET status = $1, error_message = $2 WHERE id = $3`
		args = append(args, id)
	}

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return store.NewStoreError(entity, "update_status", "failed to update status", err)
	}

	return requireRowAffected(result, entity)
}

func updateProgress(ctx context.Context, q store.Querier, table, entity string, id uuid.UUID, progress int) error {
	query := `UPDATE ` + table + ` SET progress = $1 WHERE id = $2`

	result, err := q.ExecContext(ctx, query, progress, id)
	if err != nil {
		return store.NewStoreError(entity, "update_progress", "failed to update progress", err)
	}

	return requireRowAffected(result, entity)
}

func setResult(ctx context.Context, q store.Querier, table, entity string, id uuid.UUID, resultPayload json.RawMessage) error {
	query := `UPDATE ` + table + ` SET result = $1 WHERE id = $2`

	result, err := q.ExecContext(ctx, query, []byte(resultPayload), id)
	if err != nil {
		return store.NewStoreError(entity, "set_result", "failed to set result", err)
	}

	return requireRowAffected(result, entity)
}

// requireRowAffected maps a zero-row update to the entity's not-found error.
func requireRowAffected(result sql.Result, entity string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		if entity == "subtask" {
			return store.ErrSubtaskNotFound
		}
		return store.ErrTaskNotFound
	}

	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var t domain.Task
	var result []byte
	var startedAt, finishedAt sql.NullTime

	err := row.Scan(
		&t.ID, &t.Name, &t.Description, &t.EntityType, &t.EntityID,
		&t.Status, &t.Progress, &result, &t.Error,
		&t.CreatedAt, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Result = json.RawMessage(result)
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		t.FinishedAt = &finishedAt.Time
	}

	return &t, nil
}

func scanSubtask(row rowScanner) (*domain.Subtask, error) {
	var s domain.Subtask
	var result []byte
	var startedAt, finishedAt sql.NullTime

	err := row.Scan(
		&s.ID, &s.TaskID, &s.StepIndex, &s.Name,
		&s.Status, &s.Progress, &result, &s.Error,
		&s.CreatedAt, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Result = json.RawMessage(result)
	if startedAt.Valid {
		s.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		s.FinishedAt = &finishedAt.Time
	}

	return &s, nil
}
