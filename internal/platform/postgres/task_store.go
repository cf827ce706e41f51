package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mumahendras3/packer-server/internal/domain"
	"github.com/mumahendras3/packer-server/internal/store"
)

const taskColumns = `id, owner_id, image, state, process_handle, logs, output,
	failure_reason, created_at, started_at, ended_at, updated_at`

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
// db may be a *sql.DB or a *sql.Tx. If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// Create implements store.TaskStore.Create.
// The duplicate check and the insert are serialized per owner and image by a
// transaction-scoped advisory lock. When the store wraps a *sql.DB the work
// runs in its own transaction; a *sql.Tx is used as is.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return store.NewStoreError("task", "create", "invalid task",
			fmt.Errorf("%w: %w", store.ErrInvalidEntity, err))
	}
	if task.State != domain.TaskStateCreated {
		return store.NewStoreError("task", "create", "new tasks must be created",
			store.ErrInvalidEntity)
	}

	if db, ok := s.db.(*sql.DB); ok {
		return store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			return s.create(ctx, tx, task)
		})
	}
	return s.create(ctx, s.db, task)
}

func (s *PostgresTaskStore) create(ctx context.Context, db store.DBTX, task *domain.Task) error {
	lockKey := task.OwnerID.String() + "/" + task.Image
	if _, err := db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		s.logger.ErrorContext(ctx, "failed to acquire task lock", "task_id", task.ID, "error", err)
		return store.NewStoreError("task", "create", "failed to acquire lock", MapError(err))
	}

	var pending bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tasks
			WHERE owner_id = $1 AND image = $2 AND state IN ('created', 'running')
		)`, task.OwnerID, task.Image).Scan(&pending)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to check pending tasks", "task_id", task.ID, "error", err)
		return store.NewStoreError("task", "create", "failed to check pending tasks", MapError(err))
	}
	if pending {
		s.logger.DebugContext(ctx, "duplicate task rejected",
			"owner_id", task.OwnerID,
			"image", task.Image)
		return store.ErrDuplicateTask
	}

	logs, err := encodeLogs(task.Logs)
	if err != nil {
		return store.NewStoreError("task", "create", "failed to encode logs", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		task.ID,
		task.OwnerID,
		task.Image,
		string(task.State),
		nullString(task.ProcessHandle),
		logs,
		nullString(task.Output),
		task.FailureReason,
		task.CreatedAt,
		nullTime(task.StartedAt),
		nullTime(task.EndedAt),
		task.UpdatedAt,
	)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to insert task", "task_id", task.ID, "error", err)
		return store.NewStoreError("task", "create", "failed to insert task", MapError(err))
	}

	s.logger.DebugContext(ctx, "task created", "task_id", task.ID, "image", task.Image)
	return nil
}

// Get implements store.TaskStore.Get
func (s *PostgresTaskStore) Get(ctx context.Context, id, ownerID uuid.UUID) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND owner_id = $2`,
		id, ownerID)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrTaskNotFound
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to get task", "task_id", id, "error", err)
		return nil, store.NewStoreError("task", "get", "failed to read task", MapError(err))
	}
	return task, nil
}

// List implements store.TaskStore.List
func (s *PostgresTaskStore) List(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, error) {
	return s.query(ctx, "list",
		`SELECT `+taskColumns+` FROM tasks WHERE owner_id = $1 ORDER BY created_at DESC, id`,
		ownerID)
}

// ListByState implements store.TaskStore.ListByState
func (s *PostgresTaskStore) ListByState(ctx context.Context, state domain.TaskState) ([]*domain.Task, error) {
	return s.query(ctx, "list_by_state",
		`SELECT `+taskColumns+` FROM tasks WHERE state = $1 ORDER BY created_at ASC, id`,
		string(state))
}

func (s *PostgresTaskStore) query(ctx context.Context, op, query string, args ...any) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to query tasks", "operation", op, "error", err)
		return nil, store.NewStoreError("task", op, "failed to query tasks", MapError(err))
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.WarnContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	tasks := []*domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, store.NewStoreError("task", op, "failed to scan task", MapError(err))
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("task", op, "failed to iterate tasks", MapError(err))
	}
	return tasks, nil
}

// Update implements store.TaskStore.Update
func (s *PostgresTaskStore) Update(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return store.NewStoreError("task", "update", "invalid task",
			fmt.Errorf("%w: %w", store.ErrInvalidEntity, err))
	}

	logs, err := encodeLogs(task.Logs)
	if err != nil {
		return store.NewStoreError("task", "update", "failed to encode logs", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET state = $2, process_handle = $3, logs = $4, output = $5,
			failure_reason = $6, started_at = $7, ended_at = $8, updated_at = $9
		WHERE id = $1`,
		task.ID,
		string(task.State),
		nullString(task.ProcessHandle),
		logs,
		nullString(task.Output),
		task.FailureReason,
		nullTime(task.StartedAt),
		nullTime(task.EndedAt),
		task.UpdatedAt,
	)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to update task", "task_id", task.ID, "error", err)
		return store.NewStoreError("task", "update", "failed to update task", MapError(err))
	}

	return CheckRowsAffected(result, store.ErrTaskNotFound)
}

// Delete implements store.TaskStore.Delete
func (s *PostgresTaskStore) Delete(ctx context.Context, id, ownerID uuid.UUID, force bool) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM tasks
		WHERE id = $1 AND owner_id = $2 AND (state <> 'running' OR $3::boolean)`,
		id, ownerID, force)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to delete task", "task_id", id, "error", err)
		return store.NewStoreError("task", "delete", "failed to delete task", MapError(err))
	}

	err = CheckRowsAffected(result, store.ErrTaskNotFound)
	if !errors.Is(err, store.ErrTaskNotFound) {
		return err
	}

	// Nothing deleted: either the task is missing or it is running.
	var state string
	err = s.db.QueryRowContext(ctx,
		`SELECT state FROM tasks WHERE id = $1 AND owner_id = $2`, id, ownerID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrTaskNotFound
	}
	if err != nil {
		return store.NewStoreError("task", "delete", "failed to read task state", MapError(err))
	}
	return store.ErrTaskRunning
}

// WithTx implements store.TaskStore.WithTx
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{
		db:     tx,
		logger: s.logger,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task      domain.Task
		state     string
		handle    sql.NullString
		logs      []byte
		output    sql.NullString
		startedAt sql.NullTime
		endedAt   sql.NullTime
	)

	err := row.Scan(
		&task.ID,
		&task.OwnerID,
		&task.Image,
		&state,
		&handle,
		&logs,
		&output,
		&task.FailureReason,
		&task.CreatedAt,
		&startedAt,
		&endedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.State = domain.TaskState(state)
	task.ProcessHandle = handle.String
	task.Output = output.String
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		task.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time.UTC()
		task.EndedAt = &t
	}
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()

	task.Logs = []string{}
	if len(logs) > 0 {
		if err := json.Unmarshal(logs, &task.Logs); err != nil {
			return nil, fmt.Errorf("failed to decode logs of task %s: %w", task.ID, err)
		}
	}
	return &task, nil
}

// encodeLogs renders logs as a JSON array for the JSONB column. JSONB cannot
// hold \u0000, so NUL bytes become U+FFFD.
func encodeLogs(logs []string) (string, error) {
	clean := make([]string, len(logs))
	for i, line := range logs {
		clean[i] = strings.ReplaceAll(line, "\x00", "\uFFFD")
	}
	b, err := json.Marshal(clean)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
