package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mumahendras3/packer-server/internal/domain"
	"github.com/mumahendras3/packer-server/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var taskRowColumns = []string{
	"id", "owner_id", "image", "state", "process_handle", "logs", "output",
	"failure_reason", "created_at", "started_at", "ended_at", "updated_at",
}

func newMockTaskStore(t *testing.T) (*PostgresTaskStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewPostgresTaskStore(db, nil), mock
}

func newTestTask(t *testing.T) *domain.Task {
	t.Helper()

	task, err := domain.NewTask(uuid.New(), "docker.io/library/nginx:latest")
	require.NoError(t, err)
	return task
}

func TestPostgresTaskStore_Create(t *testing.T) {
	t.Parallel()

	t.Run("inserts inside a locked transaction", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		task := newTestTask(t)

		mock.ExpectBegin()
		mock.ExpectExec(`pg_advisory_xact_lock`).
			WithArgs(task.OwnerID.String() + "/" + task.Image).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(task.OwnerID, task.Image).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec(`INSERT INTO tasks`).
			WithArgs(task.ID, task.OwnerID, task.Image, "created", nil, "[]", nil, "",
				sqlmock.AnyArg(), nil, nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, s.Create(context.Background(), task))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("pending task for the same image is a duplicate", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		task := newTestTask(t)

		mock.ExpectBegin()
		mock.ExpectExec(`pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`SELECT EXISTS`).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		err := s.Create(context.Background(), task)
		assert.ErrorIs(t, err, store.ErrDuplicateTask)
		assert.ErrorIs(t, err, domain.ErrDuplicateTask)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid task never reaches the database", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		task := newTestTask(t)
		task.Image = ""

		err := s.Create(context.Background(), task)
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure is mapped", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		task := newTestTask(t)

		mock.ExpectBegin()
		mock.ExpectExec(`pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`SELECT EXISTS`).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec(`INSERT INTO tasks`).
			WillReturnError(&pgconn.PgError{Code: foreignKeyViolationCode, ConstraintName: "tasks_owner_id_fkey"})
		mock.ExpectRollback()

		err := s.Create(context.Background(), task)
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresTaskStore_Get(t *testing.T) {
	t.Parallel()

	t.Run("scans a succeeded task", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		id, owner := uuid.New(), uuid.New()
		started := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
		ended := started.Add(time.Minute)

		mock.ExpectQuery(`FROM tasks WHERE id = \$1 AND owner_id = \$2`).
			WithArgs(id, owner).
			WillReturnRows(sqlmock.NewRows(taskRowColumns).AddRow(
				id.String(), owner.String(), "nginx", "succeeded", nil,
				[]byte(`["line 1","line 2"]`), "/out/1", "",
				started, started, ended, ended,
			))

		task, err := s.Get(context.Background(), id, owner)
		require.NoError(t, err)
		assert.Equal(t, id, task.ID)
		assert.Equal(t, owner, task.OwnerID)
		assert.Equal(t, domain.TaskStateSucceeded, task.State)
		assert.Equal(t, "/out/1", task.Output)
		assert.Empty(t, task.ProcessHandle)
		assert.Equal(t, []string{"line 1", "line 2"}, task.Logs)
		require.NotNil(t, task.StartedAt)
		require.NotNil(t, task.EndedAt)
		assert.Equal(t, ended, *task.EndedAt)
		assert.NoError(t, task.Validate())
	})

	t.Run("missing or foreign task is not found", func(t *testing.T) {
		s, mock := newMockTaskStore(t)

		mock.ExpectQuery(`FROM tasks WHERE id`).
			WillReturnRows(sqlmock.NewRows(taskRowColumns))

		_, err := s.Get(context.Background(), uuid.New(), uuid.New())
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	})

	t.Run("query failure is wrapped", func(t *testing.T) {
		s, mock := newMockTaskStore(t)

		mock.ExpectQuery(`FROM tasks WHERE id`).WillReturnError(errors.New("connection reset"))

		_, err := s.Get(context.Background(), uuid.New(), uuid.New())
		require.Error(t, err)
		var storeErr *store.StoreError
		assert.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "get", storeErr.Operation)
	})
}

func TestPostgresTaskStore_List(t *testing.T) {
	t.Parallel()

	s, mock := newMockTaskStore(t)
	owner := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(`WHERE owner_id = \$1 ORDER BY created_at DESC`).
		WithArgs(owner).
		WillReturnRows(sqlmock.NewRows(taskRowColumns).
			AddRow(uuid.NewString(), owner.String(), "redis", "running", "c0ffee",
				[]byte(`[]`), nil, "", now, now, nil, now).
			AddRow(uuid.NewString(), owner.String(), "nginx", "failed", nil,
				[]byte(`["boom"]`), nil, "exit code 1", now, now, now, now))

	tasks, err := s.List(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "c0ffee", tasks[0].ProcessHandle)
	assert.Nil(t, tasks[0].EndedAt)
	assert.Equal(t, "exit code 1", tasks[1].FailureReason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTaskStore_ListByState(t *testing.T) {
	t.Parallel()

	s, mock := newMockTaskStore(t)

	mock.ExpectQuery(`WHERE state = \$1`).
		WithArgs("running").
		WillReturnRows(sqlmock.NewRows(taskRowColumns))

	tasks, err := s.ListByState(context.Background(), domain.TaskStateRunning)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.NotNil(t, tasks)
}

func TestPostgresTaskStore_Update(t *testing.T) {
	t.Parallel()

	t.Run("persists lifecycle fields", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		task := newTestTask(t)
		require.NoError(t, task.MarkRunning("c0ffee", time.Now()))

		mock.ExpectExec(`UPDATE tasks`).
			WithArgs(task.ID, "running", "c0ffee", "[]", nil, "",
				sqlmock.AnyArg(), nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.Update(context.Background(), task))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown task is not found", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		task := newTestTask(t)

		mock.ExpectExec(`UPDATE tasks`).WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, s.Update(context.Background(), task), store.ErrTaskNotFound)
	})

	t.Run("broken invariant is rejected", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		task := newTestTask(t)
		task.Output = "/out/1"

		assert.ErrorIs(t, s.Update(context.Background(), task), store.ErrInvalidEntity)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresTaskStore_Delete(t *testing.T) {
	t.Parallel()

	t.Run("deletes", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		id, owner := uuid.New(), uuid.New()

		mock.ExpectExec(`DELETE FROM tasks`).
			WithArgs(id, owner, false).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.Delete(context.Background(), id, owner, false))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("running task is rejected unless forced", func(t *testing.T) {
		s, mock := newMockTaskStore(t)
		id, owner := uuid.New(), uuid.New()

		mock.ExpectExec(`DELETE FROM tasks`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT state FROM tasks`).
			WithArgs(id, owner).
			WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow("running"))

		err := s.Delete(context.Background(), id, owner, false)
		assert.ErrorIs(t, err, store.ErrTaskRunning)
		assert.ErrorIs(t, err, domain.ErrTaskStillRunning)
	})

	t.Run("missing task is not found", func(t *testing.T) {
		s, mock := newMockTaskStore(t)

		mock.ExpectExec(`DELETE FROM tasks`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT state FROM tasks`).
			WillReturnRows(sqlmock.NewRows([]string{"state"}))

		err := s.Delete(context.Background(), uuid.New(), uuid.New(), true)
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})
}

func TestPostgresTaskStore_WithTx(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewPostgresTaskStore(db, nil)
	task := newTestTask(t)

	mock.ExpectBegin()
	mock.ExpectExec(`pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO tasks`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTx(context.Background(), nil)
	require.NoError(t, err)

	require.NoError(t, s.WithTx(tx).Create(context.Background(), task))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEncodeLogs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		logs []string
		want string
	}{
		{name: "nil", logs: nil, want: `[]`},
		{name: "empty lines kept", logs: []string{"a", "", "b"}, want: `["a","","b"]`},
		{name: "nul replaced", logs: []string{"binary\x00output"}, want: "[\"binary\uFFFDoutput\"]"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := encodeLogs(tc.logs)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.NotContains(t, got, `\u0000`)
		})
	}
}
