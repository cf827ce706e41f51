package postgres_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mumahendras3/packer-server/internal/domain"
	"github.com/mumahendras3/packer-server/internal/platform/postgres"
	"github.com/mumahendras3/packer-server/internal/store"
	"github.com/mumahendras3/packer-server/internal/testdb"
)

func createUser(t *testing.T, users store.UserStore) *domain.User {
	t.Helper()
	user, err := domain.NewUser(uuid.NewString()+"@example.com", "", "password123")
	require.NoError(t, err)
	require.NoError(t, users.Create(context.Background(), user))
	return user
}

func TestTaskLifecycleAgainstPostgres(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()

	users := postgres.NewPostgresUserStore(db, bcrypt.MinCost, nil)
	tasks := postgres.NewPostgresTaskStore(db, nil)

	user := createUser(t, users)
	t.Cleanup(func() {
		_, _ = db.ExecContext(context.Background(), `DELETE FROM users WHERE id = $1`, user.ID)
	})

	task, err := domain.NewTask(user.ID, "docker.io/library/nginx:latest")
	require.NoError(t, err)
	require.NoError(t, tasks.Create(ctx, task))

	dup, err := domain.NewTask(user.ID, task.Image)
	require.NoError(t, err)
	assert.ErrorIs(t, tasks.Create(ctx, dup), store.ErrDuplicateTask)

	_, err = tasks.Get(ctx, task.ID, uuid.New())
	assert.ErrorIs(t, err, store.ErrTaskNotFound)

	require.NoError(t, task.MarkRunning("c0ffee", time.Now()))
	require.NoError(t, tasks.Update(ctx, task))
	assert.ErrorIs(t, tasks.Delete(ctx, task.ID, user.ID, false), store.ErrTaskRunning)

	running, err := tasks.ListByState(ctx, domain.TaskStateRunning)
	require.NoError(t, err)
	assert.Contains(t, taskIDs(running), task.ID)

	require.NoError(t, task.MarkSucceeded("out/1.tar", []string{"hello", ""}, time.Now()))
	require.NoError(t, tasks.Update(ctx, task))

	got, err := tasks.Get(ctx, task.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateSucceeded, got.State)
	assert.Equal(t, []string{"hello", ""}, got.Logs)
	assert.Equal(t, "out/1.tar", got.Output)

	// A finished task no longer blocks a new one for the same image.
	again, err := domain.NewTask(user.ID, task.Image)
	require.NoError(t, err)
	require.NoError(t, tasks.Create(ctx, again))

	listed, err := tasks.List(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{again.ID, task.ID}, taskIDs(listed))

	require.NoError(t, tasks.Delete(ctx, task.ID, user.ID, false))
	assert.ErrorIs(t, tasks.Delete(ctx, task.ID, user.ID, false), store.ErrTaskNotFound)
}

func TestStoresInsideTransaction(t *testing.T) {
	db := testdb.Open(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		users := postgres.NewPostgresUserStore(db, bcrypt.MinCost, nil).WithTx(tx)
		tasks := postgres.NewPostgresTaskStore(db, nil).WithTx(tx)

		user := createUser(t, users)

		_, err := users.GetByEmail(ctx, "  "+user.Email+"  ")
		require.NoError(t, err)

		task, err := domain.NewTask(user.ID, "docker.io/library/alpine:latest")
		require.NoError(t, err)
		require.NoError(t, tasks.Create(ctx, task))

		got, err := tasks.Get(ctx, task.ID, user.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStateCreated, got.State)
		assert.Empty(t, got.Logs)

		// Last: the violation aborts the transaction.
		dup, err := domain.NewUser(user.Email, "", "password123")
		require.NoError(t, err)
		assert.ErrorIs(t, users.Create(ctx, dup), store.ErrEmailExists)
	})
}

func taskIDs(tasks []*domain.Task) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	return ids
}
