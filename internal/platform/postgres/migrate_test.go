package postgres

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFiles(t *testing.T) {
	t.Parallel()

	files, err := MigrationFiles()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Contains(t, files[0], "create_users_table")
	assert.Contains(t, files[1], "create_tasks_table")

	tasks, err := migrationsFS.ReadFile(migrationsDir + "/" + files[1])
	require.NoError(t, err)
	assert.Contains(t, string(tasks), "tasks_handle_iff_running")
	assert.Contains(t, string(tasks), "tasks_output_iff_succeeded")
}

func TestMigrateUnknownCommand(t *testing.T) {
	t.Parallel()

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	err = Migrate(context.Background(), db, "sideways", nil)
	assert.ErrorContains(t, err, "unknown migration command")
}

func TestSlogGooseLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := &slogGooseLogger{logger: slog.New(slog.NewTextHandler(&buf, nil))}

	l.Printf("OK   %s\n", "20250101000001_create_users_table.sql")
	l.Fatalf("failed %d", 1)

	assert.Contains(t, buf.String(), "create_users_table")
	assert.Contains(t, buf.String(), "level=ERROR")
}
