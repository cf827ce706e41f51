// Package testdb provides utilities specifically for database testing.
//
// Tests get a migrated connection from Open and isolate their writes with
// WithTx. Both skip the test when no database URL is configured.
package testdb

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"github.com/mumahendras3/packer-server/internal/platform/postgres"
	"github.com/mumahendras3/packer-server/internal/redact"
)

// Environment variables checked for a test database, in order.
const (
	EnvTestDatabaseURL = "PACKER_TEST_DATABASE_URL"
	EnvDatabaseURL     = "DATABASE_URL"
)

const connectTimeout = 10 * time.Second

var migrateOnce sync.Map // url -> *migration

type migration struct {
	once sync.Once
	err  error
}

// DatabaseURL returns the first configured test database URL, or "".
func DatabaseURL() string {
	for _, name := range []string{EnvTestDatabaseURL, EnvDatabaseURL} {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// Open connects to the test database and applies the migrations once per
// process. The test is skipped when no URL is configured and the connection
// is closed on cleanup.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	url := DatabaseURL()
	if url == "" {
		t.Skipf("%s or %s not set, skipping PostgreSQL integration test", EnvTestDatabaseURL, EnvDatabaseURL)
	}

	db, err := sql.Open("pgx", url)
	if err != nil {
		t.Fatalf("failed to open test database: %s", redact.Error(err))
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("failed to ping test database: %s", redact.Error(err))
	}

	m, _ := migrateOnce.LoadOrStore(url, &migration{})
	mig := m.(*migration)
	mig.once.Do(func() {
		mig.err = postgres.Migrate(ctx, db, postgres.MigrateUp, nil)
	})
	if mig.err != nil {
		t.Fatalf("failed to migrate test database: %v", mig.err)
	}
	return db
}

// WithTx runs fn inside a transaction that is always rolled back, so tests
// can write freely and run in parallel.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("failed to begin transaction: %s", redact.Error(err))
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			t.Errorf("failed to roll back transaction: %v", err)
		}
	}()

	fn(t, tx)
}
