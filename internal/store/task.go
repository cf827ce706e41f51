package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/mumahendras3/packer-server/internal/domain"
)

// TaskStore defines the interface for task persistence. It is the single
// source of truth for task existence and lifecycle state. Reads and deletes
// are scoped to the owning user.
type TaskStore interface {
	// Create saves a new task in the Created state.
	// Returns ErrDuplicateTask if the owner already has a Created or Running
	// task for the same image.
	Create(ctx context.Context, task *domain.Task) error

	// Get retrieves a task owned by ownerID.
	// Returns ErrTaskNotFound if the task does not exist or is owned by someone else.
	Get(ctx context.Context, id, ownerID uuid.UUID) (*domain.Task, error)

	// List returns every task owned by ownerID, newest first.
	List(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, error)

	// ListByState returns tasks of all owners in the given state.
	ListByState(ctx context.Context, state domain.TaskState) ([]*domain.Task, error)

	// Update persists the lifecycle fields of an existing task: state,
	// process handle, logs, output, failure reason and timestamps.
	// Returns ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, task *domain.Task) error

	// Delete removes a task owned by ownerID.
	// Returns ErrTaskNotFound if the task does not exist or is not owned, and
	// ErrTaskRunning if the task is Running and force is false.
	Delete(ctx context.Context, id, ownerID uuid.UUID, force bool) error

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) TaskStore
}
