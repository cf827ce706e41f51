package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/mumahendras3/packer-server/internal/domain"
)

// UserStore persists the accounts that own tasks. Emails are unique without
// regard to case.
type UserStore interface {
	// Create hashes user.Password, stores the user and clears the plaintext.
	// A taken email yields ErrEmailExists.
	Create(ctx context.Context, user *domain.User) error

	// GetByID and GetByEmail yield ErrUserNotFound for unknown users. The
	// returned user carries only the password hash.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// WithTx binds the store to tx.
	WithTx(tx *sql.Tx) UserStore
}
