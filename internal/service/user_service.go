package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mumahendras3/packer-server/internal/domain"
	"github.com/mumahendras3/packer-server/internal/service/auth"
	"github.com/mumahendras3/packer-server/internal/store"
)

// UserService registers and authenticates the users who own tasks.
type UserService interface {
	// Register creates a user. An empty name defaults to the email's local part.
	// Returns store.ErrEmailExists for a taken email and domain validation
	// errors for bad input.
	Register(ctx context.Context, email, name, password string) (*domain.User, error)

	// Authenticate returns the user whose email and password match.
	// Returns ErrInvalidCredentials otherwise.
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
}

// UserServiceImpl implements the UserService interface
type UserServiceImpl struct {
	userStore store.UserStore
	verifier  auth.PasswordVerifier
	db        *sql.DB
	logger    *slog.Logger
}

// NewUserService creates a new UserService. When db is nil, registration
// runs directly against userStore instead of inside a transaction.
func NewUserService(
	userStore store.UserStore,
	verifier auth.PasswordVerifier,
	db *sql.DB,
	logger *slog.Logger,
) (*UserServiceImpl, error) {
	if userStore == nil {
		return nil, errors.New("userStore cannot be nil")
	}
	if verifier == nil {
		return nil, errors.New("verifier cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &UserServiceImpl{
		userStore: userStore,
		verifier:  verifier,
		db:        db,
		logger:    logger.With("component", "user_service"),
	}, nil
}

var _ UserService = (*UserServiceImpl)(nil)

// Register creates a new user inside a transaction.
func (s *UserServiceImpl) Register(ctx context.Context, email, name, password string) (*domain.User, error) {
	user, err := domain.NewUser(email, name, password)
	if err != nil {
		s.logger.DebugContext(ctx, "rejected registration", "error", err)
		return nil, err
	}

	create := func(ctx context.Context, users store.UserStore) error {
		return users.Create(ctx, user)
	}
	if s.db != nil {
		err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
			return create(ctx, s.userStore.WithTx(tx))
		})
	} else {
		err = create(ctx, s.userStore)
	}

	if err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			s.logger.DebugContext(ctx, "attempted to register an existing email")
		} else {
			s.logger.ErrorContext(ctx, "failed to save user", "error", err)
		}
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// Authenticate checks email and password against the stored hash.
func (s *UserServiceImpl) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.userStore.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			s.logger.DebugContext(ctx, "login for unknown email")
			return nil, ErrInvalidCredentials
		}
		s.logger.ErrorContext(ctx, "failed to look up user", "error", err)
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := s.verifier.Compare(user.HashedPassword, password); err != nil {
		s.logger.DebugContext(ctx, "login with wrong password", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	return user, nil
}
