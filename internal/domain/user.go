package domain

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common validation errors
var (
	ErrInvalidEmail    = errors.New("invalid email format")
	ErrEmptyEmail      = errors.New("email cannot be empty")
	ErrPasswordTooLong = errors.New("password must be at most 72 characters long")
	ErrEmptyPassword   = errors.New("password cannot be empty")
)

// maxPasswordLength is bcrypt's input limit.
const maxPasswordLength = 72

// User represents a registered user who owns tasks.
type User struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	Password       string    `json:"-"` // Plaintext, only set during registration
	HashedPassword string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewUser creates a new User with the given email, display name and
// plaintext password. An empty name defaults to the email's local part.
// The store hashes the password before persisting it.
func NewUser(email, name, password string) (*User, error) {
	now := time.Now().UTC()
	user := &User{
		ID:        uuid.New(),
		Email:     strings.TrimSpace(email),
		Name:      strings.TrimSpace(name),
		Password:  password,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := user.Validate(); err != nil {
		return nil, err
	}
	if user.Name == "" {
		user.Name, _, _ = strings.Cut(user.Email, "@")
	}

	return user, nil
}

// Validate checks if the User has valid data.
func (u *User) Validate() error {
	if u.ID == uuid.Nil {
		return ErrEmptyUserID
	}

	if u.Email == "" {
		return ErrEmptyEmail
	}
	if addr, err := mail.ParseAddress(u.Email); err != nil || addr.Address != u.Email {
		return ErrInvalidEmail
	}

	// A stored user carries only the hash.
	if u.Password == "" {
		if u.HashedPassword == "" {
			return ErrEmptyPassword
		}
		return nil
	}
	if len(u.Password) > maxPasswordLength {
		return ErrPasswordTooLong
	}

	return nil
}
