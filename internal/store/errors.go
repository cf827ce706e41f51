package store

import (
	"errors"
	"fmt"

	"github.com/mumahendras3/packer-server/internal/domain"
)

// Generic outcomes. Implementations wrap the entity-specific errors below
// around these so callers can test either level with errors.Is.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrDuplicate     = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")
)

// User errors.
var (
	ErrUserNotFound = fmt.Errorf("%w: user", ErrNotFound)
	ErrEmailExists  = fmt.Errorf("%w: email", ErrDuplicate)
)

// Task errors. Each also matches its domain counterpart, so the manager and
// the API layer never need to know which store produced them.
var (
	// ErrTaskNotFound covers both a missing task and one owned by someone else.
	ErrTaskNotFound = fmt.Errorf("%w: %w", ErrNotFound, domain.ErrTaskNotFound)

	// ErrDuplicateTask means the owner has a Created or Running task for the
	// same image.
	ErrDuplicateTask = fmt.Errorf("%w: %w", ErrDuplicate, domain.ErrDuplicateTask)

	// ErrTaskRunning rejects a non-forced delete of a Running task.
	ErrTaskRunning = fmt.Errorf("delete rejected: %w", domain.ErrTaskStillRunning)
)

// StoreError records which store call failed. Err keeps the cause for
// errors.Is and errors.As.
type StoreError struct {
	Entity    string
	Operation string
	Message   string
	Err       error
}

func (e *StoreError) Error() string {
	msg := e.Entity + " store: " + e.Operation + ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a StoreError.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
