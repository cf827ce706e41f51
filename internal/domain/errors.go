package domain

import "errors"

// Task lifecycle errors. Each maps to a distinct outward signal so polling
// clients can branch on it.
var (
	// ErrTaskNotFound is returned when a task does not exist or is not owned
	// by the caller.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskNotStarted is returned when an operation needs a task that has
	// run at least once.
	ErrTaskNotStarted = errors.New("task not yet started")

	// ErrTaskStillRunning is returned when an operation needs a task that is
	// not running.
	ErrTaskStillRunning = errors.New("task is still running")

	// ErrTaskFailed is returned when output is requested from a failed task.
	ErrTaskFailed = errors.New("task failed")

	// ErrDuplicateTask is returned when the owner already has a pending task
	// for the same image.
	ErrDuplicateTask = errors.New("task already exists")

	// ErrNoImageFound is returned when the registry has no matching image.
	ErrNoImageFound = errors.New("no image found")

	// ErrSearchUnavailable is returned when the image registry cannot be
	// queried or answers with a malformed response.
	ErrSearchUnavailable = errors.New("image search unavailable")

	// ErrLaunchFailed is returned when the process could not be launched.
	ErrLaunchFailed = errors.New("task launch failed")

	// ErrStopTimeout is returned when a running task did not reach a terminal
	// state within the stop timeout.
	ErrStopTimeout = errors.New("task did not stop in time")
)

// Validation errors.
var (
	ErrEmptyTaskID       = errors.New("task ID cannot be empty")
	ErrEmptyUserID       = errors.New("user ID cannot be empty")
	ErrInvalidImage      = errors.New("invalid image reference")
	ErrInvalidTaskState  = errors.New("invalid task state")
	ErrInvalidTransition = errors.New("invalid task state transition")
)
