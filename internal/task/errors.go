package task

import "errors"

var (
	// ErrManagerStopped is returned by StartTask once shutdown has begun.
	ErrManagerStopped = errors.New("task manager is stopped")

	// ErrOutcomeNotRecorded is returned by StartTask while the outcome of
	// the task's previous run has not reached the store.
	ErrOutcomeNotRecorded = errors.New("previous run outcome not recorded")
)

// Failure reasons recorded by the manager itself.
const (
	ReasonCancelled   = "cancelled"
	ReasonTimedOut    = "timed out"
	ReasonShutdown    = "server shutting down"
	ReasonInterrupted = "interrupted: server restarted"
	ReasonNoOutput    = "run produced no output"
	ReasonLost        = "process supervision lost"
)
