package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskState represents a task's position in its lifecycle.
type TaskState string

const (
	// TaskStateCreated indicates the task exists but has never been started.
	TaskStateCreated TaskState = "created"

	// TaskStateRunning indicates a process is currently supervised for the task.
	TaskStateRunning TaskState = "running"

	// TaskStateSucceeded indicates the last run completed and produced an output.
	TaskStateSucceeded TaskState = "succeeded"

	// TaskStateFailed indicates the last run ended without an output.
	TaskStateFailed TaskState = "failed"
)

// transitions lists every legal state change. Terminal states may move back
// to running, which is an explicit re-run.
var transitions = map[TaskState][]TaskState{
	TaskStateCreated:   {TaskStateRunning},
	TaskStateRunning:   {TaskStateSucceeded, TaskStateFailed},
	TaskStateSucceeded: {TaskStateRunning},
	TaskStateFailed:    {TaskStateRunning},
}

// Valid reports whether s is one of the known states.
func (s TaskState) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether s is Succeeded or Failed.
func (s TaskState) IsTerminal() bool {
	return s == TaskStateSucceeded || s == TaskStateFailed
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s TaskState) CanTransitionTo(next TaskState) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Task is one run-able unit of work bound to a container image.
//
// ProcessHandle is non-empty only while the task is running, and Output is
// non-empty only once it has succeeded. The Mark* methods are the only
// mutators of lifecycle fields and keep both invariants intact.
type Task struct {
	ID            uuid.UUID  `json:"id"`
	Image         string     `json:"image"`
	OwnerID       uuid.UUID  `json:"owner_id"`
	State         TaskState  `json:"state"`
	ProcessHandle string     `json:"-"`
	Logs          []string   `json:"-"`
	Output        string     `json:"output,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewTask creates a task in the Created state for the given owner and image.
func NewTask(ownerID uuid.UUID, image string) (*Task, error) {
	now := time.Now().UTC()
	t := &Task{
		ID:        uuid.New(),
		Image:     image,
		OwnerID:   ownerID,
		State:     TaskStateCreated,
		Logs:      []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	return t, nil
}

// Validate checks field presence and the lifecycle invariants.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}
	if t.OwnerID == uuid.Nil {
		return ErrEmptyUserID
	}
	if t.Image == "" {
		return ErrInvalidImage
	}
	if !t.State.Valid() {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidTaskState, t.State)
	}
	if (t.ProcessHandle != "") != (t.State == TaskStateRunning) {
		return fmt.Errorf("%w: process handle present in state %s", ErrInvalidTaskState, t.State)
	}
	if (t.Output != "") != (t.State == TaskStateSucceeded) {
		return fmt.Errorf("%w: output present in state %s", ErrInvalidTaskState, t.State)
	}
	return nil
}

// HasRun reports whether the task has been started at least once.
func (t *Task) HasRun() bool {
	return t.State != TaskStateCreated
}

// MarkRunning moves the task into Running for a freshly launched process.
// A re-run discards the previous run's logs, output and failure reason.
func (t *Task) MarkRunning(handle string, now time.Time) error {
	if err := t.transition(TaskStateRunning); err != nil {
		return err
	}
	if handle == "" {
		return fmt.Errorf("%w: empty process handle", ErrInvalidTaskState)
	}

	started := now.UTC()
	t.State = TaskStateRunning
	t.ProcessHandle = handle
	t.Logs = []string{}
	t.Output = ""
	t.FailureReason = ""
	t.StartedAt = &started
	t.EndedAt = nil
	t.UpdatedAt = started
	return nil
}

// MarkSucceeded records a completed run with its output reference and the
// frozen log buffer.
func (t *Task) MarkSucceeded(output string, logs []string, now time.Time) error {
	if err := t.transition(TaskStateSucceeded); err != nil {
		return err
	}
	if output == "" {
		return fmt.Errorf("%w: empty output reference", ErrInvalidTaskState)
	}

	t.State = TaskStateSucceeded
	t.Output = output
	t.finish(logs, now)
	return nil
}

// MarkFailed records a run that ended without output.
func (t *Task) MarkFailed(reason string, logs []string, now time.Time) error {
	if err := t.transition(TaskStateFailed); err != nil {
		return err
	}
	if reason == "" {
		reason = "unknown failure"
	}

	t.State = TaskStateFailed
	t.Output = ""
	t.FailureReason = reason
	t.finish(logs, now)
	return nil
}

func (t *Task) transition(next TaskState) error {
	if !t.State.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.State, next)
	}
	return nil
}

func (t *Task) finish(logs []string, now time.Time) {
	ended := now.UTC()
	t.ProcessHandle = ""
	if logs == nil {
		logs = []string{}
	}
	t.Logs = logs
	t.EndedAt = &ended
	t.UpdatedAt = ended
}

// Clone returns a deep copy so callers can hand tasks across goroutines.
func (t *Task) Clone() *Task {
	c := *t
	c.Logs = append([]string{}, t.Logs...)
	if t.StartedAt != nil {
		v := *t.StartedAt
		c.StartedAt = &v
	}
	if t.EndedAt != nil {
		v := *t.EndedAt
		c.EndedAt = &v
	}
	return &c
}
