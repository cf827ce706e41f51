package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type identifies what happened to a task.
type Type string

// Lifecycle event types.
const (
	TaskCreated   Type = "task.created"
	TaskStarted   Type = "task.started"
	TaskSucceeded Type = "task.succeeded"
	TaskFailed    Type = "task.failed"
	TaskDeleted   Type = "task.deleted"
)

// TaskEvent records one lifecycle change of a task.
type TaskEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	Type    Type      `json:"type"`
	TaskID  uuid.UUID `json:"task_id"`
	OwnerID uuid.UUID `json:"owner_id"`
	Image   string    `json:"image"`

	// State is the task state after the change. Empty for deletions.
	State string `json:"state,omitempty"`

	// Reason explains a failure; empty otherwise.
	Reason string `json:"reason,omitempty"`

	// Duration is the run time for succeeded and failed events.
	Duration time.Duration `json:"duration,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// NewTaskEvent creates an event of the given type stamped with now.
func NewTaskEvent(eventType Type, taskID, ownerID uuid.UUID, image string) *TaskEvent {
	return &TaskEvent{
		ID:         uuid.New(),
		Type:       eventType,
		TaskID:     taskID,
		OwnerID:    ownerID,
		Image:      image,
		OccurredAt: time.Now().UTC(),
	}
}

// IsTerminal reports whether the event marks the end of a run.
func (e *TaskEvent) IsTerminal() bool {
	return e.Type == TaskSucceeded || e.Type == TaskFailed
}

// EventHandler defines an interface for components that react to task events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *TaskEvent) error
}

// EventEmitter defines an interface for components that publish task events.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *TaskEvent) error
}

// EventHandlerFunc adapts a plain function to EventHandler.
type EventHandlerFunc func(ctx context.Context, event *TaskEvent) error

// HandleEvent calls f(ctx, event).
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *TaskEvent) error {
	return f(ctx, event)
}

// NopEmitter discards every event.
type NopEmitter struct{}

// EmitEvent implements EventEmitter.
func (NopEmitter) EmitEvent(context.Context, *TaskEvent) error { return nil }
