package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewTask(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	task, err := NewTask(owner, "nginx:latest")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if task.ID == uuid.Nil {
		t.Error("Expected non-nil UUID")
	}
	if task.State != TaskStateCreated {
		t.Errorf("Expected state %s, got %s", TaskStateCreated, task.State)
	}
	if task.StartedAt != nil || task.EndedAt != nil {
		t.Error("Expected no lifecycle timestamps on a new task")
	}
	if task.Logs == nil {
		t.Error("Expected an empty, non-nil log buffer")
	}

	if _, err := NewTask(uuid.Nil, "nginx"); !errors.Is(err, ErrEmptyUserID) {
		t.Errorf("Expected %v, got %v", ErrEmptyUserID, err)
	}
	if _, err := NewTask(owner, ""); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("Expected %v, got %v", ErrInvalidImage, err)
	}
}

func TestTaskStateTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to TaskState
		allowed  bool
	}{
		{TaskStateCreated, TaskStateRunning, true},
		{TaskStateCreated, TaskStateSucceeded, false},
		{TaskStateCreated, TaskStateFailed, false},
		{TaskStateRunning, TaskStateSucceeded, true},
		{TaskStateRunning, TaskStateFailed, true},
		{TaskStateRunning, TaskStateRunning, false},
		{TaskStateSucceeded, TaskStateRunning, true},
		{TaskStateFailed, TaskStateRunning, true},
		{TaskStateSucceeded, TaskStateFailed, false},
		{TaskStateFailed, TaskStateCreated, false},
	}

	for _, tc := range tests {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}

	if TaskStateRunning.IsTerminal() || TaskStateCreated.IsTerminal() {
		t.Error("Created and Running must not be terminal")
	}
	if !TaskStateSucceeded.IsTerminal() || !TaskStateFailed.IsTerminal() {
		t.Error("Succeeded and Failed must be terminal")
	}
}

func TestTaskLifecycleInvariants(t *testing.T) {
	t.Parallel()

	now := time.Now()
	task, err := NewTask(uuid.New(), "nginx:latest")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if err := task.MarkSucceeded("out", nil, now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Expected %v completing a created task, got %v", ErrInvalidTransition, err)
	}

	if err := task.MarkRunning("container-1", now); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := task.Validate(); err != nil {
		t.Fatalf("Running task should be valid: %v", err)
	}
	if task.StartedAt == nil {
		t.Fatal("Expected StartedAt to be set")
	}
	if err := task.MarkRunning("container-2", now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Expected %v on double start, got %v", ErrInvalidTransition, err)
	}

	if err := task.MarkSucceeded("/out/1", []string{"a", "b"}, now); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if task.ProcessHandle != "" {
		t.Error("Expected handle to be cleared after completion")
	}
	if task.Output != "/out/1" {
		t.Errorf("Expected output /out/1, got %q", task.Output)
	}
	if len(task.Logs) != 2 || task.EndedAt == nil {
		t.Error("Expected frozen logs and EndedAt after completion")
	}
	if err := task.Validate(); err != nil {
		t.Fatalf("Succeeded task should be valid: %v", err)
	}

	// Re-run resets the previous run's results.
	if err := task.MarkRunning("container-3", now); err != nil {
		t.Fatalf("Expected re-run to be allowed, got %v", err)
	}
	if task.Output != "" || len(task.Logs) != 0 || task.EndedAt != nil {
		t.Error("Expected re-run to clear output, logs and EndedAt")
	}

	if err := task.MarkFailed("", []string{"boom"}, now); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if task.FailureReason == "" {
		t.Error("Expected a default failure reason")
	}
	if err := task.Validate(); err != nil {
		t.Fatalf("Failed task should be valid: %v", err)
	}
}

func TestTaskValidateRejectsBrokenInvariants(t *testing.T) {
	t.Parallel()

	base, err := NewTask(uuid.New(), "nginx:latest")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	handleWithoutRun := base.Clone()
	handleWithoutRun.ProcessHandle = "abc"
	if err := handleWithoutRun.Validate(); !errors.Is(err, ErrInvalidTaskState) {
		t.Errorf("Expected %v, got %v", ErrInvalidTaskState, err)
	}

	outputWithoutSuccess := base.Clone()
	outputWithoutSuccess.Output = "/out"
	if err := outputWithoutSuccess.Validate(); !errors.Is(err, ErrInvalidTaskState) {
		t.Errorf("Expected %v, got %v", ErrInvalidTaskState, err)
	}

	unknown := base.Clone()
	unknown.State = "paused"
	if err := unknown.Validate(); !errors.Is(err, ErrInvalidTaskState) {
		t.Errorf("Expected %v, got %v", ErrInvalidTaskState, err)
	}
}

func TestTaskCloneIsDeep(t *testing.T) {
	t.Parallel()

	task, _ := NewTask(uuid.New(), "nginx:latest")
	_ = task.MarkRunning("c1", time.Now())
	_ = task.MarkSucceeded("/out", []string{"line"}, time.Now())

	clone := task.Clone()
	clone.Logs[0] = "changed"
	*clone.StartedAt = time.Time{}

	if task.Logs[0] != "line" {
		t.Error("Expected logs to be copied")
	}
	if task.StartedAt.IsZero() {
		t.Error("Expected StartedAt to be copied")
	}
}
