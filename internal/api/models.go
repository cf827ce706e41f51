package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/mumahendras3/packer-server/internal/domain"
)

// RegisterRequest defines the payload for the user registration endpoint.
type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Name     string `json:"name"     validate:"max=200"`
	Password string `json:"password" validate:"required,max=72"`
}

// RegisterResponse is returned by a successful registration.
type RegisterResponse struct {
	ID      uuid.UUID `json:"id"`
	Email   string    `json:"email"`
	Name    string    `json:"name"`
	Message string    `json:"message"`
}

// LoginRequest defines the payload for the user login endpoint.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the bearer token for task routes.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Email       string `json:"email"`
	Name        string `json:"name"`
}

// AddTaskRequest names the image a new task runs.
type AddTaskRequest struct {
	Image string `json:"image" validate:"required"`
}

// SearchRequest is the payload of an image search.
type SearchRequest struct {
	Term string `json:"term" validate:"required"`
}

// TaskResponse is the public view of a task.
type TaskResponse struct {
	ID        uuid.UUID        `json:"id"`
	Image     string           `json:"image"`
	State     domain.TaskState `json:"state"`
	Reason    string           `json:"reason,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	StartedAt *time.Time       `json:"started_at,omitempty"`
	EndedAt   *time.Time       `json:"ended_at,omitempty"`
}

// TaskStatusResponse is returned by the status route.
type TaskStatusResponse struct {
	ID        uuid.UUID        `json:"id"`
	State     domain.TaskState `json:"state"`
	StartedAt *time.Time       `json:"started_at"`
	EndedAt   *time.Time       `json:"ended_at"`
	Reason    string           `json:"reason,omitempty"`
}

// TaskLogsResponse is returned by the logs route.
type TaskLogsResponse struct {
	ID    uuid.UUID        `json:"id"`
	State domain.TaskState `json:"state"`
	Logs  []string         `json:"logs"`
}

// HealthResponse is returned by the health route.
type HealthResponse struct {
	Status string `json:"status"`
}

func newTaskResponse(t *domain.Task) TaskResponse {
	return TaskResponse{
		ID:        t.ID,
		Image:     t.Image,
		State:     t.State,
		Reason:    t.FailureReason,
		CreatedAt: t.CreatedAt,
		StartedAt: t.StartedAt,
		EndedAt:   t.EndedAt,
	}
}

func newTaskResponses(tasks []*domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, newTaskResponse(t))
	}
	return out
}
