package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mumahendras3/packer-server/internal/api/shared"
	"github.com/mumahendras3/packer-server/internal/domain"
	"github.com/mumahendras3/packer-server/internal/platform/logger"
)

// TaskManager is the task lifecycle as seen by the HTTP layer.
// *task.Manager implements it.
type TaskManager interface {
	AddTask(ctx context.Context, ownerID uuid.UUID, image string) (*domain.Task, error)
	ListTasks(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, error)
	GetTask(ctx context.Context, id, ownerID uuid.UUID) (*domain.Task, error)
	StartTask(ctx context.Context, id, ownerID uuid.UUID) (*domain.Task, error)
	CheckTask(ctx context.Context, id, ownerID uuid.UUID) (*domain.Task, error)
	GetTaskLogs(ctx context.Context, id, ownerID uuid.UUID) (*domain.Task, error)
	FollowLogs(ctx context.Context, id, ownerID uuid.UUID, emit func(lines []string) error) error
	OpenOutput(ctx context.Context, id, ownerID uuid.UUID) (io.ReadCloser, string, error)
	DeleteTask(ctx context.Context, id, ownerID uuid.UUID) error
	Search(ctx context.Context, term string) ([]domain.ImageCandidate, error)
}

// TaskHandler serves the /tasks routes.
type TaskHandler struct {
	tasks TaskManager
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(tasks TaskManager) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// Routes mounts the task routes on r. Authentication is applied by the caller.
func (h *TaskHandler) Routes(r chi.Router) {
	r.Get("/", h.ListTasks)
	r.Post("/", h.AddTask)
	r.Post("/search", h.Search)
	r.Route("/{"+taskIDParam+"}", func(r chi.Router) {
		r.Get("/", h.GetTask)
		r.Post("/", h.StartTask)
		r.Delete("/", h.DeleteTask)
		r.Get("/status", h.CheckTask)
		r.Get("/logs", h.GetTaskLogs)
		r.Get("/logs/stream", h.StreamLogs)
		r.Get("/download", h.DownloadOutput)
	})
}

// ListTasks handles GET /tasks.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	tasks, err := h.tasks.ListTasks(r.Context(), owner)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, newTaskResponses(tasks))
}

// AddTask handles POST /tasks.
func (h *TaskHandler) AddTask(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req AddTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, msgInvalidRequest, err)
		return
	}
	req.Image = strings.TrimSpace(req.Image)
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, validationMessage(err), err)
		return
	}

	t, err := h.tasks.AddTask(r.Context(), owner, req.Image)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, newTaskResponse(t))
}

// Search handles POST /tasks/search.
func (h *TaskHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, msgInvalidRequest, err)
		return
	}
	req.Term = strings.TrimSpace(req.Term)
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, validationMessage(err), err)
		return
	}

	candidates, err := h.tasks.Search(r.Context(), req.Term)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	if candidates == nil {
		candidates = []domain.ImageCandidate{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, candidates)
}

// GetTask handles GET /tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndTaskID(w, r)
	if !ok {
		return
	}

	t, err := h.tasks.GetTask(r.Context(), id, owner)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, newTaskResponse(t))
}

// StartTask handles POST /tasks/{id}.
func (h *TaskHandler) StartTask(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndTaskID(w, r)
	if !ok {
		return
	}

	t, err := h.tasks.StartTask(r.Context(), id, owner)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, newTaskResponse(t))
}

// DeleteTask handles DELETE /tasks/{id}.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndTaskID(w, r)
	if !ok {
		return
	}

	if err := h.tasks.DeleteTask(r.Context(), id, owner); err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, shared.MessageResponse{Message: "Task deleted"})
}

// CheckTask handles GET /tasks/{id}/status.
func (h *TaskHandler) CheckTask(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndTaskID(w, r)
	if !ok {
		return
	}

	t, err := h.tasks.CheckTask(r.Context(), id, owner)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, TaskStatusResponse{
		ID:        t.ID,
		State:     t.State,
		StartedAt: t.StartedAt,
		EndedAt:   t.EndedAt,
		Reason:    t.FailureReason,
	})
}

// GetTaskLogs handles GET /tasks/{id}/logs.
func (h *TaskHandler) GetTaskLogs(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndTaskID(w, r)
	if !ok {
		return
	}

	t, err := h.tasks.GetTaskLogs(r.Context(), id, owner)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	logs := t.Logs
	if logs == nil {
		logs = []string{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, TaskLogsResponse{ID: t.ID, State: t.State, Logs: logs})
}

// DownloadOutput handles GET /tasks/{id}/download by streaming the output
// archive of the last successful run.
func (h *TaskHandler) DownloadOutput(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndTaskID(w, r)
	if !ok {
		return
	}

	rc, _, err := h.tasks.OpenOutput(r.Context(), id, owner)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", "application/x-tar")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.tar"`, id))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		logger.FromContext(r.Context()).Error("failed to stream task output",
			"task_id", id,
			"error", err)
	}
}

// StreamLogs handles GET /tasks/{id}/logs/stream. Each log line is sent as a
// text frame; the connection closes normally when the run ends.
func (h *TaskHandler) StreamLogs(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndTaskID(w, r)
	if !ok {
		return
	}

	// Report lookup errors over HTTP before upgrading.
	if _, err := h.tasks.CheckTask(r.Context(), id, owner); err != nil {
		HandleAPIError(w, r, err)
		return
	}

	log := logger.FromContext(r.Context())
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn("failed to accept log stream", "task_id", id, "error", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	// Clients only listen; CloseRead cancels ctx when they go away.
	ctx := conn.CloseRead(r.Context())

	err = h.tasks.FollowLogs(ctx, id, owner, func(lines []string) error {
		for _, line := range lines {
			if err := conn.Write(ctx, websocket.MessageText, []byte(line)); err != nil {
				return err
			}
		}
		return nil
	})

	switch {
	case err == nil:
		_ = conn.Close(websocket.StatusNormalClosure, "task finished")
	case errors.Is(err, context.Canceled), websocket.CloseStatus(err) != -1:
		log.Debug("log stream closed by client", "task_id", id)
	default:
		log.Error("log stream failed", "task_id", id, "error", err)
		_ = conn.Close(websocket.StatusInternalError, "log stream failed")
	}
}
