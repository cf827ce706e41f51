package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mumahendras3/packer-server/internal/api/shared"
	"github.com/mumahendras3/packer-server/internal/domain"
	"github.com/mumahendras3/packer-server/internal/service/auth"
)

// taskIDParam is the chi URL parameter holding the task ID.
const taskIDParam = "id"

// ownerAndTaskID extracts the authenticated user ID and the task ID from the
// request. It writes an error response and returns false if either is missing.
// An ID that does not parse is reported as a missing task.
func ownerAndTaskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	ownerID, ok := ownerID(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	raw := chi.URLParam(r, taskIDParam)
	taskID, err := uuid.Parse(raw)
	if err != nil {
		HandleAPIError(w, r, fmt.Errorf("%w: unparsable id %q", domain.ErrTaskNotFound, raw))
		return uuid.Nil, uuid.Nil, false
	}

	return ownerID, taskID, true
}

// ownerID returns the authenticated user ID set by the auth middleware.
func ownerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		HandleAPIError(w, r, auth.ErrMissingToken)
		return uuid.Nil, false
	}
	return id, true
}
