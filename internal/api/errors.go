package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/mumahendras3/packer-server/internal/api/shared"
	"github.com/mumahendras3/packer-server/internal/domain"
	"github.com/mumahendras3/packer-server/internal/service"
	"github.com/mumahendras3/packer-server/internal/service/auth"
	"github.com/mumahendras3/packer-server/internal/store"
	"github.com/mumahendras3/packer-server/internal/task"
)

// Client-facing messages. They are part of the HTTP contract.
const (
	msgTaskNotFound       = "Task not found"
	msgTaskNotStarted     = "Task not yet started"
	msgTaskFailed         = "Task fail"
	msgTaskStillRunning   = "Task is still running"
	msgDuplicateTask      = "Task already exists"
	msgNoImageFound       = "No image found"
	msgInvalidImage       = "Invalid image reference"
	msgSearchUnavailable  = "Image registry unavailable"
	msgLaunchFailed       = "Task failed to launch"
	msgStopTimeout        = "Task did not stop in time"
	msgShuttingDown       = "Server is shutting down"
	msgInvalidToken       = "Invalid token"
	msgInvalidCredentials = "Invalid email/password"
	msgEmailExists        = "This email has already been registered"
	msgInvalidRequest     = "Invalid request format"
	msgInternal           = "Internal server error"
)

// errorMapping pairs a sentinel with its status and message. Order matters:
// the first match wins.
var errorMapping = []struct {
	err     error
	status  int
	message string
}{
	{domain.ErrTaskNotFound, http.StatusNotFound, msgTaskNotFound},
	{domain.ErrTaskNotStarted, http.StatusBadRequest, msgTaskNotStarted},
	{domain.ErrTaskFailed, http.StatusBadRequest, msgTaskFailed},
	{domain.ErrTaskStillRunning, http.StatusBadRequest, msgTaskStillRunning},
	{domain.ErrDuplicateTask, http.StatusConflict, msgDuplicateTask},
	{domain.ErrNoImageFound, http.StatusNotFound, msgNoImageFound},
	{domain.ErrInvalidImage, http.StatusBadRequest, msgInvalidImage},
	{domain.ErrSearchUnavailable, http.StatusBadGateway, msgSearchUnavailable},
	{domain.ErrLaunchFailed, http.StatusBadGateway, msgLaunchFailed},
	{domain.ErrStopTimeout, http.StatusGatewayTimeout, msgStopTimeout},
	{task.ErrManagerStopped, http.StatusServiceUnavailable, msgShuttingDown},
	{auth.ErrInvalidToken, http.StatusUnauthorized, msgInvalidToken},
	{auth.ErrExpiredToken, http.StatusUnauthorized, msgInvalidToken},
	{auth.ErrTokenNotYetValid, http.StatusUnauthorized, msgInvalidToken},
	{auth.ErrMissingToken, http.StatusUnauthorized, msgInvalidToken},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, msgInvalidCredentials},
	{store.ErrEmailExists, http.StatusBadRequest, msgEmailExists},
}

// MapError returns the HTTP status and client message for err.
// Unknown errors are 500 "Internal server error".
func MapError(err error) (int, string) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			return m.status, m.message
		}
	}
	return http.StatusInternalServerError, msgInternal
}

// HandleAPIError writes the mapped error response and logs err, redacted.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := MapError(err)
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}

// validationMessage turns a registration or login validation failure into
// one client message, reporting the first failing field.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Field() {
		case "Email":
			if fe.Tag() == "required" {
				return "Email is required"
			}
			return "Invalid email format"
		case "Password":
			if fe.Tag() == "required" {
				return "Password is required"
			}
			return "Password must be at most 72 characters"
		case "Image":
			return "Image is required"
		case "Term":
			return "Search term is required"
		}
	}

	switch {
	case errors.Is(err, domain.ErrEmptyEmail):
		return "Email is required"
	case errors.Is(err, domain.ErrInvalidEmail):
		return "Invalid email format"
	case errors.Is(err, domain.ErrEmptyPassword):
		return "Password is required"
	case errors.Is(err, domain.ErrPasswordTooLong):
		return "Password must be at most 72 characters"
	}
	return "Validation error"
}
