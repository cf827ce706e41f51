package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/mumahendras3/packer-server/internal/api/shared"
	"github.com/mumahendras3/packer-server/internal/domain"
	"github.com/mumahendras3/packer-server/internal/platform/logger"
	"github.com/mumahendras3/packer-server/internal/service"
	"github.com/mumahendras3/packer-server/internal/service/auth"
)

// AuthHandler handles registration and login.
type AuthHandler struct {
	users      service.UserService
	jwtService auth.JWTService
}

// NewAuthHandler creates a new AuthHandler with the given dependencies.
func NewAuthHandler(users service.UserService, jwtService auth.JWTService) *AuthHandler {
	return &AuthHandler{
		users:      users,
		jwtService: jwtService,
	}
}

// Register handles POST /register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, msgInvalidRequest, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, validationMessage(err), err)
		return
	}

	user, err := h.users.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		if isUserValidationError(err) {
			shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, validationMessage(err), err)
			return
		}
		HandleAPIError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Info("user registered", "user_id", user.ID)
	shared.RespondWithJSON(w, r, http.StatusCreated, RegisterResponse{
		ID:      user.ID,
		Email:   user.Email,
		Name:    user.Name,
		Message: "Registration successful",
	})
}

// Login handles POST /login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, msgInvalidRequest, err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, validationMessage(err), err)
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	token, err := h.jwtService.GenerateToken(r.Context(), user.ID)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, LoginResponse{
		AccessToken: token,
		Email:       user.Email,
		Name:        user.Name,
	})
}

func isUserValidationError(err error) bool {
	return errors.Is(err, domain.ErrEmptyEmail) ||
		errors.Is(err, domain.ErrInvalidEmail) ||
		errors.Is(err, domain.ErrEmptyPassword) ||
		errors.Is(err, domain.ErrPasswordTooLong)
}
