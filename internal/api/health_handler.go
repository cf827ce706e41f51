package api

import (
	"context"
	"net/http"
	"time"

	"github.com/mumahendras3/packer-server/internal/api/shared"
)

// healthCheckTimeout bounds each dependency probe.
const healthCheckTimeout = 2 * time.Second

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// HealthHandler reports whether the server and its dependencies respond.
type HealthHandler struct {
	checks map[string]HealthCheck
}

// NewHealthHandler creates a HealthHandler running the named checks.
func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health handles GET /health. It answers 200 {"status":"ok"} or 503 with the
// name of the first failing dependency.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	for name, check := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable, name+" unavailable", err)
			return
		}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok"})
}
