package middleware_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mumahendras3/packer-server/internal/api/middleware"
	"github.com/mumahendras3/packer-server/internal/api/shared"
	"github.com/mumahendras3/packer-server/internal/mocks"
)

func TestTraceSetsTraceID(t *testing.T) {
	t.Parallel()

	var seen string
	h := middleware.Trace(slog.New(slog.NewTextHandler(io.Discard, nil)))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = shared.GetTraceID(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, shared.TraceIDLength*2)
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	auth := middleware.NewAuthMiddleware(mocks.TokenFor("good", owner))
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := shared.UserIDFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, owner, id)
		w.WriteHeader(http.StatusNoContent)
	})
	h := middleware.Trace(nil)(auth.Authenticate(next))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer good", http.StatusNoContent},
		{"lowercase scheme", "bearer good", http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"no token", "Bearer ", http.StatusUnauthorized},
		{"wrong scheme", "Token good", http.StatusUnauthorized},
		{"rejected", "Bearer bad", http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusUnauthorized {
				var body shared.ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, "Invalid token", body.Message)
				assert.NotEmpty(t, body.TraceID)
			}
		})
	}
}
