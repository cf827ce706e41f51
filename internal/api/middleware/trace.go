package middleware

import (
	"log/slog"
	"net/http"

	"github.com/mumahendras3/packer-server/internal/api/shared"
	"github.com/mumahendras3/packer-server/internal/platform/logger"
)

// Trace adds a trace ID and a request-scoped logger to the request context.
// It must run before any handler that responds with an error.
func Trace(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.SetTraceID(r.Context())
			log := base.With(slog.String("trace_id", shared.GetTraceID(ctx)))
			ctx = logger.WithLogger(ctx, log)

			log.Debug("request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
