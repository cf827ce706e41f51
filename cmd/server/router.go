package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mumahendras3/packer-server/internal/api"
	apiMiddleware "github.com/mumahendras3/packer-server/internal/api/middleware"
	"github.com/mumahendras3/packer-server/internal/platform/docker"
	"github.com/mumahendras3/packer-server/internal/service"
	"github.com/mumahendras3/packer-server/internal/service/auth"
)

// routerDeps is what the HTTP layer needs from the application.
type routerDeps struct {
	logger      *slog.Logger
	jwtService  auth.JWTService
	userService service.UserService
	tasks       api.TaskManager
	checks      map[string]api.HealthCheck
}

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	checks := map[string]api.HealthCheck{
		"database": func(ctx context.Context) error { return pingDB(ctx, app.db) },
	}
	if app.docker != nil {
		checks["docker"] = func(ctx context.Context) error { return docker.Ping(ctx, app.docker) }
	}

	return newRouter(routerDeps{
		logger:      app.logger,
		jwtService:  app.jwtService,
		userService: app.userService,
		tasks:       app.taskManager,
		checks:      checks,
	})
}

func newRouter(deps routerDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.Trace(deps.logger))

	authHandler := api.NewAuthHandler(deps.userService, deps.jwtService)
	authMiddleware := apiMiddleware.NewAuthMiddleware(deps.jwtService)
	taskHandler := api.NewTaskHandler(deps.tasks)
	healthHandler := api.NewHealthHandler(deps.checks)

	r.Post("/register", authHandler.Register)
	r.Post("/login", authHandler.Login)
	r.Get("/health", healthHandler.Health)

	r.Route("/tasks", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)
		taskHandler.Routes(r)
	})

	return otelhttp.NewHandler(r, "packer-server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
}

func pingDB(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return sql.ErrConnDone
	}
	return db.PingContext(ctx)
}
