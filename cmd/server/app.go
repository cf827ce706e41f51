package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/mumahendras3/packer-server/internal/config"
	"github.com/mumahendras3/packer-server/internal/events"
	"github.com/mumahendras3/packer-server/internal/platform/artifact"
	"github.com/mumahendras3/packer-server/internal/platform/docker"
	"github.com/mumahendras3/packer-server/internal/platform/logger"
	"github.com/mumahendras3/packer-server/internal/platform/postgres"
	"github.com/mumahendras3/packer-server/internal/platform/telemetry"
	"github.com/mumahendras3/packer-server/internal/service"
	"github.com/mumahendras3/packer-server/internal/service/auth"
	"github.com/mumahendras3/packer-server/internal/task"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	telemetry *telemetry.Providers

	jwtService  auth.JWTService
	userService service.UserService
	taskManager *task.Manager
	docker      docker.API

	closeTasks func()
}

// newApplication wires every dependency of the HTTP server. On error,
// whatever was already opened is released.
func newApplication(ctx context.Context, cfg *config.Config) (*application, error) {
	app := &application{config: cfg}
	if err := app.init(ctx); err != nil {
		app.cleanup(context.Background())
		return nil, err
	}
	return app, nil
}

func (app *application) init(ctx context.Context) error {
	cfg := app.config
	var err error

	app.telemetry, err = telemetry.Setup(ctx, cfg.Telemetry, nil)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}

	app.logger, err = setupLogger(cfg, app.telemetry.LogHandler)
	if err != nil {
		return err
	}

	app.db, err = setupAppDatabase(ctx, cfg.Database, app.logger)
	if err != nil {
		return err
	}
	if cfg.Database.AutoMigrate {
		if err = postgres.Migrate(ctx, app.db, postgres.MigrateUp, app.logger); err != nil {
			return err
		}
	}

	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	app.logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	userStore := postgres.NewPostgresUserStore(app.db, cfg.Auth.BcryptCost, app.logger)
	app.userService, err = service.NewUserService(userStore, auth.NewBcryptVerifier(), app.db, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create user service: %w", err)
	}

	emitter := events.NewInMemoryEventEmitter(app.logger)
	emitter.RegisterHandler(task.NewAuditEventHandler(app.logger))
	metrics, err := telemetry.NewTaskMetrics(app.telemetry.MeterProvider)
	if err != nil {
		return fmt.Errorf("failed to create task metrics: %w", err)
	}
	emitter.RegisterHandler(metrics)

	deps, err := newTaskDependencies(ctx, cfg, app.db, app.logger)
	if err != nil {
		return err
	}
	app.docker = deps.docker
	app.closeTasks = deps.close

	app.taskManager, err = deps.manager(cfg, emitter, app.logger)
	if err != nil {
		return err
	}
	if err = app.taskManager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task manager: %w", err)
	}

	app.logger.Info("Application initialized successfully")
	return nil
}

// Run serves HTTP until ctx is cancelled, then shuts everything down.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources. Active runs
// are stopped before the database closes so their final state is saved.
func (app *application) cleanup(ctx context.Context) {
	log := app.logger
	if log == nil {
		log = slog.Default()
	}

	if app.taskManager != nil {
		if err := app.taskManager.Stop(ctx); err != nil {
			log.Error("Error stopping task manager", "error", err)
		}
	}
	if app.closeTasks != nil {
		app.closeTasks()
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			log.Error("Error closing database connection", "error", err)
		}
	}
	if app.telemetry != nil {
		if err := app.telemetry.Shutdown(ctx); err != nil {
			log.Error("Error shutting down telemetry", "error", err)
		}
	}

	log.Info("Application shutdown completed")
}

// setupLogger installs the JSON logger, teeing into extra when it is set.
func setupLogger(cfg *config.Config, extra slog.Handler) (*slog.Logger, error) {
	var handlers []slog.Handler
	if extra != nil {
		handlers = append(handlers, extra)
	}
	l, err := logger.Setup(cfg.Server, handlers...)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	l.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)
	return l, nil
}

// taskDependencies are the adapters a task.Manager runs on.
type taskDependencies struct {
	docker    docker.API
	artifacts *artifact.FileStore
	searcher  *docker.Searcher
	runner    *docker.Runner
	store     *postgres.PostgresTaskStore
}

func newTaskDependencies(ctx context.Context, cfg *config.Config, db *sql.DB, log *slog.Logger) (*taskDependencies, error) {
	dockerClient, err := docker.NewClient(cfg.Docker.Host)
	if err != nil {
		return nil, err
	}
	if err := docker.Ping(ctx, dockerClient); err != nil {
		_ = dockerClient.Close()
		return nil, err
	}

	artifacts, err := artifact.NewFileStore(cfg.Task.ArtifactDir)
	if err != nil {
		_ = dockerClient.Close()
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}
	log.Info("Task dependencies initialized",
		"artifact_dir", artifacts.Dir(),
		"docker_host", dockerClient.DaemonHost())

	return &taskDependencies{
		docker:    dockerClient,
		artifacts: artifacts,
		searcher:  docker.NewSearcher(dockerClient, cfg.Task.SearchLimit),
		runner:    docker.NewRunner(dockerClient, artifacts, runnerConfig(cfg.Docker), log),
		store:     postgres.NewPostgresTaskStore(db, log),
	}, nil
}

func (d *taskDependencies) manager(cfg *config.Config, emitter events.EventEmitter, log *slog.Logger) (*task.Manager, error) {
	m, err := task.NewManager(d.store, d.searcher, d.runner, d.artifacts, emitter, managerConfig(cfg.Task), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create task manager: %w", err)
	}
	return m, nil
}

func (d *taskDependencies) close() {
	_ = d.artifacts.Close()
	_ = d.docker.Close()
}

// newTaskManager builds a manager for maintenance commands. The caller
// runs cleanup when done.
func newTaskManager(
	ctx context.Context,
	cfg *config.Config,
	db *sql.DB,
	emitter events.EventEmitter,
	log *slog.Logger,
) (*task.Manager, func(), error) {
	deps, err := newTaskDependencies(ctx, cfg, db, log)
	if err != nil {
		return nil, nil, err
	}
	m, err := deps.manager(cfg, emitter, log)
	if err != nil {
		deps.close()
		return nil, nil, err
	}
	return m, deps.close, nil
}

func managerConfig(c config.TaskConfig) task.ManagerConfig {
	return task.ManagerConfig{
		LaunchTimeout:   c.LaunchTimeout(),
		StopTimeout:     c.StopTimeout(),
		MaxRunDuration:  c.MaxRunDuration(),
		MonitorInterval: c.MonitorInterval(),
	}
}

func runnerConfig(c config.DockerConfig) docker.RunnerConfig {
	return docker.RunnerConfig{
		OutputPath:    c.OutputPath,
		MemoryLimitMB: c.MemoryLimitMB,
		CPULimit:      c.CPULimit,
		PullImages:    c.PullImages,
		StopGrace:     c.StopGrace(),
	}
}
