package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/mumahendras3/packer-server/internal/config"
	"github.com/mumahendras3/packer-server/internal/platform/postgres"
)

// newRootCommand returns the top-level CLI command.
func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "packer-server",
		Usage: "Run container tasks over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a config file (default: ./config.yaml or /etc/packer-server/config.yaml)",
				Sources: cli.EnvVars("PACKER_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path to a .env file loaded before reading the environment",
				Value: ".env",
			},
		},
		Commands: []*cli.Command{
			newServeCommand(),
			newMigrateCommand(),
			newTasksCommand(),
		},
		DefaultCommand: "serve",
	}
}

func newServeCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Start the HTTP server",
		Action: runServe,
	}
}

func newMigrateCommand() *cli.Command {
	migrate := func(command string) cli.ActionFunc {
		return func(ctx context.Context, cmd *cli.Command) error {
			return runMigrate(ctx, cmd, command)
		}
	}
	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage the database schema",
		Commands: []*cli.Command{
			{Name: postgres.MigrateUp, Usage: "Apply all pending migrations", Action: migrate(postgres.MigrateUp)},
			{Name: postgres.MigrateDown, Usage: "Roll back the last migration", Action: migrate(postgres.MigrateDown)},
			{Name: postgres.MigrateStatus, Usage: "Show migration status", Action: migrate(postgres.MigrateStatus)},
			{Name: postgres.MigrateVersion, Usage: "Print the current schema version", Action: migrate(postgres.MigrateVersion)},
		},
	}
}

func newTasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Maintain stored tasks",
		Commands: []*cli.Command{
			{
				Name:   "recover",
				Usage:  "Mark tasks left running by a previous process as failed",
				Action: runTasksRecover,
			},
		},
	}
}

// loadConfig reads configuration using the global flags.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	opts := []config.Option{config.WithDotenv(cmd.String("env-file"))}
	if path := cmd.String("config"); path != "" {
		opts = append(opts, config.WithConfigFile(path))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	app, err := newApplication(ctx, cfg)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}

func runMigrate(ctx context.Context, cmd *cli.Command, command string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := setupLogger(cfg, nil)
	if err != nil {
		return err
	}

	db, err := setupAppDatabase(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	return postgres.Migrate(ctx, db, command, log)
}

func runTasksRecover(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := setupLogger(cfg, nil)
	if err != nil {
		return err
	}

	db, err := setupAppDatabase(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	manager, cleanup, err := newTaskManager(ctx, cfg, db, nil, log)
	if err != nil {
		return err
	}
	defer cleanup()

	recovered, err := manager.Recover(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Root().Writer, "Recovered %d interrupted task(s).\n", recovered)
	return nil
}
