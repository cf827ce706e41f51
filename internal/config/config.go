package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth" validate:"required"`
	Docker    DockerConfig    `mapstructure:"docker" validate:"required"`
	Task      TaskConfig      `mapstructure:"task" validate:"required"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port                   int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel               string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds" validate:"gt=0"`
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL          string `mapstructure:"url" validate:"required,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gt=0"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
	BcryptCost           int    `mapstructure:"bcrypt_cost" validate:"gte=4,lte=31"`
}

// DockerConfig controls how task containers are created.
type DockerConfig struct {
	// Host overrides DOCKER_HOST when set.
	Host             string  `mapstructure:"host"`
	OutputPath       string  `mapstructure:"output_path" validate:"required,startswith=/"`
	MemoryLimitMB    int64   `mapstructure:"memory_limit_mb" validate:"gte=0"`
	CPULimit         float64 `mapstructure:"cpu_limit" validate:"gte=0"`
	PullImages       bool    `mapstructure:"pull_images"`
	StopGraceSeconds int     `mapstructure:"stop_grace_seconds" validate:"gte=0"`
}

// StopGrace is how long a container may take to exit after SIGTERM.
func (c DockerConfig) StopGrace() time.Duration {
	return time.Duration(c.StopGraceSeconds) * time.Second
}

// TaskConfig bounds the task lifecycle.
type TaskConfig struct {
	LaunchTimeoutSeconds   int    `mapstructure:"launch_timeout_seconds" validate:"gt=0"`
	StopTimeoutSeconds     int    `mapstructure:"stop_timeout_seconds" validate:"gt=0"`
	MaxRunMinutes          int    `mapstructure:"max_run_minutes" validate:"gte=0"`
	MonitorIntervalSeconds int    `mapstructure:"monitor_interval_seconds" validate:"gt=0"`
	SearchLimit            int    `mapstructure:"search_limit" validate:"gt=0,lte=100"`
	ArtifactDir            string `mapstructure:"artifact_dir" validate:"required"`
}

// LaunchTimeout bounds image pull, container create and start.
func (c TaskConfig) LaunchTimeout() time.Duration {
	return time.Duration(c.LaunchTimeoutSeconds) * time.Second
}

// StopTimeout bounds stopping a run and waiting for its terminal event.
func (c TaskConfig) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutSeconds) * time.Second
}

// MaxRunDuration is the watchdog limit; zero disables it.
func (c TaskConfig) MaxRunDuration() time.Duration {
	return time.Duration(c.MaxRunMinutes) * time.Minute
}

// MonitorInterval is how often the watchdog scans active runs.
func (c TaskConfig) MonitorInterval() time.Duration {
	return time.Duration(c.MonitorIntervalSeconds) * time.Second
}

// TelemetryConfig toggles the OpenTelemetry SDK.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}
