package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. PACKER_SERVER_PORT.
const EnvPrefix = "PACKER"

type loadOptions struct {
	configFile string
	dotenvFile string
}

// Option customizes Load.
type Option func(*loadOptions)

// WithConfigFile reads settings from an explicit file instead of searching
// for config.yaml in the working directory and /etc/packer-server.
func WithConfigFile(path string) Option {
	return func(o *loadOptions) { o.configFile = path }
}

// WithDotenv changes the .env file loaded before reading the environment.
func WithDotenv(path string) Option {
	return func(o *loadOptions) { o.dotenvFile = path }
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load(opts ...Option) (*Config, error) {
	o := loadOptions{dotenvFile: ".env"}
	for _, opt := range opts {
		opt(&o)
	}

	// A missing .env is normal; existing variables are never overwritten.
	if err := godotenv.Load(o.dotenvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", o.dotenvFile, err)
	}

	v := viper.New()
	setDefaults(v)

	if o.configFile != "" {
		v.SetConfigFile(o.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/packer-server")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if o.configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can bind it during
// Unmarshal, including required keys that have no sensible default.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout_seconds", 10)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime_minutes", 60)
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("docker.host", "")
	v.SetDefault("docker.output_path", "/output")
	v.SetDefault("docker.memory_limit_mb", 512)
	v.SetDefault("docker.cpu_limit", 1.0)
	v.SetDefault("docker.pull_images", true)
	v.SetDefault("docker.stop_grace_seconds", 10)

	v.SetDefault("task.launch_timeout_seconds", 120)
	v.SetDefault("task.stop_timeout_seconds", 30)
	v.SetDefault("task.max_run_minutes", 60)
	v.SetDefault("task.monitor_interval_seconds", 30)
	v.SetDefault("task.search_limit", 25)
	v.SetDefault("task.artifact_dir", "data/artifacts")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "packer-server")
}
