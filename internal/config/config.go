// Package config defines the parbuild configuration, its defaults, and
// validation. Values come from a config file, PARBUILD_* environment
// variables, and flags, resolved through viper.
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete parbuild configuration.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Workers WorkersConfig `mapstructure:"workers"`
	Scaling ScalingConfig `mapstructure:"scaling"`
	Session SessionConfig `mapstructure:"session"`
	Watch   WatchConfig   `mapstructure:"watch"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// StoreConfig controls durable state persistence.
type StoreConfig struct {
	// Backend selects the store implementation: "sqlite" or "memory".
	// The memory backend loses all state on restart.
	Backend string `mapstructure:"backend"`
	// Path is the SQLite database file. Ignored by the memory backend.
	Path string `mapstructure:"path"`
}

// WorkersConfig controls the worker pool.
type WorkersConfig struct {
	// Initial is the number of workers registered at startup.
	Initial int `mapstructure:"initial"`
	// HeartbeatTimeoutSeconds is how long a worker may go without a
	// heartbeat before it is marked offline.
	HeartbeatTimeoutSeconds int `mapstructure:"heartbeat_timeout_seconds"`
	// HealthCheckIntervalSeconds is how often the health check runs.
	HealthCheckIntervalSeconds int `mapstructure:"health_check_interval_seconds"`
	// RequeueAtBack appends interrupted tasks to the back of the queue
	// instead of the front.
	RequeueAtBack bool `mapstructure:"requeue_at_back"`
}

// ScalingConfig controls elastic pool sizing.
type ScalingConfig struct {
	// Enabled turns the scaling monitor on.
	Enabled bool `mapstructure:"enabled"`
	// MinWorkers is the smallest pool size the policy will recommend.
	MinWorkers int `mapstructure:"min_workers"`
	// MaxWorkers is the largest pool size the policy will recommend.
	MaxWorkers int `mapstructure:"max_workers"`
	// ScaleUpThreshold is the queue depth above which to scale up.
	ScaleUpThreshold int `mapstructure:"scale_up_threshold"`
	// ScaleDownThreshold is the busy worker count at or below which to
	// scale down when the queue is empty.
	ScaleDownThreshold int `mapstructure:"scale_down_threshold"`
	// CooldownSeconds is the minimum time between scaling decisions.
	CooldownSeconds int `mapstructure:"cooldown_seconds"`
}

// SessionConfig controls session housekeeping.
type SessionConfig struct {
	// CleanupMaxAgeHours is how old a finished session must be before
	// cleanup removes it. Zero disables cleanup.
	CleanupMaxAgeHours int `mapstructure:"cleanup_max_age_hours"`
	// CleanupIntervalMinutes is how often cleanup runs.
	CleanupIntervalMinutes int `mapstructure:"cleanup_interval_minutes"`
}

// WatchConfig controls the modified-file tracker.
type WatchConfig struct {
	// Enabled turns the workspace watcher on.
	Enabled bool `mapstructure:"enabled"`
	// Ignore lists directory names excluded from watching.
	Ignore []string `mapstructure:"ignore"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn, error.
	Level string `mapstructure:"level"`
	// File is the log destination. Empty logs to stderr.
	File string `mapstructure:"file"`
}

// ConfigDir returns the parbuild configuration directory.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".parbuild"
	}
	return filepath.Join(home, ".config", "parbuild")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: "sqlite",
			Path:    filepath.Join(ConfigDir(), "parbuild.db"),
		},
		Workers: WorkersConfig{
			Initial:                    2,
			HeartbeatTimeoutSeconds:    30,
			HealthCheckIntervalSeconds: 10,
		},
		Scaling: ScalingConfig{
			Enabled:            true,
			MinWorkers:         1,
			MaxWorkers:         8,
			ScaleUpThreshold:   2,
			ScaleDownThreshold: 1,
			CooldownSeconds:    30,
		},
		Session: SessionConfig{
			CleanupMaxAgeHours:     72,
			CleanupIntervalMinutes: 30,
		},
		Watch: WatchConfig{
			Enabled: true,
			Ignore:  []string{".git", ".parbuild", "node_modules", ".DS_Store"},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers default values with viper.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("store.backend", defaults.Store.Backend)
	viper.SetDefault("store.path", defaults.Store.Path)

	viper.SetDefault("workers.initial", defaults.Workers.Initial)
	viper.SetDefault("workers.heartbeat_timeout_seconds", defaults.Workers.HeartbeatTimeoutSeconds)
	viper.SetDefault("workers.health_check_interval_seconds", defaults.Workers.HealthCheckIntervalSeconds)
	viper.SetDefault("workers.requeue_at_back", defaults.Workers.RequeueAtBack)

	viper.SetDefault("scaling.enabled", defaults.Scaling.Enabled)
	viper.SetDefault("scaling.min_workers", defaults.Scaling.MinWorkers)
	viper.SetDefault("scaling.max_workers", defaults.Scaling.MaxWorkers)
	viper.SetDefault("scaling.scale_up_threshold", defaults.Scaling.ScaleUpThreshold)
	viper.SetDefault("scaling.scale_down_threshold", defaults.Scaling.ScaleDownThreshold)
	viper.SetDefault("scaling.cooldown_seconds", defaults.Scaling.CooldownSeconds)

	viper.SetDefault("session.cleanup_max_age_hours", defaults.Session.CleanupMaxAgeHours)
	viper.SetDefault("session.cleanup_interval_minutes", defaults.Session.CleanupIntervalMinutes)

	viper.SetDefault("watch.enabled", defaults.Watch.Enabled)
	viper.SetDefault("watch.ignore", defaults.Watch.Ignore)

	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.file", defaults.Logging.File)
}

// Load unmarshals and validates the current viper state.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}
