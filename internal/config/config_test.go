package config

import (
	"testing"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.Store.Backend != "sqlite" {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, "sqlite")
	}
	if cfg.Store.Path == "" {
		t.Error("Store.Path should have a default")
	}

	if cfg.Workers.Initial != 2 {
		t.Errorf("Workers.Initial = %d, want 2", cfg.Workers.Initial)
	}
	if cfg.Workers.HeartbeatTimeoutSeconds != 30 {
		t.Errorf("Workers.HeartbeatTimeoutSeconds = %d, want 30", cfg.Workers.HeartbeatTimeoutSeconds)
	}
	if cfg.Workers.HealthCheckIntervalSeconds != 10 {
		t.Errorf("Workers.HealthCheckIntervalSeconds = %d, want 10", cfg.Workers.HealthCheckIntervalSeconds)
	}
	if cfg.Workers.RequeueAtBack {
		t.Error("Workers.RequeueAtBack should be false by default")
	}

	if !cfg.Scaling.Enabled {
		t.Error("Scaling.Enabled should be true by default")
	}
	if cfg.Scaling.MinWorkers != 1 {
		t.Errorf("Scaling.MinWorkers = %d, want 1", cfg.Scaling.MinWorkers)
	}
	if cfg.Scaling.MaxWorkers != 8 {
		t.Errorf("Scaling.MaxWorkers = %d, want 8", cfg.Scaling.MaxWorkers)
	}

	if cfg.Session.CleanupMaxAgeHours != 72 {
		t.Errorf("Session.CleanupMaxAgeHours = %d, want 72", cfg.Session.CleanupMaxAgeHours)
	}

	if !cfg.Watch.Enabled {
		t.Error("Watch.Enabled should be true by default")
	}
	if len(cfg.Watch.Ignore) == 0 {
		t.Error("Watch.Ignore should have defaults")
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("Default() config does not validate: %v", ValidationErrors(errs))
	}
}

func TestLoadFromViper(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	SetDefaults()

	viper.Set("workers.initial", 5)
	viper.Set("scaling.max_workers", 12)
	viper.Set("logging.level", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Workers.Initial != 5 {
		t.Errorf("Workers.Initial = %d, want 5", cfg.Workers.Initial)
	}
	if cfg.Scaling.MaxWorkers != 12 {
		t.Errorf("Scaling.MaxWorkers = %d, want 12", cfg.Scaling.MaxWorkers)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	// Unset keys keep defaults.
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("Store.Backend = %q, want sqlite default", cfg.Store.Backend)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	SetDefaults()

	viper.Set("logging.level", "loud")

	if _, err := Load(); err == nil {
		t.Fatal("Load() with invalid level succeeded, want error")
	}
}
