package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string // The config field path (e.g., "workers.initial")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidStoreBackends returns the list of valid store backends.
func ValidStoreBackends() []string {
	return []string{"sqlite", "memory"}
}

// Validate checks the Config for invalid values and returns all validation
// errors found.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateWorkers()...)
	errors = append(errors, c.validateScaling()...)
	errors = append(errors, c.validateSession()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateStore() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidStoreBackends(), c.Store.Backend) {
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Value:   c.Store.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidStoreBackends(), ", ")),
		})
	}
	if c.Store.Backend == "sqlite" && c.Store.Path == "" {
		errors = append(errors, ValidationError{
			Field:   "store.path",
			Value:   c.Store.Path,
			Message: "required when store.backend is sqlite",
		})
	}

	return errors
}

func (c *Config) validateWorkers() []ValidationError {
	var errors []ValidationError

	if c.Workers.Initial < 0 {
		errors = append(errors, ValidationError{
			Field:   "workers.initial",
			Value:   c.Workers.Initial,
			Message: "must be zero or positive",
		})
	}
	if c.Workers.HeartbeatTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "workers.heartbeat_timeout_seconds",
			Value:   c.Workers.HeartbeatTimeoutSeconds,
			Message: "must be positive",
		})
	}
	if c.Workers.HealthCheckIntervalSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "workers.health_check_interval_seconds",
			Value:   c.Workers.HealthCheckIntervalSeconds,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateScaling() []ValidationError {
	var errors []ValidationError

	if !c.Scaling.Enabled {
		return nil
	}
	if c.Scaling.MinWorkers < 0 {
		errors = append(errors, ValidationError{
			Field:   "scaling.min_workers",
			Value:   c.Scaling.MinWorkers,
			Message: "must be zero or positive",
		})
	}
	if c.Scaling.MaxWorkers < 1 {
		errors = append(errors, ValidationError{
			Field:   "scaling.max_workers",
			Value:   c.Scaling.MaxWorkers,
			Message: "must be at least 1",
		})
	}
	if c.Scaling.MaxWorkers < c.Scaling.MinWorkers {
		errors = append(errors, ValidationError{
			Field:   "scaling.max_workers",
			Value:   c.Scaling.MaxWorkers,
			Message: fmt.Sprintf("must be >= scaling.min_workers (%d)", c.Scaling.MinWorkers),
		})
	}
	if c.Scaling.CooldownSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "scaling.cooldown_seconds",
			Value:   c.Scaling.CooldownSeconds,
			Message: "must be zero or positive",
		})
	}

	return errors
}

func (c *Config) validateSession() []ValidationError {
	var errors []ValidationError

	if c.Session.CleanupMaxAgeHours < 0 {
		errors = append(errors, ValidationError{
			Field:   "session.cleanup_max_age_hours",
			Value:   c.Session.CleanupMaxAgeHours,
			Message: "must be zero or positive",
		})
	}
	if c.Session.CleanupIntervalMinutes < 0 {
		errors = append(errors, ValidationError{
			Field:   "session.cleanup_interval_minutes",
			Value:   c.Session.CleanupIntervalMinutes,
			Message: "must be zero or positive",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
