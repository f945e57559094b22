package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "memory.sqlite.path").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateAgent(&cfg.Agent)...)
	errs = append(errs, validateMemory(&cfg.Memory)...)

	if cfg.Ledger.MaxHistory < 1 {
		errs = append(errs, FieldError{
			Field:   "ledger.max_history",
			Message: "max history must be at least 1",
		})
	}
	if cfg.ContextPack.Budget < 200 {
		errs = append(errs, FieldError{
			Field:   "context_pack.budget",
			Message: "budget must be at least 200 characters",
		})
	}

	errs = append(errs, validateDecisions(&cfg.Decisions)...)
	errs = append(errs, validatePolicy(&cfg.Policy)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateAgent validates agent configuration.
func validateAgent(cfg *AgentConfig) []FieldError {
	var errs []FieldError

	validModes := map[string]bool{"plan": true, "build": true}
	if !validModes[cfg.Mode] {
		errs = append(errs, FieldError{
			Field:   "agent.mode",
			Message: fmt.Sprintf("invalid mode %q: must be 'plan' or 'build'", cfg.Mode),
		})
	}

	if cfg.FirstTokenTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "agent.first_token_timeout",
			Message: "first token timeout must be positive",
		})
	}
	if cfg.OverallTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "agent.overall_timeout",
			Message: "overall timeout must be positive",
		})
	}
	if cfg.OverallTimeout > 0 && cfg.FirstTokenTimeout > cfg.OverallTimeout {
		errs = append(errs, FieldError{
			Field:   "agent.first_token_timeout",
			Message: "first token timeout must not exceed overall timeout",
		})
	}

	if cfg.MaxToolOutput < 0 {
		errs = append(errs, FieldError{
			Field:   "agent.max_tool_output",
			Message: "max tool output must be non-negative",
		})
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2.0 {
		errs = append(errs, FieldError{
			Field:   "agent.temperature",
			Message: "temperature must be between 0.0 and 2.0",
		})
	}
	if cfg.MaxTokens < 0 {
		errs = append(errs, FieldError{
			Field:   "agent.max_tokens",
			Message: "max tokens must be non-negative",
		})
	}

	return errs
}

// validateMemory validates project-memory configuration.
func validateMemory(cfg *MemoryConfig) []FieldError {
	var errs []FieldError

	errs = append(errs, validateBackend("memory", cfg.Backend, &cfg.SQLite)...)

	if cfg.CacheSize < 0 {
		errs = append(errs, FieldError{
			Field:   "memory.cache_size",
			Message: "cache size must be non-negative",
		})
	}

	if cfg.Retention.Enabled {
		if _, err := cron.ParseStandard(cfg.Retention.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "memory.retention.schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}
	if cfg.Retention.MaxAgeDays < 1 {
		errs = append(errs, FieldError{
			Field:   "memory.retention.max_age_days",
			Message: "max age must be at least 1 day",
		})
	}
	if cfg.Retention.KeepEvents < 0 {
		errs = append(errs, FieldError{
			Field:   "memory.retention.keep_events",
			Message: "keep events must be non-negative",
		})
	}

	return errs
}

// validateBackend validates a storage backend selection shared by the
// memory and decisions sections.
func validateBackend(section, backend string, sqlite *SQLiteConfig) []FieldError {
	var errs []FieldError

	switch backend {
	case "memory":
	case "sqlite":
		if sqlite.Path == "" {
			errs = append(errs, FieldError{
				Field:   section + ".sqlite.path",
				Message: "sqlite path is required when backend is 'sqlite'",
			})
		}
		if sqlite.BusyTimeout < 0 {
			errs = append(errs, FieldError{
				Field:   section + ".sqlite.busy_timeout",
				Message: "busy timeout must be positive",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   section + ".backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'memory' or 'sqlite'", backend),
		})
	}

	return errs
}

// validateDecisions validates decision log configuration.
func validateDecisions(cfg *DecisionsConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}

	errs := validateBackend("decisions", cfg.Backend, &cfg.SQLite)

	if cfg.BufferSize < 1 {
		errs = append(errs, FieldError{
			Field:   "decisions.buffer_size",
			Message: "buffer size must be at least 1",
		})
	}
	if cfg.WriteTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "decisions.write_timeout",
			Message: "write timeout must be positive",
		})
	}

	return errs
}

// validatePolicy validates policy file configuration.
func validatePolicy(cfg *PolicyConfig) []FieldError {
	var errs []FieldError

	if cfg.Watch && cfg.File == "" {
		errs = append(errs, FieldError{
			Field:   "policy.file",
			Message: "policy file is required when watch is enabled",
		})
	}
	if cfg.Debounce < 0 {
		errs = append(errs, FieldError{
			Field:   "policy.debounce",
			Message: "debounce must be non-negative",
		})
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if cfg.Logging.Level == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: "logging level is required",
		})
	} else if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	// Validate logging format
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if cfg.Logging.Format == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: "logging format is required",
		})
	} else if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json', 'text', or 'console'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Namespace == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.namespace",
			Message: "metrics namespace is required when metrics are enabled",
		})
	}

	// Validate tracing configuration
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	validSamplers := map[string]bool{"always": true, "never": true, "ratio": true}
	if !validSamplers[cfg.Tracing.Sampler] {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', or 'ratio'", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	return errs
}
