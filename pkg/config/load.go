package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "KEEL_"

// LoadConfig loads configuration from a YAML file at the specified path.
// The file is decoded on top of Default(), so absent keys keep their
// defaults. An empty path returns the validated defaults.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	// Read the file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	// Apply defaults to anything the file zeroed out
	ApplyDefaults(cfg)

	// Validate
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention KEEL_SECTION_FIELD (e.g., KEEL_MEMORY_SQLITE_PATH).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Start from defaults
// 2. Decode YAML from file
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	// Re-validate after overrides
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Malformed numeric, boolean and duration values are ignored.
func applyEnvOverrides(cfg *Config) {
	// Agent overrides
	envString("AGENT_MODE", &cfg.Agent.Mode)
	envString("AGENT_MODEL", &cfg.Agent.Model)
	envBool("AGENT_REQUIRE_APPROVAL", &cfg.Agent.RequireApproval)
	envBool("AGENT_STREAM", &cfg.Agent.Stream)
	envDuration("AGENT_FIRST_TOKEN_TIMEOUT", &cfg.Agent.FirstTokenTimeout)
	envDuration("AGENT_OVERALL_TIMEOUT", &cfg.Agent.OverallTimeout)
	envInt("AGENT_MAX_TOOL_OUTPUT", &cfg.Agent.MaxToolOutput)
	envFloat("AGENT_TEMPERATURE", &cfg.Agent.Temperature)
	envInt("AGENT_MAX_TOKENS", &cfg.Agent.MaxTokens)

	// Memory overrides
	envString("MEMORY_BACKEND", &cfg.Memory.Backend)
	envString("MEMORY_SQLITE_PATH", &cfg.Memory.SQLite.Path)
	envBool("MEMORY_SQLITE_WAL_MODE", &cfg.Memory.SQLite.WALMode)
	envDuration("MEMORY_SQLITE_BUSY_TIMEOUT", &cfg.Memory.SQLite.BusyTimeout)
	envInt("MEMORY_CACHE_SIZE", &cfg.Memory.CacheSize)
	envBool("MEMORY_RETENTION_ENABLED", &cfg.Memory.Retention.Enabled)
	envString("MEMORY_RETENTION_SCHEDULE", &cfg.Memory.Retention.Schedule)
	envInt("MEMORY_RETENTION_MAX_AGE_DAYS", &cfg.Memory.Retention.MaxAgeDays)
	envInt("MEMORY_RETENTION_KEEP_EVENTS", &cfg.Memory.Retention.KeepEvents)

	envInt("LEDGER_MAX_HISTORY", &cfg.Ledger.MaxHistory)
	envInt("CONTEXT_PACK_BUDGET", &cfg.ContextPack.Budget)

	// Decisions overrides
	envBool("DECISIONS_ENABLED", &cfg.Decisions.Enabled)
	envString("DECISIONS_BACKEND", &cfg.Decisions.Backend)
	envString("DECISIONS_SQLITE_PATH", &cfg.Decisions.SQLite.Path)
	envInt("DECISIONS_BUFFER_SIZE", &cfg.Decisions.BufferSize)
	envDuration("DECISIONS_WRITE_TIMEOUT", &cfg.Decisions.WriteTimeout)

	// Policy overrides
	envString("POLICY_FILE", &cfg.Policy.File)
	envBool("POLICY_WATCH", &cfg.Policy.Watch)
	envDuration("POLICY_DEBOUNCE", &cfg.Policy.Debounce)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_LOGGING_ADD_SOURCE", &cfg.Telemetry.Logging.AddSource)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_LISTEN_ADDRESS", &cfg.Telemetry.Metrics.ListenAddress)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_SAMPLER", &cfg.Telemetry.Tracing.Sampler)
	envFloat("TELEMETRY_TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	envBool("TELEMETRY_TRACING_INSECURE", &cfg.Telemetry.Tracing.Insecure)
}

func envString(name string, dst *string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envFloat(name string, dst *float64) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
