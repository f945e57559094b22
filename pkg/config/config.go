package config

import "time"

// Config is the root configuration structure for keel.
type Config struct {
	// Agent controls the orchestrator loop: mode, model parameters,
	// approval behaviour and streaming deadlines.
	Agent AgentConfig `yaml:"agent"`

	// Memory selects and configures the project-memory store.
	Memory MemoryConfig `yaml:"memory"`

	// Ledger configures the RAO ledger.
	Ledger LedgerConfig `yaml:"ledger"`

	// ContextPack configures the prompt context pack.
	ContextPack ContextPackConfig `yaml:"context_pack"`

	// Decisions configures the decision log of successful tool runs.
	Decisions DecisionsConfig `yaml:"decisions"`

	// Policy configures the optional YAML policy seed file.
	Policy PolicyConfig `yaml:"policy"`

	// Telemetry contains logging, metrics and tracing configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// AgentConfig configures the agent orchestrator.
type AgentConfig struct {
	// Mode is the default task mode.
	// Options: "plan", "build"
	// Default: "build"
	Mode string `yaml:"mode"`

	// Model is the model identifier passed to the provider.
	Model string `yaml:"model"`

	// RequireApproval pauses the loop on proposals with gate warnings.
	// Blocked proposals always pause regardless of this setting.
	// Default: true
	RequireApproval bool `yaml:"require_approval"`

	// Stream uses the provider's streaming interface when available.
	// Default: false
	Stream bool `yaml:"stream"`

	// FirstTokenTimeout bounds the wait for the first streamed chunk.
	// Default: 30s
	FirstTokenTimeout time.Duration `yaml:"first_token_timeout"`

	// OverallTimeout bounds a whole streamed completion.
	// Default: 5m
	OverallTimeout time.Duration `yaml:"overall_timeout"`

	// MaxToolOutput truncates tool output fed back to the model (bytes).
	// Default: 16384
	MaxToolOutput int `yaml:"max_tool_output"`

	// Temperature is passed to the provider.
	// Default: 0.2
	Temperature float64 `yaml:"temperature"`

	// MaxTokens is passed to the provider (0 = provider default).
	// Default: 0
	MaxTokens int `yaml:"max_tokens"`
}

// MemoryConfig configures the project-memory store.
type MemoryConfig struct {
	// Backend selects the store implementation.
	// Options: "memory", "sqlite"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite configures the SQLite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// CacheSize is the number of project states kept in the LRU cache.
	// Default: 128
	CacheSize int `yaml:"cache_size"`

	// Retention configures pruning of the PM event log.
	Retention RetentionConfig `yaml:"retention"`
}

// SQLiteConfig configures a SQLite database file.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/pm.db"
	Path string `yaml:"path"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RetentionConfig configures PM event-log retention.
type RetentionConfig struct {
	// Enabled turns on scheduled pruning.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression.
	// Default: "0 3 * * *"
	Schedule string `yaml:"schedule"`

	// MaxAgeDays is the age after which events become prunable.
	// Default: 90
	MaxAgeDays int `yaml:"max_age_days"`

	// KeepEvents is the number of newest events always kept per project.
	// Default: 200
	KeepEvents int `yaml:"keep_events"`
}

// LedgerConfig configures the RAO ledger.
type LedgerConfig struct {
	// MaxHistory bounds the RAO history ring.
	// Default: 50
	MaxHistory int `yaml:"max_history"`
}

// ContextPackConfig configures the context pack.
type ContextPackConfig struct {
	// Budget is the character budget of the rendered pack.
	// Default: 4000
	Budget int `yaml:"budget"`
}

// DecisionsConfig configures the decision log.
type DecisionsConfig struct {
	// Enabled turns decision recording on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend selects the storage backend.
	// Options: "memory", "sqlite"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite configures the SQLite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// BufferSize is the async recording queue length.
	// Default: 256
	BufferSize int `yaml:"buffer_size"`

	// WriteTimeout bounds a single storage write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PolicyConfig configures the YAML policy seed file.
type PolicyConfig struct {
	// File is the path of the policy file ("" disables it).
	File string `yaml:"file"`

	// Watch re-imports the file when it changes.
	// Default: false
	Watch bool `yaml:"watch"`

	// Debounce coalesces bursts of file events.
	// Default: 200ms
	Debounce time.Duration `yaml:"debounce"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the log output format.
	// Options: "json", "text", "console"
	// Default: "text"
	Format string `yaml:"format"`

	// AddSource includes source file and line in log records.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Namespace is the metric name prefix.
	// Default: "keel"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "agent"
	Subsystem string `yaml:"subsystem"`

	// ListenAddress serves /metrics when set (e.g., "127.0.0.1:9464").
	// Default: ""
	ListenAddress string `yaml:"listen_address"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "keel"
	ServiceName string `yaml:"service_name"`

	// Insecure disables TLS for the OTLP connection.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for OTLP exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}
