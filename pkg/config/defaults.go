package config

import "time"

// Default values for configuration fields.
const (
	// Agent defaults
	DefaultAgentMode              = "build"
	DefaultAgentRequireApproval   = true
	DefaultAgentFirstTokenTimeout = 30 * time.Second
	DefaultAgentOverallTimeout    = 5 * time.Minute
	DefaultAgentMaxToolOutput     = 16384
	DefaultAgentTemperature       = 0.2

	// Memory defaults
	DefaultMemoryBackend         = "sqlite"
	DefaultMemorySQLitePath      = "data/pm.db"
	DefaultSQLiteWALMode         = true
	DefaultSQLiteBusyTimeout     = 5 * time.Second
	DefaultMemoryCacheSize       = 128
	DefaultRetentionSchedule     = "0 3 * * *"
	DefaultRetentionMaxAgeDays   = 90
	DefaultRetentionKeepEvents   = 200
	DefaultLedgerMaxHistory      = 50
	DefaultContextPackBudget     = 4000
	DefaultDecisionsEnabled      = true
	DefaultDecisionsBackend      = "sqlite"
	DefaultDecisionsSQLitePath   = "data/decisions.db"
	DefaultDecisionsBufferSize   = 256
	DefaultDecisionsWriteTimeout = 5 * time.Second
	DefaultPolicyDebounce        = 200 * time.Millisecond

	// Telemetry defaults
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultMetricsEnabled     = true
	DefaultMetricsNamespace   = "keel"
	DefaultMetricsSubsystem   = "agent"
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 0.1
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingServiceName = "keel"
	DefaultTracingInsecure    = true
	DefaultTracingOTLPTimeout = 10 * time.Second
)

// Default returns a configuration with every default applied. Boolean
// defaults that are true can only be expressed here, so file loading
// decodes on top of this value.
func Default() *Config {
	cfg := &Config{
		Agent: AgentConfig{
			RequireApproval: DefaultAgentRequireApproval,
		},
		Memory: MemoryConfig{
			SQLite: SQLiteConfig{WALMode: DefaultSQLiteWALMode},
		},
		Decisions: DecisionsConfig{
			Enabled: DefaultDecisionsEnabled,
			SQLite:  SQLiteConfig{WALMode: DefaultSQLiteWALMode},
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
			Tracing: TracingConfig{Insecure: DefaultTracingInsecure},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	// Agent defaults
	if cfg.Agent.Mode == "" {
		cfg.Agent.Mode = DefaultAgentMode
	}
	if cfg.Agent.FirstTokenTimeout == 0 {
		cfg.Agent.FirstTokenTimeout = DefaultAgentFirstTokenTimeout
	}
	if cfg.Agent.OverallTimeout == 0 {
		cfg.Agent.OverallTimeout = DefaultAgentOverallTimeout
	}
	if cfg.Agent.MaxToolOutput == 0 {
		cfg.Agent.MaxToolOutput = DefaultAgentMaxToolOutput
	}
	if cfg.Agent.Temperature == 0 {
		cfg.Agent.Temperature = DefaultAgentTemperature
	}

	// Memory defaults
	if cfg.Memory.Backend == "" {
		cfg.Memory.Backend = DefaultMemoryBackend
	}
	if cfg.Memory.SQLite.Path == "" {
		cfg.Memory.SQLite.Path = DefaultMemorySQLitePath
	}
	if cfg.Memory.SQLite.BusyTimeout == 0 {
		cfg.Memory.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Memory.CacheSize == 0 {
		cfg.Memory.CacheSize = DefaultMemoryCacheSize
	}
	if cfg.Memory.Retention.Schedule == "" {
		cfg.Memory.Retention.Schedule = DefaultRetentionSchedule
	}
	if cfg.Memory.Retention.MaxAgeDays == 0 {
		cfg.Memory.Retention.MaxAgeDays = DefaultRetentionMaxAgeDays
	}
	if cfg.Memory.Retention.KeepEvents == 0 {
		cfg.Memory.Retention.KeepEvents = DefaultRetentionKeepEvents
	}

	if cfg.Ledger.MaxHistory == 0 {
		cfg.Ledger.MaxHistory = DefaultLedgerMaxHistory
	}
	if cfg.ContextPack.Budget == 0 {
		cfg.ContextPack.Budget = DefaultContextPackBudget
	}

	// Decisions defaults
	if cfg.Decisions.Backend == "" {
		cfg.Decisions.Backend = DefaultDecisionsBackend
	}
	if cfg.Decisions.SQLite.Path == "" {
		cfg.Decisions.SQLite.Path = DefaultDecisionsSQLitePath
	}
	if cfg.Decisions.SQLite.BusyTimeout == 0 {
		cfg.Decisions.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Decisions.BufferSize == 0 {
		cfg.Decisions.BufferSize = DefaultDecisionsBufferSize
	}
	if cfg.Decisions.WriteTimeout == 0 {
		cfg.Decisions.WriteTimeout = DefaultDecisionsWriteTimeout
	}

	if cfg.Policy.Debounce == 0 {
		cfg.Policy.Debounce = DefaultPolicyDebounce
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingOTLPTimeout
	}
}
