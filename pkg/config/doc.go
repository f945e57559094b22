// Package config loads and validates keel's configuration.
//
// Configuration comes from an optional YAML file layered over built-in
// defaults, followed by KEEL_* environment variable overrides:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("keel.yaml")
//
// Environment variables follow the naming convention KEEL_SECTION_FIELD:
//
//   - KEEL_AGENT_MODE overrides agent.mode
//   - KEEL_MEMORY_SQLITE_PATH overrides memory.sqlite.path
//   - KEEL_LEDGER_MAX_HISTORY overrides ledger.max_history
//   - KEEL_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// Values are applied in this order, later overriding earlier:
//
//  1. Default values (defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// Validation collects every problem into a single ValidationError:
//
//	configuration validation failed with 2 errors:
//	  - agent.mode: invalid mode "fast": must be 'plan' or 'build'
//	  - ledger.max_history: max history must be at least 1
//
// # Example Configuration
//
//	agent:
//	  mode: "build"
//	  require_approval: true
//	  stream: true
//	  first_token_timeout: 30s
//
//	memory:
//	  backend: "sqlite"
//	  sqlite:
//	    path: "data/pm.db"
//	  retention:
//	    enabled: true
//	    schedule: "0 3 * * *"
//
//	ledger:
//	  max_history: 50
//
//	policy:
//	  file: ".keel/policy.yaml"
//	  watch: true
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
//
// The process-wide singleton (Initialize, GetConfig) is used by the CLI.
// Library packages take explicit values instead.
package config
