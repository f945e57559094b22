// Package metrics provides Prometheus metrics for the keel agent.
//
// # Metrics Categories
//
//   - Gate: verdicts and warnings by kind, evaluation latency
//   - Ledger: RAO appends, deduplicated appends and purges
//   - Memory: PM saves by event type, undos, version conflicts, cache hits
//   - Tools: executions by tool and status, execution latency
//   - Provider: completions, latency, stream timeouts, token usage
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordGateVerdict("needs_approval", []string{"require_approval"}, time.Millisecond)
//	http.Handle("/metrics", collector.Handler())
//
// Every Record method is safe to call on a nil *Collector, so components
// take an optional collector without guarding each call site.
package metrics
