package metrics

import (
	"time"

	"mercator-hq/keel/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// ProviderMetrics tracks model completions.
//
// Metrics:
//   - keel_agent_provider_completions_total: Completions by provider and status
//   - keel_agent_provider_latency_seconds: Completion latency by provider
//   - keel_agent_provider_stream_timeouts_total: Stream deadlines hit by phase
//   - keel_agent_provider_tokens_total: Token usage by type
type ProviderMetrics struct {
	completions    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	streamTimeouts *prometheus.CounterVec
	tokens         *prometheus.CounterVec
}

// NewProviderMetrics creates and registers provider metrics with the provided registry.
func NewProviderMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ProviderMetrics {
	pm := &ProviderMetrics{
		completions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_completions_total",
				Help:      "Total number of model completions by provider and status",
			},
			[]string{"provider", "status"},
		),

		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_latency_seconds",
				Help:      "Model completion latency in seconds",
				// LLM latencies span 100ms to minutes
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 120.0},
			},
			[]string{"provider"},
		),

		streamTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_stream_timeouts_total",
				Help:      "Total number of streaming deadlines hit by phase",
			},
			[]string{"phase"},
		),

		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_tokens_total",
				Help:      "Total number of tokens by type",
			},
			[]string{"type"},
		),
	}

	registry.MustRegister(
		pm.completions,
		pm.latency,
		pm.streamTimeouts,
		pm.tokens,
	)

	return pm
}

// RecordCompletion records a completion and its token usage.
func (pm *ProviderMetrics) RecordCompletion(provider, status string, duration time.Duration, promptTokens, completionTokens int) {
	pm.completions.WithLabelValues(provider, status).Inc()
	pm.latency.WithLabelValues(provider).Observe(duration.Seconds())
	if promptTokens > 0 {
		pm.tokens.WithLabelValues("prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		pm.tokens.WithLabelValues("completion").Add(float64(completionTokens))
	}
}

// RecordStreamTimeout records a streaming deadline ("first_token" or "overall").
func (pm *ProviderMetrics) RecordStreamTimeout(phase string) {
	pm.streamTimeouts.WithLabelValues(phase).Inc()
}
