package metrics

import (
	"time"

	"mercator-hq/keel/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// GateMetrics tracks tool-gate evaluations.
//
// Metrics:
//   - keel_agent_gate_verdicts_total: Verdicts by outcome
//   - keel_agent_gate_warnings_total: Warnings by kind
//   - keel_agent_gate_evaluation_duration_seconds: Evaluation latency
type GateMetrics struct {
	verdictsTotal      *prometheus.CounterVec
	warningsTotal      *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
}

// NewGateMetrics creates and registers gate metrics with the provided registry.
func NewGateMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *GateMetrics {
	gm := &GateMetrics{
		verdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "gate_verdicts_total",
				Help:      "Total number of gate verdicts by outcome",
			},
			[]string{"verdict"},
		),

		warningsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "gate_warnings_total",
				Help:      "Total number of gate warnings by kind",
			},
			[]string{"kind"},
		),

		evaluationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "gate_evaluation_duration_seconds",
				Help:      "Duration of gate evaluation in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 10), // 1µs to ~260ms
			},
		),
	}

	registry.MustRegister(
		gm.verdictsTotal,
		gm.warningsTotal,
		gm.evaluationDuration,
	)

	return gm
}

// RecordVerdict records one evaluation with its outcome and warning kinds.
func (gm *GateMetrics) RecordVerdict(verdict string, warningKinds []string, duration time.Duration) {
	gm.verdictsTotal.WithLabelValues(verdict).Inc()
	for _, kind := range warningKinds {
		gm.warningsTotal.WithLabelValues(kind).Inc()
	}
	gm.evaluationDuration.Observe(duration.Seconds())
}
