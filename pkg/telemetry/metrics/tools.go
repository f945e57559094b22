package metrics

import (
	"time"

	"mercator-hq/keel/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// ToolMetrics tracks tool executions.
//
// Metrics:
//   - keel_agent_tool_executions_total: Executions by tool and status
//   - keel_agent_tool_duration_seconds: Execution latency by tool
type ToolMetrics struct {
	executionsTotal *prometheus.CounterVec
	duration        *prometheus.HistogramVec
}

// NewToolMetrics creates and registers tool metrics with the provided registry.
func NewToolMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ToolMetrics {
	tm := &ToolMetrics{
		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "tool_executions_total",
				Help:      "Total number of tool executions by tool and status",
			},
			[]string{"tool", "status"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "tool_duration_seconds",
				Help:      "Duration of tool executions in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
			},
			[]string{"tool"},
		),
	}

	registry.MustRegister(tm.executionsTotal, tm.duration)

	return tm
}

// RecordExecution records one tool execution. Status is "ok", "error"
// or "rejected".
func (tm *ToolMetrics) RecordExecution(tool, status string, duration time.Duration) {
	tm.executionsTotal.WithLabelValues(tool, status).Inc()
	if status != "rejected" {
		tm.duration.WithLabelValues(tool).Observe(duration.Seconds())
	}
}
