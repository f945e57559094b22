package metrics

import (
	"mercator-hq/keel/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks RAO ledger and project-memory writes.
//
// Metrics:
//   - keel_agent_rao_appends_total: Appended snapshots by kind
//   - keel_agent_rao_dedup_total: Appends skipped as duplicates by kind
//   - keel_agent_rao_purges_total: History purges
//   - keel_agent_pm_saves_total: PM saves by event type
//   - keel_agent_pm_undo_total: Undo attempts by result
//   - keel_agent_pm_version_conflicts_total: Optimistic write conflicts
//   - keel_agent_pm_cache_requests_total: State cache lookups by result
type LedgerMetrics struct {
	appendsTotal   *prometheus.CounterVec
	dedupTotal     *prometheus.CounterVec
	purgesTotal    prometheus.Counter
	savesTotal     *prometheus.CounterVec
	undoTotal      *prometheus.CounterVec
	conflictsTotal prometheus.Counter
	cacheTotal     *prometheus.CounterVec
}

// NewLedgerMetrics creates and registers ledger metrics with the provided registry.
func NewLedgerMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *LedgerMetrics {
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}

	lm := &LedgerMetrics{
		appendsTotal: counterVec("rao_appends_total", "Total number of RAO snapshots appended", "kind"),
		dedupTotal:   counterVec("rao_dedup_total", "Total number of RAO appends skipped as duplicates", "kind"),
		purgesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rao_purges_total",
			Help:      "Total number of RAO history purges",
		}),
		savesTotal: counterVec("pm_saves_total", "Total number of project-memory saves", "event_type"),
		undoTotal:  counterVec("pm_undo_total", "Total number of project-memory undo attempts", "result"),
		conflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "pm_version_conflicts_total",
			Help:      "Total number of project-memory version conflicts",
		}),
		cacheTotal: counterVec("pm_cache_requests_total", "Total number of project-memory cache lookups", "result"),
	}

	registry.MustRegister(
		lm.appendsTotal,
		lm.dedupTotal,
		lm.purgesTotal,
		lm.savesTotal,
		lm.undoTotal,
		lm.conflictsTotal,
		lm.cacheTotal,
	)

	return lm
}

// RecordAppend records a ledger append; deduplicated appends wrote nothing.
func (lm *LedgerMetrics) RecordAppend(kind string, deduplicated bool) {
	if deduplicated {
		lm.dedupTotal.WithLabelValues(kind).Inc()
		return
	}
	lm.appendsTotal.WithLabelValues(kind).Inc()
}

// RecordPurge records a history purge.
func (lm *LedgerMetrics) RecordPurge() {
	lm.purgesTotal.Inc()
}

// RecordSave records a project-memory save.
func (lm *LedgerMetrics) RecordSave(eventType string) {
	lm.savesTotal.WithLabelValues(eventType).Inc()
}

// RecordUndo records an undo attempt ("ok", "nothing_to_undo", "error").
func (lm *LedgerMetrics) RecordUndo(result string) {
	lm.undoTotal.WithLabelValues(result).Inc()
}

// RecordConflict records an optimistic version conflict.
func (lm *LedgerMetrics) RecordConflict() {
	lm.conflictsTotal.Inc()
}

// RecordCache records a state cache lookup.
func (lm *LedgerMetrics) RecordCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	lm.cacheTotal.WithLabelValues(result).Inc()
}
