package metrics

import (
	"sync"
	"time"

	"mercator-hq/keel/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// maxToolLabels bounds the distinct tool names used as label values.
// Models can invent tool names, so unknown names beyond the limit are
// folded into "other".
const maxToolLabels = 256

// Collector owns the Prometheus registry and every keel metric group.
// All Record methods are no-ops on a nil Collector or when metrics are
// disabled.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	gateMetrics     *GateMetrics
	ledgerMetrics   *LedgerMetrics
	toolMetrics     *ToolMetrics
	providerMetrics *ProviderMetrics

	toolLimiter *CardinalityLimiter
}

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a fresh registry is used.
//
// Example:
//
//	cfg := &config.MetricsConfig{
//		Enabled:   true,
//		Namespace: "keel",
//		Subsystem: "agent",
//	}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}

	return &Collector{
		config:          cfg,
		registry:        registry,
		gateMetrics:     NewGateMetrics(cfg, registry),
		ledgerMetrics:   NewLedgerMetrics(cfg, registry),
		toolMetrics:     NewToolMetrics(cfg, registry),
		providerMetrics: NewProviderMetrics(cfg, registry),
		toolLimiter:     NewCardinalityLimiter(maxToolLabels),
	}
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordGateVerdict records a gate evaluation.
//
// Parameters:
//   - verdict: "allowed", "needs_approval" or "blocked"
//   - warningKinds: kind of each warning in the verdict
//   - duration: evaluation latency
func (c *Collector) RecordGateVerdict(verdict string, warningKinds []string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.gateMetrics.RecordVerdict(verdict, warningKinds, duration)
}

// RecordRaoAppend records a ledger append of the given snapshot kind.
func (c *Collector) RecordRaoAppend(kind string, deduplicated bool) {
	if !c.enabled() {
		return
	}
	c.ledgerMetrics.RecordAppend(kind, deduplicated)
}

// RecordRaoPurge records a ledger history purge.
func (c *Collector) RecordRaoPurge() {
	if !c.enabled() {
		return
	}
	c.ledgerMetrics.RecordPurge()
}

// RecordPMSave records a project-memory save of the given event type.
func (c *Collector) RecordPMSave(eventType string) {
	if !c.enabled() {
		return
	}
	c.ledgerMetrics.RecordSave(eventType)
}

// RecordPMUndo records an undo attempt.
func (c *Collector) RecordPMUndo(result string) {
	if !c.enabled() {
		return
	}
	c.ledgerMetrics.RecordUndo(result)
}

// RecordPMConflict records an optimistic version conflict.
func (c *Collector) RecordPMConflict() {
	if !c.enabled() {
		return
	}
	c.ledgerMetrics.RecordConflict()
}

// RecordPMCache records a state cache lookup.
func (c *Collector) RecordPMCache(hit bool) {
	if !c.enabled() {
		return
	}
	c.ledgerMetrics.RecordCache(hit)
}

// RecordToolExecution records a tool execution.
//
// Parameters:
//   - tool: tool name as requested by the model
//   - status: "ok", "error" or "rejected"
//   - duration: execution latency
func (c *Collector) RecordToolExecution(tool, status string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	if !c.toolLimiter.Allow(tool) {
		tool = "other"
	}
	c.toolMetrics.RecordExecution(tool, status, duration)
}

// RecordCompletion records a model completion.
func (c *Collector) RecordCompletion(provider, status string, duration time.Duration, promptTokens, completionTokens int) {
	if !c.enabled() {
		return
	}
	c.providerMetrics.RecordCompletion(provider, status, duration, promptTokens, completionTokens)
}

// RecordStreamTimeout records a streaming deadline by phase.
func (c *Collector) RecordStreamTimeout(phase string) {
	if !c.enabled() {
		return
	}
	c.providerMetrics.RecordStreamTimeout(phase)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations per metric.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label set is allowed. Returns true if the label set
// already exists or if we haven't reached the cardinality limit yet.
// Returns false if adding this label set would exceed the limit.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
