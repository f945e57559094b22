package rao

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"mercator-hq/keel/pkg/gate"
	"mercator-hq/keel/pkg/pm"
	"mercator-hq/keel/pkg/telemetry/metrics"
	"mercator-hq/keel/pkg/telemetry/tracing"
)

// DefaultMaxHistory bounds rao.history when no limit is configured.
const DefaultMaxHistory = 50

// maxConflictRetries bounds the optimistic write loop of one append.
const maxConflictRetries = 3

// Event commands written by the ledger.
const (
	CommandAppend = "rao.append"
	CommandPurge  = "rao.purge"
)

// Ledger appends to and reads the RAO history of one project.
// Ledger is safe for concurrent use.
type Ledger struct {
	store      pm.Store
	projectID  string
	maxHistory int
	now        func() time.Time
	newID      func() string
	evaluator  *gate.Evaluator
	metrics    *metrics.Collector
	tracer     *tracing.Tracer
	logger     *slog.Logger

	mu     sync.Mutex
	status Status
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithMaxHistory sets the history bound. Values below 1 are ignored.
func WithMaxHistory(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxHistory = n
		}
	}
}

// WithClock sets the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithIDGenerator sets the snapshot id source.
func WithIDGenerator(newID func() string) Option {
	return func(l *Ledger) {
		l.newID = newID
	}
}

// WithEvaluator sets the gate evaluator used by SimulateReplay.
func WithEvaluator(e *gate.Evaluator) Option {
	return func(l *Ledger) {
		l.evaluator = e
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(l *Ledger) {
		l.metrics = c
	}
}

// WithTracer sets the tracer.
func WithTracer(t *tracing.Tracer) Option {
	return func(l *Ledger) {
		l.tracer = t
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// New creates a ledger for projectID backed by store.
func New(store pm.Store, projectID string, opts ...Option) *Ledger {
	l := &Ledger{
		store:      store,
		projectID:  projectID,
		maxHistory: DefaultMaxHistory,
		now:        time.Now,
		newID:      uuid.NewString,
		evaluator:  gate.New(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	l.logger = l.logger.With("component", "rao", "project_id", projectID)
	return l
}

// MaxHistory returns the history bound.
func (l *Ledger) MaxHistory() int {
	return l.maxHistory
}

// AppendResult describes the outcome of Append.
type AppendResult struct {
	// Snapshot is the appended entry, or the existing last entry when
	// the append was deduplicated.
	Snapshot pm.Snapshot

	// Deduplicated is true when nothing was written.
	Deduplicated bool

	// State is the project state after the append.
	State *pm.State
}

// Append records entry. Consecutive equal audits are collapsed and the
// history is trimmed to MaxHistory. Each non-deduplicated append writes
// exactly one rao_append event.
func (l *Ledger) Append(ctx context.Context, entry pm.Entry) (result *AppendResult, err error) {
	if entry == nil {
		return nil, ErrNilEntry
	}

	ctx, span := l.tracer.Start(ctx, "rao.append",
		tracing.ProjectAttr(l.projectID),
		attribute.String(tracing.AttrSnapshotKind, string(entry.Kind())),
	)
	defer func() {
		if result != nil {
			span.SetAttributes(attribute.Bool(tracing.AttrDeduplicated, result.Deduplicated))
		}
		tracing.End(span, err)
	}()

	l.mu.Lock()
	defer l.mu.Unlock()

	snap := pm.Snapshot{ID: l.newID(), TS: l.now().UTC(), Entry: entry}

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		state, err := l.store.Load(ctx, l.projectID)
		if err != nil {
			return nil, err
		}

		if isDuplicate(state.Rao.History, entry) {
			l.status.record(snap)
			l.metrics.RecordRaoAppend(string(entry.Kind()), true)
			l.logger.DebugContext(ctx, "rao entry deduplicated", "kind", entry.Kind())
			return &AppendResult{
				Snapshot:     state.Rao.History[len(state.Rao.History)-1].Clone(),
				Deduplicated: true,
				State:        state,
			}, nil
		}

		history := make([]pm.Snapshot, 0, len(state.Rao.History)+1)
		history = append(history, state.Rao.History...)
		history = trim(append(history, snap), l.maxHistory)

		version := state.Version
		next, err := l.store.Save(ctx, l.projectID,
			&pm.Update{Rao: &pm.RaoState{History: history}, ExpectVersion: &version},
			&pm.EventMeta{Command: CommandAppend, Note: string(entry.Kind()), EventType: pm.EventRaoAppend},
		)
		if errors.Is(err, pm.ErrVersionConflict) {
			l.metrics.RecordPMConflict()
			l.logger.DebugContext(ctx, "rao append lost write race, retrying", "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}

		l.status.record(snap)
		l.metrics.RecordRaoAppend(string(entry.Kind()), false)
		l.metrics.RecordPMSave(string(pm.EventRaoAppend))
		l.logger.DebugContext(ctx, "rao entry appended",
			"kind", entry.Kind(),
			"id", snap.ID,
			"history_len", len(next.Rao.History),
		)
		return &AppendResult{Snapshot: snap.Clone(), State: next}, nil
	}

	return nil, fmt.Errorf("%w: project %s", ErrConflictRetries, l.projectID)
}

// AppendRun records an executed tool call.
func (l *Ledger) AppendRun(ctx context.Context, tool string, targets []string, ok bool) (*AppendResult, error) {
	return l.Append(ctx, &pm.RunEntry{
		Tool:    tool,
		Targets: append([]string{}, targets...),
		OK:      ok,
	})
}

// AppendAudit records a gate verdict. Callers append only verdicts that
// carry warnings.
func (l *Ledger) AppendAudit(ctx context.Context, v gate.Verdict) (*AppendResult, error) {
	return l.Append(ctx, &pm.AuditEntry{
		Blocked:  v.Blocked,
		Warnings: append([]gate.Warning{}, v.Warnings...),
	})
}

// AppendOverride records a policy change made by undo.
func (l *Ledger) AppendOverride(ctx context.Context, eventID string, changedKeys []string, command string) (*AppendResult, error) {
	return l.Append(ctx, &pm.OverrideEntry{
		EventID:     eventID,
		ChangedKeys: append([]string{}, changedKeys...),
		Command:     command,
	})
}

// History returns the newest limit entries, newest first. limit <= 0
// returns the whole history.
func (l *Ledger) History(ctx context.Context, limit int) ([]pm.Snapshot, error) {
	state, err := l.store.Load(ctx, l.projectID)
	if err != nil {
		return nil, err
	}
	return newestFirst(state.Rao.History, limit), nil
}

// Purge clears the history with a single rao_purge event and resets the
// transient status.
func (l *Ledger) Purge(ctx context.Context) (state *pm.State, err error) {
	ctx, span := l.tracer.Start(ctx, "rao.purge", tracing.ProjectAttr(l.projectID))
	defer func() { tracing.End(span, err) }()

	l.mu.Lock()
	defer l.mu.Unlock()

	state, err = l.store.Save(ctx, l.projectID,
		&pm.Update{Rao: &pm.RaoState{History: []pm.Snapshot{}}},
		&pm.EventMeta{Command: CommandPurge, EventType: pm.EventRaoPurge},
	)
	if err != nil {
		return nil, err
	}

	l.status = Status{}
	l.metrics.RecordRaoPurge()
	l.metrics.RecordPMSave(string(pm.EventRaoPurge))
	l.logger.InfoContext(ctx, "rao history purged")
	return state, nil
}

// Status returns the last run, audit and override entries seen by this
// ledger since construction or the last purge.
func (l *Ledger) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status.clone()
}

func newestFirst(history []pm.Snapshot, limit int) []pm.Snapshot {
	n := len(history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]pm.Snapshot, 0, n)
	for i := len(history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, history[i].Clone())
	}
	return out
}
