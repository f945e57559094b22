package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"mercator-hq/keel/pkg/contextpack"
	"mercator-hq/keel/pkg/decisionlog"
	"mercator-hq/keel/pkg/gate"
	"mercator-hq/keel/pkg/pm"
	"mercator-hq/keel/pkg/providers"
	"mercator-hq/keel/pkg/rao"
	"mercator-hq/keel/pkg/telemetry/logging"
	"mercator-hq/keel/pkg/telemetry/metrics"
	"mercator-hq/keel/pkg/telemetry/tracing"
	"mercator-hq/keel/pkg/tools"
	"mercator-hq/keel/pkg/worknotes"
)

// DecisionRecorder receives successful tool executions.
type DecisionRecorder interface {
	Record(ctx context.Context, e decisionlog.Entry) error
}

// Deps are the collaborators injected into an Agent. Store and Provider
// are required.
type Deps struct {
	Store    pm.Store
	Provider providers.Provider

	// Ledger defaults to a ledger over Store for the agent's project.
	Ledger *rao.Ledger

	// Tools defaults to an empty registry.
	Tools *tools.Registry

	Decisions DecisionRecorder
	Metrics   *metrics.Collector
	Tracer    *tracing.Tracer
	Logger    *slog.Logger
	Sink      EventSink
}

// Agent orchestrates one task at a time for one project.
type Agent struct {
	projectID string
	config    Config

	store     pm.Store
	ledger    *rao.Ledger
	provider  providers.Provider
	tools     *tools.Registry
	evaluator *gate.Evaluator
	packer    contextpack.Builder
	decisions DecisionRecorder
	metrics   *metrics.Collector
	tracer    *tracing.Tracer
	logger    *slog.Logger
	sink      EventSink
	now       func() time.Time

	mu        sync.Mutex
	state     State
	taskID    string
	task      string
	messages  []providers.Message
	notes     *worknotes.Notes
	notesErr  error
	pending   *PendingGate
	lastAudit *gate.Verdict
}

// New creates an Agent for projectID.
func New(projectID string, cfg Config, deps Deps) (*Agent, error) {
	if projectID == "" {
		return nil, &ConfigError{Field: "project_id", Message: "cannot be empty"}
	}
	if deps.Store == nil {
		return nil, &ConfigError{Field: "store", Message: "is required"}
	}
	if deps.Provider == nil {
		return nil, &ConfigError{Field: "provider", Message: "is required"}
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = ModeBuild
	case ModePlan, ModeBuild:
	default:
		return nil, &ConfigError{Field: "mode", Message: fmt.Sprintf("must be %q or %q, got %q", ModePlan, ModeBuild, cfg.Mode)}
	}
	if cfg.Actor == "" {
		cfg.Actor = pm.DefaultActor
	}

	registry := deps.Tools
	if registry == nil {
		registry, _ = tools.NewRegistry()
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "agent")

	evaluator := gate.New(gate.WithTargetResolver(registry), gate.WithWorkDir(cfg.WorkDir))

	ledger := deps.Ledger
	if ledger == nil {
		ledger = rao.New(deps.Store, projectID,
			rao.WithEvaluator(evaluator),
			rao.WithMetrics(deps.Metrics),
			rao.WithTracer(deps.Tracer),
			rao.WithLogger(deps.Logger),
		)
	}

	sink := deps.Sink
	if sink == nil {
		sink = nopSink{}
	}

	return &Agent{
		projectID: projectID,
		config:    cfg,
		store:     deps.Store,
		ledger:    ledger,
		provider:  deps.Provider,
		tools:     registry,
		evaluator: evaluator,
		packer:    contextpack.Builder{Budget: cfg.ContextBudget},
		decisions: deps.Decisions,
		metrics:   deps.Metrics,
		tracer:    deps.Tracer,
		logger:    logger,
		sink:      sink,
		now:       time.Now,
		state:     StateIdle,
	}, nil
}

// StartTask begins a new task, replacing any previous one. It asks the
// model for work notes; malformed notes are recorded in NotesError and
// the task continues without them. Only a provider or persistence
// failure is returned.
func (a *Agent) StartTask(ctx context.Context, task string) (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.taskID = uuid.NewString()
	a.task = task
	a.notes = nil
	a.notesErr = nil
	a.pending = nil
	a.lastAudit = nil

	ctx = a.withIDs(ctx)
	ctx, span := a.tracer.Start(ctx, "agent.start_task",
		tracing.ProjectAttr(a.projectID),
		attribute.String(tracing.AttrTaskID, a.taskID),
		attribute.String(tracing.AttrMode, string(a.config.Mode)),
	)
	defer func() { tracing.End(span, err) }()

	a.emit(EventMeta, MetaData{Provider: a.provider.GetName(), Model: a.config.Model})
	a.setState(StatePlanning)
	a.logger.InfoContext(ctx, "task started", "mode", a.config.Mode)

	state, err := a.store.Load(ctx, a.projectID)
	if err != nil {
		a.fail(ctx, err)
		return err
	}

	a.messages = []providers.Message{
		{Role: providers.RoleSystem, Content: a.systemPrompt(state)},
		{Role: providers.RoleUser, Content: task},
	}

	req := a.request(append(append([]providers.Message{}, a.messages...),
		providers.Message{Role: providers.RoleUser, Content: workNotesPrompt}), false)

	resp, _, err := a.complete(ctx, req)
	if err != nil {
		a.fail(ctx, err)
		return err
	}

	notes, perr := worknotes.Parse(resp.Content)
	if perr != nil {
		a.notesErr = perr
		a.logger.WarnContext(ctx, "work notes unusable, continuing without them", "error", perr)
	} else {
		a.notes = notes
	}

	a.setState(StateProposing)
	return nil
}

// Continue runs one iteration of the loop. See StepResult.HasMore.
func (a *Agent) Continue(ctx context.Context) (result *StepResult, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case a.taskID == "":
		return nil, ErrNoTask
	case a.pending != nil:
		return nil, ErrGatePending
	case a.state == StateDone:
		return &StepResult{}, nil
	}

	ctx = a.withIDs(ctx)
	ctx, span := a.tracer.Start(ctx, "agent.continue",
		tracing.ProjectAttr(a.projectID),
		attribute.String(tracing.AttrTaskID, a.taskID),
	)
	defer func() { tracing.End(span, err) }()

	state, err := a.store.Load(ctx, a.projectID)
	if err != nil {
		a.fail(ctx, err)
		return nil, err
	}
	a.messages[0].Content = a.systemPrompt(state)

	resp, timedOut, err := a.complete(ctx, a.request(a.messages, true))
	if err != nil {
		a.fail(ctx, err)
		return nil, err
	}

	result = &StepResult{Content: resp.Content, Proposed: resp.ToolCalls, TimedOut: timedOut}
	if timedOut {
		a.logger.WarnContext(ctx, "completion timed out, abandoning iteration",
			"collected_chars", len(resp.Content),
		)
		if resp.Content != "" {
			a.messages = append(a.messages, providers.Message{Role: providers.RoleAssistant, Content: resp.Content})
		}
		return result, nil
	}

	a.messages = append(a.messages, providers.Message{
		Role:      providers.RoleAssistant,
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	})
	for _, call := range resp.ToolCalls {
		a.emit(EventToolCall, ToolCallData{Name: call.Function.Name, ID: call.ID})
	}

	complete := strings.Contains(strings.ToLower(resp.Content), CompletionPhrase)

	if a.config.Mode == ModePlan {
		a.finish()
		return result, nil
	}

	if len(resp.ToolCalls) == 0 {
		a.finish()
		return result, nil
	}

	verdict, err := a.evaluateGate(ctx, state, resp.ToolCalls)
	if err != nil {
		a.fail(ctx, err)
		return nil, err
	}
	result.Verdict = &verdict

	if verdict.Blocked || (verdict.NeedsApproval && a.config.RequireApproval) {
		a.pending = &PendingGate{
			Blocked:   verdict.Blocked,
			Warnings:  append([]gate.Warning{}, verdict.Warnings...),
			ToolCalls: append([]providers.ToolCall{}, resp.ToolCalls...),
			complete:  complete,
		}
		a.setState(StateAwaitingApproval)
		a.emitGate(a.pending)
		a.logger.InfoContext(ctx, "proposal awaiting approval",
			"blocked", verdict.Blocked,
			"warnings", len(verdict.Warnings),
		)
		result.Pending = a.pending.clone()
		return result, nil
	}

	executed, err := a.executeAll(ctx, resp.ToolCalls)
	result.Executed = executed
	if err != nil {
		a.fail(ctx, err)
		return result, err
	}

	if complete {
		a.finish()
		return result, nil
	}
	a.setState(StateProposing)
	result.HasMore = true
	return result, nil
}

// evaluateGate evaluates calls, records the verdict and appends an audit entry
// when there are warnings.
func (a *Agent) evaluateGate(ctx context.Context, state *pm.State, calls []providers.ToolCall) (gate.Verdict, error) {
	a.setState(StateGating)

	ctx, span := a.tracer.Start(ctx, "gate.evaluate", tracing.ProjectAttr(a.projectID))
	start := time.Now()
	verdict := a.evaluator.Evaluate(calls, state.Constraints)
	elapsed := time.Since(start)

	label := verdictLabel(verdict)
	span.SetAttributes(tracing.VerdictAttrs(label, len(verdict.Warnings))...)
	span.End()

	kinds := make([]string, len(verdict.Warnings))
	for i, w := range verdict.Warnings {
		kinds[i] = string(w.Kind)
	}
	a.metrics.RecordGateVerdict(label, kinds, elapsed)

	v := verdict
	a.lastAudit = &v

	if len(verdict.Warnings) > 0 {
		if _, err := a.ledger.AppendAudit(ctx, verdict); err != nil {
			return verdict, err
		}
	}
	return verdict, nil
}

// complete runs one model call, streaming when configured and supported.
// timedOut reports a streaming deadline; the partial response is returned
// with a nil error in that case.
func (a *Agent) complete(ctx context.Context, req *providers.CompletionRequest) (resp *providers.CompletionResponse, timedOut bool, err error) {
	name := a.provider.GetName()
	ctx, span := a.tracer.Start(ctx, "provider.completion", attribute.String(tracing.AttrProvider, name))
	defer func() {
		span.SetAttributes(attribute.Bool(tracing.AttrTimedOut, timedOut))
		tracing.End(span, err)
	}()

	start := time.Now()
	streamer, canStream := a.provider.(providers.Streamer)

	if a.config.Stream && canStream {
		req.Stream = true
		streamCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		chunks, serr := streamer.StreamCompletion(streamCtx, req)
		if serr != nil {
			a.metrics.RecordCompletion(name, "error", time.Since(start), 0, 0)
			return nil, false, fmt.Errorf("completion failed: %w", serr)
		}

		resp, serr = providers.CollectStream(streamCtx, chunks, providers.StreamTimeouts{
			FirstToken: a.config.FirstTokenTimeout,
			Overall:    a.config.OverallTimeout,
		}, func(delta string) {
			a.emit(EventTextDelta, TextDeltaData{Text: delta})
		})

		var terr *providers.StreamTimeoutError
		if errors.As(serr, &terr) {
			a.metrics.RecordStreamTimeout(terr.Phase)
			a.metrics.RecordCompletion(name, "timeout", time.Since(start), 0, 0)
			if resp == nil {
				resp = &providers.CompletionResponse{}
			}
			return resp, true, nil
		}
		if serr != nil {
			a.metrics.RecordCompletion(name, "error", time.Since(start), 0, 0)
			return nil, false, fmt.Errorf("completion failed: %w", serr)
		}
		if resp == nil {
			resp = &providers.CompletionResponse{}
		}
	} else {
		var cerr error
		resp, cerr = a.provider.SendCompletion(ctx, req)
		if cerr != nil {
			a.metrics.RecordCompletion(name, "error", time.Since(start), 0, 0)
			return nil, false, fmt.Errorf("completion failed: %w", cerr)
		}
		if resp == nil {
			resp = &providers.CompletionResponse{}
		}
		if resp.Content != "" {
			a.emit(EventTextDelta, TextDeltaData{Text: resp.Content})
		}
	}

	var prompt, completion int
	if resp.Usage != nil {
		prompt, completion = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}
	a.metrics.RecordCompletion(name, "success", time.Since(start), prompt, completion)
	return resp, false, nil
}

func (a *Agent) request(messages []providers.Message, withTools bool) *providers.CompletionRequest {
	req := &providers.CompletionRequest{
		Model:       a.config.Model,
		Messages:    messages,
		Temperature: a.config.Temperature,
		MaxTokens:   a.config.MaxTokens,
		Metadata: map[string]string{
			"project_id": a.projectID,
			"task_id":    a.taskID,
		},
	}
	if withTools {
		req.Tools = a.tools.Definitions()
	}
	return req
}

func (a *Agent) systemPrompt(state *pm.State) string {
	pack := a.packer.Build(state, string(a.config.Mode), a.notes)
	if state.Charter == "" {
		return systemPreamble + "\n\n" + pack
	}
	return systemPreamble + "\n\n## Charter\n" + state.Charter + "\n\n" + pack
}

func (a *Agent) withIDs(ctx context.Context) context.Context {
	ctx = logging.WithProjectID(ctx, a.projectID)
	return logging.WithTaskID(ctx, a.taskID)
}

func (a *Agent) setState(s State) {
	if a.state == s {
		return
	}
	a.state = s
	a.emit(EventState, StateData{State: s})
}

func (a *Agent) finish() {
	a.setState(StateDone)
	a.emit(EventComplete, struct{}{})
}

func (a *Agent) fail(ctx context.Context, err error) {
	a.logger.ErrorContext(ctx, "agent step failed", "state", a.state, "error", err)
	a.emit(EventError, ErrorData{Message: err.Error()})
	if a.pending == nil {
		a.setState(StateIdle)
	}
}

func (a *Agent) emit(typ string, data any) {
	a.sink.Emit(Event{Type: typ, Data: data})
}

func (a *Agent) emitGate(p *PendingGate) {
	warnings := make([]GateWarningData, len(p.Warnings))
	for i, w := range p.Warnings {
		warnings[i] = GateWarningData{Code: w.Code, Subject: w.Subject}
	}
	id := ""
	if len(p.ToolCalls) > 0 {
		id = p.ToolCalls[0].ID
	}
	a.emit(EventGate, GateData{ID: id, Blocked: p.Blocked, Warnings: warnings})
}

func verdictLabel(v gate.Verdict) string {
	switch {
	case v.Blocked:
		return "blocked"
	case v.NeedsApproval:
		return "needs_approval"
	default:
		return "allowed"
	}
}

// Accessors.

// ProjectID returns the project the agent works on.
func (a *Agent) ProjectID() string {
	return a.projectID
}

// TaskID returns the current task id, or "" before StartTask.
func (a *Agent) TaskID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.taskID
}

// State returns the current loop state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Mode returns the configured mode.
func (a *Agent) Mode() Mode {
	return a.config.Mode
}

// Pending returns a copy of the pending gate, or nil.
func (a *Agent) Pending() *PendingGate {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending.clone()
}

// Notes returns the task's work notes, or nil.
func (a *Agent) Notes() *worknotes.Notes {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.notes
}

// NotesError returns why work notes could not be parsed, or nil.
func (a *Agent) NotesError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.notesErr
}

// LastAudit returns the most recent gate verdict of this task, or nil.
func (a *Agent) LastAudit() *gate.Verdict {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastAudit == nil {
		return nil
	}
	v := *a.lastAudit
	v.Warnings = append([]gate.Warning{}, a.lastAudit.Warnings...)
	return &v
}

// Messages returns a copy of the conversation.
func (a *Agent) Messages() []providers.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]providers.Message{}, a.messages...)
}
