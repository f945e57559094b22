package agent

import (
	"time"

	"mercator-hq/keel/pkg/config"
	"mercator-hq/keel/pkg/contextpack"
	"mercator-hq/keel/pkg/gate"
	"mercator-hq/keel/pkg/pm"
	"mercator-hq/keel/pkg/providers"
	"mercator-hq/keel/pkg/tools"
)

// State is the orchestrator's position in the loop.
type State string

const (
	StateIdle             State = "idle"
	StatePlanning         State = "planning"
	StateProposing        State = "proposing"
	StateGating           State = "gating"
	StateExecuting        State = "executing"
	StateAwaitingApproval State = "awaiting_approval"
	StateDone             State = "done"
)

// Mode selects whether proposals are executed.
type Mode string

const (
	// ModePlan surfaces proposed calls without executing them.
	ModePlan Mode = contextpack.ModePlan

	// ModeBuild gates and executes proposed calls.
	ModeBuild Mode = contextpack.ModeBuild
)

// CompletionPhrase ends the build loop when it appears in model text.
const CompletionPhrase = "task complete"

// Config tunes one Agent.
type Config struct {
	Mode              Mode
	Model             string
	RequireApproval   bool
	Stream            bool
	FirstTokenTimeout time.Duration
	OverallTimeout    time.Duration
	MaxToolOutput     int
	Temperature       float64
	MaxTokens         int

	// ContextBudget is the context-pack character budget.
	ContextBudget int

	// WorkDir is handed to tools and used to relativise targets.
	WorkDir string

	// Actor is recorded on PM events written by the agent.
	Actor string
}

// DefaultConfig returns a build-mode configuration that requires approval.
func DefaultConfig() Config {
	return Config{
		Mode:              ModeBuild,
		RequireApproval:   true,
		FirstTokenTimeout: config.DefaultAgentFirstTokenTimeout,
		OverallTimeout:    config.DefaultAgentOverallTimeout,
		MaxToolOutput:     config.DefaultAgentMaxToolOutput,
		ContextBudget:     contextpack.DefaultBudget,
		Actor:             pm.DefaultActor,
	}
}

// ConfigFrom maps the loaded configuration onto an agent Config.
func ConfigFrom(cfg *config.Config, workDir string) Config {
	c := DefaultConfig()
	if cfg == nil {
		c.WorkDir = workDir
		return c
	}
	c.Mode = Mode(cfg.Agent.Mode)
	c.Model = cfg.Agent.Model
	c.RequireApproval = cfg.Agent.RequireApproval
	c.Stream = cfg.Agent.Stream
	c.FirstTokenTimeout = cfg.Agent.FirstTokenTimeout
	c.OverallTimeout = cfg.Agent.OverallTimeout
	c.MaxToolOutput = cfg.Agent.MaxToolOutput
	c.Temperature = cfg.Agent.Temperature
	c.MaxTokens = cfg.Agent.MaxTokens
	c.ContextBudget = cfg.ContextPack.Budget
	c.WorkDir = workDir
	return c
}

// PendingGate is a proposal held back for a human decision. It is never
// persisted.
type PendingGate struct {
	Blocked   bool
	Warnings  []gate.Warning
	ToolCalls []providers.ToolCall

	// complete records that the proposing completion also said the task
	// was complete.
	complete bool
}

// Messages returns the warning messages.
func (p *PendingGate) Messages() []string {
	out := make([]string, len(p.Warnings))
	for i, w := range p.Warnings {
		out[i] = w.Message
	}
	return out
}

func (p *PendingGate) clone() *PendingGate {
	if p == nil {
		return nil
	}
	out := *p
	out.Warnings = append([]gate.Warning{}, p.Warnings...)
	out.ToolCalls = append([]providers.ToolCall{}, p.ToolCalls...)
	return &out
}

// Execution is the outcome of one executed tool call.
type Execution struct {
	CallID  string
	Tool    string
	Targets []string
	Result  *tools.Result
	Elapsed time.Duration

	// Err is set when the tool returned an error; it is a *ToolError.
	Err error
}

// StepResult reports what one Continue (or resolution) did.
type StepResult struct {
	// Content is the model's text for this step.
	Content string

	// Proposed lists the tool calls the model proposed.
	Proposed []providers.ToolCall

	// Verdict is the gate verdict for Proposed (build mode only).
	Verdict *gate.Verdict

	// Executed lists the calls that ran, in order.
	Executed []Execution

	// Pending is set when the step suspended on a gate.
	Pending *PendingGate

	// HasMore is true when Continue should be called again.
	HasMore bool

	// TimedOut is true when a streamed completion hit a deadline.
	TimedOut bool
}

// UndoOutcome describes a successful UndoPM.
type UndoOutcome struct {
	// EventID is the id of the event whose before snapshot was restored.
	EventID string

	// ChangedKeys lists the dotted paths that differ after the undo.
	ChangedKeys []string

	// State is the restored project state.
	State *pm.State

	// UndoEvent is the event that logged the undo.
	UndoEvent *pm.Event
}
