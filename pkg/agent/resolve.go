package agent

import (
	"context"
	"path"
	"strings"

	"mercator-hq/keel/pkg/gate"
	"mercator-hq/keel/pkg/pm"
	"mercator-hq/keel/pkg/providers"
	"mercator-hq/keel/pkg/telemetry/tracing"
)

// CommandAlwaysAllow is the PM command recorded when an operator adds an
// always_allow rule from a pending gate.
const CommandAlwaysAllow = "gate.always_allow"

// RejectedOutput is the tool result fed back for rejected calls.
const RejectedOutput = "rejected by operator"

// ApprovePendingOnce executes the pending calls once without changing
// policy.
func (a *Agent) ApprovePendingOnce(ctx context.Context) (*StepResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx = a.withIDs(ctx)
	return a.approveLocked(ctx)
}

func (a *Agent) approveLocked(ctx context.Context) (result *StepResult, err error) {
	if a.pending == nil {
		return nil, ErrNoPendingGate
	}
	if a.pending.Blocked {
		return nil, ErrGateBlocked
	}

	ctx, span := a.tracer.Start(ctx, "agent.approve", tracing.ProjectAttr(a.projectID))
	defer func() { tracing.End(span, err) }()

	pending := a.pending
	a.pending = nil
	a.logger.InfoContext(ctx, "pending proposal approved", "calls", len(pending.ToolCalls))

	executed, err := a.executeAll(ctx, pending.ToolCalls)
	result = &StepResult{Proposed: pending.ToolCalls, Executed: executed}
	if err != nil {
		a.fail(ctx, err)
		return result, err
	}

	if pending.complete {
		a.finish()
		return result, nil
	}
	a.setState(StateProposing)
	result.HasMore = true
	return result, nil
}

// AlwaysAllowFromPending persists an always_allow rule derived from the
// pending proposal and then approves it once. For RuleKindTool an empty
// pattern adds one rule per distinct pending tool name. For RuleKindPath
// an empty pattern is inferred from the pending targets.
func (a *Agent) AlwaysAllowFromPending(ctx context.Context, kind gate.RuleKind, pattern string) (*StepResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx = a.withIDs(ctx)
	if a.pending == nil {
		return nil, ErrNoPendingGate
	}
	if a.pending.Blocked {
		return nil, ErrGateBlocked
	}

	var rules []gate.AllowRule
	switch kind {
	case gate.RuleKindTool:
		if pattern != "" {
			rules = []gate.AllowRule{gate.ToolRule(pattern)}
			break
		}
		seen := make(map[string]bool)
		for _, call := range a.pending.ToolCalls {
			name := call.Function.Name
			if !seen[name] {
				seen[name] = true
				rules = append(rules, gate.ToolRule(name))
			}
		}
	case gate.RuleKindPath:
		if pattern == "" {
			inferred, err := InferPathPattern(a.pendingTargets())
			if err != nil {
				return nil, err
			}
			pattern = inferred
		}
		rules = []gate.AllowRule{gate.PathRule(pattern)}
	default:
		return nil, ErrUnknownRuleKind
	}

	if err := a.persistAllowRules(ctx, rules); err != nil {
		a.fail(ctx, err)
		return nil, err
	}
	return a.approveLocked(ctx)
}

func (a *Agent) persistAllowRules(ctx context.Context, rules []gate.AllowRule) (err error) {
	ctx, span := a.tracer.Start(ctx, "agent.always_allow", tracing.ProjectAttr(a.projectID))
	defer func() { tracing.End(span, err) }()

	state, err := a.store.Load(ctx, a.projectID)
	if err != nil {
		return err
	}
	constraints := state.Constraints.WithAllowRules(rules...)
	version := state.Version

	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.String()
	}

	_, err = a.store.Save(ctx, a.projectID,
		&pm.Update{Constraints: &constraints, ExpectVersion: &version},
		&pm.EventMeta{
			Actor:     a.config.Actor,
			Command:   CommandAlwaysAllow,
			Note:      strings.Join(names, ", "),
			EventType: pm.EventUpdate,
		},
	)
	if err != nil {
		return err
	}
	a.metrics.RecordPMSave(string(pm.EventUpdate))
	a.logger.InfoContext(ctx, "always_allow rules added", "rules", names)
	return nil
}

// RejectPendingGate discards the pending proposal and tells the model
// each call was rejected.
func (a *Agent) RejectPendingGate(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pending == nil {
		return ErrNoPendingGate
	}
	ctx = a.withIDs(ctx)

	for _, call := range a.pending.ToolCalls {
		a.messages = append(a.messages, providers.Message{
			Role:       providers.RoleTool,
			ToolCallID: call.ID,
			Name:       call.Function.Name,
			Content:    RejectedOutput,
		})
		a.emit(EventToolResult, ToolResultData{ToolID: call.ID, Output: RejectedOutput})
	}

	a.logger.InfoContext(ctx, "pending proposal rejected",
		"calls", len(a.pending.ToolCalls),
		"blocked", a.pending.Blocked,
	)
	a.pending = nil
	a.setState(StateProposing)
	return nil
}

func (a *Agent) pendingTargets() []string {
	var out []string
	seen := make(map[string]bool)
	for _, call := range a.pending.ToolCalls {
		for _, t := range a.evaluator.Targets(call) {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// InferPathPattern derives an always_allow path glob from targets: a
// single target is returned as is, several targets give their longest
// common segment prefix followed by "/**".
func InferPathPattern(targets []string) (string, error) {
	switch len(targets) {
	case 0:
		return "", ErrNoCommonPrefix
	case 1:
		return targets[0], nil
	}

	prefix := strings.Split(path.Clean(targets[0]), "/")
	for _, t := range targets[1:] {
		segs := strings.Split(path.Clean(t), "/")
		n := 0
		for n < len(prefix) && n < len(segs) && prefix[n] == segs[n] {
			n++
		}
		prefix = prefix[:n]
	}

	// A shared leading "" only means every target is absolute.
	if len(prefix) == 0 || (len(prefix) == 1 && prefix[0] == "") {
		return "", ErrNoCommonPrefix
	}
	return strings.Join(prefix, "/") + "/**", nil
}
