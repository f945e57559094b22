package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"mercator-hq/keel/pkg/decisionlog"
	"mercator-hq/keel/pkg/pm"
	"mercator-hq/keel/pkg/providers"
	"mercator-hq/keel/pkg/telemetry/tracing"
	"mercator-hq/keel/pkg/tools"
)

// CommandOutcome is the PM command recorded for outcome ring updates.
const CommandOutcome = "agent.outcome"

// executeAll runs calls in order. Tool failures are fed back to the model
// and never abort the loop; only persistence failures are returned.
func (a *Agent) executeAll(ctx context.Context, calls []providers.ToolCall) ([]Execution, error) {
	a.setState(StateExecuting)

	executed := make([]Execution, 0, len(calls))
	for _, call := range calls {
		exec, err := a.execute(ctx, call)
		executed = append(executed, exec)
		if err != nil {
			return executed, err
		}
	}
	return executed, nil
}

func (a *Agent) execute(ctx context.Context, call providers.ToolCall) (exec Execution, err error) {
	name := call.Function.Name
	targets := a.evaluator.Targets(call)

	ctx, span := a.tracer.Start(ctx, "tool.execute", tracing.ToolAttrs(name, targets)...)
	defer func() { tracing.End(span, err) }()

	exec = Execution{CallID: call.ID, Tool: name, Targets: targets}

	start := time.Now()
	exec.Result, exec.Err = a.invoke(ctx, call)
	exec.Elapsed = time.Since(start)

	status := "success"
	if !exec.Result.Success {
		status = "failure"
	}
	a.metrics.RecordToolExecution(name, status, exec.Elapsed)
	a.logger.InfoContext(ctx, "tool executed",
		"tool", name,
		"targets", targets,
		"success", exec.Result.Success,
		"duration_ms", exec.Elapsed.Milliseconds(),
	)

	a.emit(EventToolResult, ToolResultData{
		ToolID:    call.ID,
		Success:   exec.Result.Success,
		Output:    exec.Result.Content(),
		ElapsedMS: exec.Elapsed.Milliseconds(),
	})

	a.messages = append(a.messages, providers.Message{
		Role:       providers.RoleTool,
		ToolCallID: call.ID,
		Name:       name,
		Content:    truncateOutput(exec.Result.Content(), a.config.MaxToolOutput),
	})

	if _, err := a.ledger.AppendRun(ctx, name, targets, exec.Result.Success); err != nil {
		return exec, err
	}
	if err := a.saveOutcome(ctx, name, targets, exec.Result); err != nil {
		return exec, err
	}

	if exec.Result.Success && a.decisions != nil {
		rerr := a.decisions.Record(ctx, decisionlog.Entry{
			ProjectID: a.projectID,
			TaskID:    a.taskID,
			Tool:      name,
			Targets:   targets,
			Summary:   summarize(exec.Result),
			Output:    exec.Result.Output,
		})
		if rerr != nil {
			a.logger.WarnContext(ctx, "failed to record decision", "tool", name, "error", rerr)
		}
	}
	return exec, nil
}

// invoke resolves and runs the tool. It always returns a non-nil Result;
// an unknown tool or a tool error becomes a failed Result.
func (a *Agent) invoke(ctx context.Context, call providers.ToolCall) (*tools.Result, error) {
	name := call.Function.Name
	tool, err := a.tools.Get(name)
	if err != nil {
		return tools.Failure(fmt.Sprintf("unknown tool %q", name)), &ToolError{Tool: name, CallID: call.ID, Cause: err}
	}

	args := json.RawMessage(call.Function.Arguments)
	if !json.Valid(args) {
		args = json.RawMessage("{}")
	}

	res, err := tool.Execute(ctx, args, tools.Env{WorkDir: a.config.WorkDir, Scope: a.scope()})
	if err != nil {
		terr := &ToolError{Tool: name, CallID: call.ID, Cause: err}
		if res == nil {
			res = tools.Failure(err.Error())
		} else {
			res.Success = false
			if res.Error == "" {
				res.Error = err.Error()
			}
		}
		return res, terr
	}
	if res == nil {
		res = &tools.Result{Success: true}
	}
	return res, nil
}

// saveOutcome appends to the recent_outcomes ring with an optimistic
// version check.
func (a *Agent) saveOutcome(ctx context.Context, tool string, targets []string, res *tools.Result) error {
	state, err := a.store.Load(ctx, a.projectID)
	if err != nil {
		return err
	}

	ring := pm.AppendOutcome(state.RecentOutcomes, pm.Outcome{
		TS:      a.now().UTC(),
		Tool:    tool,
		Targets: append([]string{}, targets...),
		OK:      res.Success,
		Summary: summarize(res),
	}, pm.MaxRecentOutcomes)

	version := state.Version
	_, err = a.store.Save(ctx, a.projectID,
		&pm.Update{RecentOutcomes: &ring, ExpectVersion: &version},
		&pm.EventMeta{Actor: a.config.Actor, Command: CommandOutcome, EventType: pm.EventOutcome},
	)
	if errors.Is(err, pm.ErrVersionConflict) {
		a.metrics.RecordPMConflict()
	}
	if err != nil {
		return err
	}
	a.metrics.RecordPMSave(string(pm.EventOutcome))
	return nil
}

func (a *Agent) scope() []string {
	if a.notes == nil {
		return nil
	}
	return append([]string{}, a.notes.Scope.Files...)
}

const summaryLimit = 120

func summarize(res *tools.Result) string {
	s := res.Output
	if !res.Success {
		s = res.Error
	}
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > summaryLimit {
		s = s[:summaryLimit] + "..."
	}
	return s
}

func truncateOutput(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + fmt.Sprintf("\n[truncated %d bytes]", len(s)-max)
}
