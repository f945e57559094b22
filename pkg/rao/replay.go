package rao

import (
	"context"

	"mercator-hq/keel/pkg/gate"
	"mercator-hq/keel/pkg/pm"
)

// Simulation is the result of re-evaluating one history entry.
type Simulation struct {
	// Available is false for entries that cannot be replayed.
	Available     bool           `json:"available"`
	Blocked       bool           `json:"blocked"`
	NeedsApproval bool           `json:"needs_approval"`
	Warnings      []gate.Warning `json:"warnings"`
}

// ReplayResult pairs a history entry with its simulation.
type ReplayResult struct {
	Snapshot pm.Snapshot `json:"snapshot"`
	Simulate Simulation  `json:"simulate"`
}

// SimulateReplay re-evaluates the run entries among the newest limit
// entries against the current constraints, newest first. It only reads
// project memory.
func (l *Ledger) SimulateReplay(ctx context.Context, limit int) ([]ReplayResult, error) {
	ctx, span := l.tracer.Start(ctx, "rao.simulate_replay")
	defer span.End()

	state, err := l.store.Load(ctx, l.projectID)
	if err != nil {
		return nil, err
	}

	history := newestFirst(state.Rao.History, limit)
	results := make([]ReplayResult, 0, len(history))
	for _, snap := range history {
		res := ReplayResult{Snapshot: snap, Simulate: Simulation{Warnings: []gate.Warning{}}}
		if run, ok := snap.Run(); ok {
			v := l.evaluator.EvaluateTargets([]gate.Call{{
				ID:      snap.ID,
				Name:    run.Tool,
				Targets: append([]string{}, run.Targets...),
			}}, state.Constraints)
			res.Simulate = Simulation{
				Available:     true,
				Blocked:       v.Blocked,
				NeedsApproval: v.NeedsApproval,
				Warnings:      v.Warnings,
			}
		}
		results = append(results, res)
	}

	l.logger.DebugContext(ctx, "rao replay simulated", "entries", len(results))
	return results, nil
}
