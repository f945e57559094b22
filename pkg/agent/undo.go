package agent

import (
	"context"

	"mercator-hq/keel/pkg/pm"
	"mercator-hq/keel/pkg/rao"
)

// UndoPM restores the state before the most recent undoable event and
// records an override entry naming the keys that changed. It returns
// nil, nil when there is nothing to undo.
func (a *Agent) UndoPM(ctx context.Context) (*UndoOutcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.ledger.Undo(a.withIDs(ctx))
	if err != nil || res == nil {
		return nil, err
	}
	return &UndoOutcome{
		EventID:     res.EventID,
		ChangedKeys: res.ChangedKeys,
		State:       res.State,
		UndoEvent:   res.UndoEvent,
	}, nil
}

// RaoStatus returns the ledger's last run, audit and override entries.
func (a *Agent) RaoStatus() rao.Status {
	return a.ledger.Status()
}

// RaoHistory returns up to limit ledger entries, newest first.
func (a *Agent) RaoHistory(ctx context.Context, limit int) ([]pm.Snapshot, error) {
	return a.ledger.History(ctx, limit)
}

// SimulateRaoReplay re-evaluates recent runs against the current constraints.
func (a *Agent) SimulateRaoReplay(ctx context.Context, limit int) ([]rao.ReplayResult, error) {
	return a.ledger.SimulateReplay(ctx, limit)
}

// PurgeRaoHistory clears the ledger history and the last audit verdict.
func (a *Agent) PurgeRaoHistory(ctx context.Context) (*pm.State, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	state, err := a.ledger.Purge(a.withIDs(ctx))
	if err != nil {
		return nil, err
	}
	a.lastAudit = nil
	return state, nil
}
