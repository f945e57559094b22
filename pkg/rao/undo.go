package rao

import (
	"context"

	"mercator-hq/keel/pkg/pm"
	"mercator-hq/keel/pkg/telemetry/tracing"
)

// CommandUndo is the command recorded on override entries written by Undo.
const CommandUndo = "pm.undo"

// UndoResult describes a successful Undo.
type UndoResult struct {
	// EventID is the id of the event whose before snapshot was restored.
	EventID string

	// ChangedKeys lists the dotted paths that differ after the undo.
	ChangedKeys []string

	// State is the state after the undo and its override entry.
	State *pm.State

	// UndoEvent is the undo event logged by the store.
	UndoEvent *pm.Event

	// Override is the override entry appended to the history.
	Override pm.Snapshot
}

// Undo restores the state before the most recent undoable event and
// appends an override entry naming the keys that changed. It returns
// nil, nil when there is nothing to undo.
func (l *Ledger) Undo(ctx context.Context) (result *UndoResult, err error) {
	ctx, span := l.tracer.Start(ctx, "pm.undo", tracing.ProjectAttr(l.projectID))
	defer func() { tracing.End(span, err) }()

	res, err := l.store.UndoLast(ctx, l.projectID)
	if err != nil {
		l.metrics.RecordPMUndo("error")
		return nil, err
	}
	if res == nil {
		l.metrics.RecordPMUndo("empty")
		l.logger.InfoContext(ctx, "nothing to undo")
		return nil, nil
	}

	keys, err := pm.ChangedKeys(res.Previous, res.State)
	if err != nil {
		l.metrics.RecordPMUndo("error")
		return nil, err
	}

	appended, err := l.AppendOverride(ctx, res.Popped.ID, keys, CommandUndo)
	if err != nil {
		l.metrics.RecordPMUndo("error")
		return nil, err
	}

	l.metrics.RecordPMUndo("success")
	l.logger.InfoContext(ctx, "pm event undone",
		"event_id", res.Popped.ID,
		"event_type", res.Popped.EventType,
		"changed_keys", keys,
	)

	return &UndoResult{
		EventID:     res.Popped.ID,
		ChangedKeys: keys,
		State:       appended.State,
		UndoEvent:   res.Event,
		Override:    appended.Snapshot,
	}, nil
}
