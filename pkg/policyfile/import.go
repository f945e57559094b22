package policyfile

import (
	"context"
	"fmt"

	"mercator-hq/keel/pkg/pm"
)

// CommandImport is the event command written by Import.
const CommandImport = "policy.import"

// Result describes one import.
type Result struct {
	// ChangedKeys lists the dotted paths the file changed.
	ChangedKeys []string

	// State is the state after the import (or the unchanged state).
	State *pm.State

	// Skipped is true when the file matched project memory already.
	Skipped bool
}

// Import applies f to projectID's memory. It writes nothing when the file
// would change no key.
func Import(ctx context.Context, store pm.Store, projectID string, f *File, actor string) (*Result, error) {
	current, err := store.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}

	update := f.Update()
	candidate := update.Apply(current)
	changed, err := pm.ChangedKeys(current, candidate)
	if err != nil {
		return nil, fmt.Errorf("failed to diff policy file: %w", err)
	}
	if len(changed) == 0 {
		return &Result{ChangedKeys: []string{}, State: current, Skipped: true}, nil
	}

	version := current.Version
	update.ExpectVersion = &version

	state, err := store.Save(ctx, projectID, update, &pm.EventMeta{
		Actor:     actor,
		Command:   CommandImport,
		Note:      f.Path,
		EventType: pm.EventImport,
	})
	if err != nil {
		return nil, err
	}
	return &Result{ChangedKeys: changed, State: state}, nil
}

// ImportFile loads path and imports it.
func ImportFile(ctx context.Context, store pm.Store, projectID, path, actor string) (*Result, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Import(ctx, store, projectID, f, actor)
}
