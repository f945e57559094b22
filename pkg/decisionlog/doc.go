// Package decisionlog records every tool call the agent executed
// successfully, so operators can answer "what did the agent change, and
// when" after the conversation is gone.
//
// # Architecture
//
//	agent ──Record──▶ Recorder ──chan──▶ worker ──Store──▶ Storage
//	                                                     (memory | sqlite)
//
// Recording never blocks the agent loop for longer than the configured
// write timeout. Tool output itself is not stored: only its SHA-256 hash
// and size, plus a short summary.
//
// # Usage
//
//	store, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{Path: "data/decisions.db"})
//	if err != nil {
//	    return err
//	}
//	rec := decisionlog.NewRecorder(store, nil)
//	defer rec.Close()
//
//	records, err := store.Query(ctx, &decisionlog.Query{ProjectID: id, Limit: 20})
package decisionlog
