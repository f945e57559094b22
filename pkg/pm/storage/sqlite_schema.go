package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the project-memory tables.
const Schema = `
-- Current state, one row per project
CREATE TABLE IF NOT EXISTS pm_state (
    project_id TEXT PRIMARY KEY,
    state_json TEXT NOT NULL,
    version INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Append-only event log; seq gives a total order per database
CREATE TABLE IF NOT EXISTS pm_events (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    project_id TEXT NOT NULL,
    ts INTEGER NOT NULL,
    actor TEXT NOT NULL,
    command TEXT NOT NULL,
    before_json TEXT NOT NULL,
    after_json TEXT NOT NULL,
    note TEXT,
    event_type TEXT NOT NULL,
    undone INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_pm_events_project_seq ON pm_events(project_id, seq DESC);
CREATE INDEX IF NOT EXISTS idx_pm_events_ts ON pm_events(ts);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`

// GetSchemaVersion retrieves the current schema version.
const GetSchemaVersion = `SELECT version FROM schema_version ORDER BY version DESC LIMIT 1`

const (
	selectStateSQL   = `SELECT state_json, version FROM pm_state WHERE project_id = ?`
	selectVersionSQL = `SELECT version FROM pm_state WHERE project_id = ?`
	insertStateSQL   = `INSERT INTO pm_state (project_id, state_json, version, updated_at) VALUES (?, ?, ?, ?) ON CONFLICT(project_id) DO NOTHING`
	updateStateSQL   = `UPDATE pm_state SET state_json = ?, version = ?, updated_at = ? WHERE project_id = ? AND version = ?`

	eventColumns   = `id, project_id, ts, actor, command, before_json, after_json, note, event_type, undone`
	insertEventSQL = `INSERT INTO pm_events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectUndoableSQL = `SELECT ` + eventColumns + ` FROM pm_events
		WHERE project_id = ? AND undone = 0 AND event_type IN ('update', 'import', 'rao_purge')
		ORDER BY seq DESC LIMIT 1`

	markUndoneSQL = `UPDATE pm_events SET undone = 1 WHERE id = ?`

	pruneEventsSQL = `DELETE FROM pm_events
		WHERE ts < ?
		AND (? = '' OR project_id = ?)
		AND seq NOT IN (
			SELECT e2.seq FROM pm_events e2
			WHERE e2.project_id = pm_events.project_id
			ORDER BY e2.seq DESC LIMIT ?
		)`
)
