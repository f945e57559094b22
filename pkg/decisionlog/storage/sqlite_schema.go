package storage

// SchemaVersion is the current decision-log schema version.
const SchemaVersion = 1

// Schema creates the decision-log tables.
const Schema = `
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    task_id TEXT NOT NULL,
    ts TIMESTAMP NOT NULL,
    tool TEXT NOT NULL,
    targets TEXT NOT NULL,
    summary TEXT,
    output_hash TEXT,
    output_bytes INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_decisions_project_ts ON decisions(project_id, ts);
CREATE INDEX IF NOT EXISTS idx_decisions_tool ON decisions(tool);
CREATE INDEX IF NOT EXISTS idx_decisions_task ON decisions(task_id);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// InsertSchemaVersion records the schema version once.
const InsertSchemaVersion = `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`

// GetSchemaVersion reads the newest schema version.
const GetSchemaVersion = `SELECT version FROM schema_version ORDER BY version DESC LIMIT 1`
