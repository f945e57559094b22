package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mercator-hq/keel/pkg/decisionlog"
)

// SQLiteConfig contains configuration for the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 4
	MaxOpenConns int

	// WALMode enables Write-Ahead Logging.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/decisions.db",
		MaxOpenConns: 4,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements decisionlog.Storage on SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage opens the database and creates the schema.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Path == "" {
		return nil, decisionlog.NewStorageError("sqlite", "open", errors.New("db path cannot be empty"))
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = 4
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "decisionlog.storage.sqlite")

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, decisionlog.NewStorageError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)

	s := &SQLiteStorage{db: db, config: config, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite decision storage initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
	)
	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return decisionlog.NewStorageError("sqlite", "enable_wal", err)
		}
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return decisionlog.NewStorageError("sqlite", "set_busy_timeout", err)
	}
	if _, err := s.db.Exec(Schema); err != nil {
		return decisionlog.NewStorageError("sqlite", "create_schema", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return decisionlog.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil {
		return decisionlog.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return decisionlog.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	return nil
}

// Store inserts d.
func (s *SQLiteStorage) Store(ctx context.Context, d *decisionlog.Decision) error {
	targets, err := json.Marshal(d.Targets)
	if err != nil {
		return decisionlog.NewStorageError("sqlite", "store", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO decisions (id, project_id, task_id, ts, tool, targets, summary, output_hash, output_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ProjectID, d.TaskID, d.Timestamp.UTC(), d.Tool, string(targets), d.Summary, d.OutputHash, d.OutputBytes,
	)
	if err != nil {
		return decisionlog.NewStorageError("sqlite", "store", err)
	}
	return nil
}

// Query returns matching decisions ordered by timestamp.
func (s *SQLiteStorage) Query(ctx context.Context, q *decisionlog.Query) ([]*decisionlog.Decision, error) {
	if q == nil {
		q = &decisionlog.Query{}
	}
	if err := decisionlog.Validate(q); err != nil {
		return nil, err
	}

	where, args := buildWhere(q)
	order := "DESC"
	if q.SortOrder == "asc" {
		order = "ASC"
	}

	query := `SELECT id, project_id, task_id, ts, tool, targets, summary, output_hash, output_bytes FROM decisions` +
		where + fmt.Sprintf(" ORDER BY ts %s, id %s", order, order)
	if q.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, q.Limit, q.Offset)
	} else if q.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, decisionlog.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	results := make([]*decisionlog.Decision, 0)
	for rows.Next() {
		var (
			d       decisionlog.Decision
			targets string
			summary sql.NullString
			hash    sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.TaskID, &d.Timestamp, &d.Tool, &targets, &summary, &hash, &d.OutputBytes); err != nil {
			return nil, decisionlog.NewStorageError("sqlite", "scan", err)
		}
		if err := json.Unmarshal([]byte(targets), &d.Targets); err != nil {
			return nil, decisionlog.NewStorageError("sqlite", "decode_targets", err)
		}
		if d.Targets == nil {
			d.Targets = []string{}
		}
		d.Timestamp = d.Timestamp.UTC()
		d.Summary = summary.String
		d.OutputHash = hash.String
		results = append(results, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, decisionlog.NewStorageError("sqlite", "query", err)
	}
	return results, nil
}

// Count returns the number of matching decisions.
func (s *SQLiteStorage) Count(ctx context.Context, q *decisionlog.Query) (int64, error) {
	if q == nil {
		q = &decisionlog.Query{}
	}
	where, args := buildWhere(q)

	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM decisions"+where, args...).Scan(&n); err != nil {
		return 0, decisionlog.NewStorageError("sqlite", "count", err)
	}
	return n, nil
}

// Delete removes matching decisions.
func (s *SQLiteStorage) Delete(ctx context.Context, q *decisionlog.Query) (int64, error) {
	if q == nil {
		q = &decisionlog.Query{}
	}
	where, args := buildWhere(q)

	res, err := s.db.ExecContext(ctx, "DELETE FROM decisions"+where, args...)
	if err != nil {
		return 0, decisionlog.NewStorageError("sqlite", "delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, decisionlog.NewStorageError("sqlite", "delete", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return decisionlog.NewStorageError("sqlite", "close", err)
	}
	return nil
}

func buildWhere(q *decisionlog.Query) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if q.ProjectID != "" {
		clauses = append(clauses, "project_id = ?")
		args = append(args, q.ProjectID)
	}
	if q.TaskID != "" {
		clauses = append(clauses, "task_id = ?")
		args = append(args, q.TaskID)
	}
	if q.Tool != "" {
		clauses = append(clauses, "tool = ?")
		args = append(args, q.Tool)
	}
	if q.StartTime != nil {
		clauses = append(clauses, "ts >= ?")
		args = append(args, q.StartTime.UTC())
	}
	if q.EndTime != nil {
		clauses = append(clauses, "ts <= ?")
		args = append(args, q.EndTime.UTC())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
