package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/keel/pkg/pm"
)

// SQLiteConfig contains configuration for the SQLite store.
type SQLiteConfig struct {
	// Path is the database file path. ":memory:" is accepted for tests.
	Path string

	// WALMode enables Write-Ahead Logging mode.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// CacheSize is the number of project states kept in the LRU cache.
	// Default: 128
	CacheSize int
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:        "data/pm.db",
		WALMode:     true,
		BusyTimeout: 5 * time.Second,
		CacheSize:   128,
	}
}

// SQLiteStore implements pm.Store on SQLite.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	cache  *lru.Cache[string, *pm.State]
	mu     sync.Mutex
	writes atomic.Int64
	now    func() time.Time
	logger *slog.Logger
}

// NewSQLiteStore opens (and if needed creates) the database at config.Path.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Path == "" {
		return nil, pm.NewStorageError("sqlite", "open", errors.New("db path cannot be empty"))
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5 * time.Second
	}
	if config.CacheSize <= 0 {
		config.CacheSize = 128
	}

	logger := slog.Default().With("component", "pm.storage.sqlite")

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, pm.NewStorageError("sqlite", "open", err)
	}

	// A single connection keeps PRAGMAs and ":memory:" databases consistent.
	db.SetMaxOpenConns(1)

	cache, err := lru.New[string, *pm.State](config.CacheSize)
	if err != nil {
		db.Close()
		return nil, pm.NewStorageError("sqlite", "create_cache", err)
	}

	s := &SQLiteStore{
		db:     db,
		config: config,
		cache:  cache,
		now:    time.Now,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite pm store initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
		"cache_size", config.CacheSize,
	)

	return s, nil
}

func (s *SQLiteStore) initialize() error {
	if s.config.WALMode && s.config.Path != ":memory:" {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return pm.NewStorageError("sqlite", "enable_wal", err)
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return pm.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return pm.NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return pm.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil {
		return pm.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return pm.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	return nil
}

// SetClock replaces the time source (testing helper).
func (s *SQLiteStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Load returns the current state. Cached states are reused while their
// version still matches the database.
func (s *SQLiteStore) Load(ctx context.Context, projectID string) (*pm.State, error) {
	if projectID == "" {
		return nil, pm.NewStorageError("sqlite", "load", pm.ErrEmptyProjectID)
	}

	var version int64
	err := s.db.QueryRowContext(ctx, selectVersionSQL, projectID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return pm.NewState(projectID, s.clock()), nil
	}
	if err != nil {
		return nil, pm.NewStorageError("sqlite", "load_version", err)
	}

	if cached, ok := s.cache.Get(projectID); ok && cached.Version == version {
		return cached.Clone(), nil
	}

	state, _, err := loadState(ctx, s.db, projectID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return pm.NewState(projectID, s.clock()), nil
	}
	s.cache.Add(projectID, state.Clone())
	return state, nil
}

// Save applies update and logs one event in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, projectID string, update *pm.Update, meta *pm.EventMeta) (*pm.State, error) {
	if projectID == "" {
		return nil, pm.NewStorageError("sqlite", "save", pm.ErrEmptyProjectID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var next *pm.State
	err := s.withTx(ctx, "save", func(tx *sql.Tx) error {
		now := s.now()
		current, exists, err := loadState(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if current == nil {
			current = pm.NewState(projectID, now)
		}
		if err := update.CheckVersion(current); err != nil {
			return pm.NewStorageError("sqlite", "save", err)
		}

		next = pm.Commit(current, update, now)
		ev, err := pm.NewEvent(projectID, current, next, meta, now)
		if err != nil {
			return pm.NewStorageError("sqlite", "encode_event", err)
		}

		if err := writeState(ctx, tx, next, current.Version, exists); err != nil {
			return err
		}
		return insertEvent(ctx, tx, ev)
	})
	if err != nil {
		s.cache.Remove(projectID)
		return nil, err
	}

	s.cache.Add(projectID, next.Clone())
	s.writes.Add(1)
	return next, nil
}

// ListEvents returns events newest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, projectID string, limit int) ([]*pm.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM pm_events WHERE project_id = ? ORDER BY seq DESC`
	args := []interface{}{projectID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pm.NewStorageError("sqlite", "list_events", err)
	}
	defer rows.Close()

	events := []*pm.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, pm.NewStorageError("sqlite", "scan_event", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, pm.NewStorageError("sqlite", "list_events", err)
	}
	return events, nil
}

// GetEvent returns a single event.
func (s *SQLiteStore) GetEvent(ctx context.Context, projectID, id string) (*pm.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM pm_events WHERE project_id = ? AND id = ?`, projectID, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pm.ErrEventNotFound
	}
	if err != nil {
		return nil, pm.NewStorageError("sqlite", "get_event", err)
	}
	return ev, nil
}

// UndoLast restores the before snapshot of the newest undoable event.
func (s *SQLiteStore) UndoLast(ctx context.Context, projectID string) (*pm.UndoResult, error) {
	if projectID == "" {
		return nil, pm.NewStorageError("sqlite", "undo", pm.ErrEmptyProjectID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result *pm.UndoResult
	err := s.withTx(ctx, "undo", func(tx *sql.Tx) error {
		popped, err := scanEvent(tx.QueryRowContext(ctx, selectUndoableSQL, projectID))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return pm.NewStorageError("sqlite", "select_undoable", err)
		}

		now := s.now()
		current, exists, err := loadState(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if current == nil {
			current = pm.NewState(projectID, now)
		}

		restored, err := pm.Restore(current, popped)
		if err != nil {
			return pm.NewStorageError("sqlite", "restore", err)
		}

		undoEv, err := pm.NewEvent(projectID, current, restored, &pm.EventMeta{
			Command:   "pm.undo",
			Note:      "undo of " + popped.ID,
			EventType: pm.EventUndo,
		}, now)
		if err != nil {
			return pm.NewStorageError("sqlite", "encode_event", err)
		}

		if err := writeState(ctx, tx, restored, current.Version, exists); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, markUndoneSQL, popped.ID); err != nil {
			return pm.NewStorageError("sqlite", "mark_undone", err)
		}
		if err := insertEvent(ctx, tx, undoEv); err != nil {
			return err
		}

		popped.Undone = true
		result = &pm.UndoResult{
			Previous: current,
			State:    restored,
			Popped:   popped,
			Event:    undoEv,
		}
		return nil
	})
	if err != nil {
		s.cache.Remove(projectID)
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	s.cache.Add(projectID, result.State.Clone())
	s.writes.Add(1)
	return result, nil
}

// PruneEvents deletes events older than olderThan, keeping the newest keep
// events of each project.
func (s *SQLiteStore) PruneEvents(ctx context.Context, projectID string, olderThan time.Time, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, pruneEventsSQL, olderThan.UnixNano(), projectID, projectID, keep)
	if err != nil {
		return 0, pm.NewStorageError("sqlite", "prune", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, pm.NewStorageError("sqlite", "prune", err)
	}
	return n, nil
}

// ListProjects returns the ids of all projects with persisted state.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT project_id FROM pm_state ORDER BY project_id`)
	if err != nil {
		return nil, pm.NewStorageError("sqlite", "list_projects", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, pm.NewStorageError("sqlite", "list_projects", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.cache.Purge()
	return s.db.Close()
}

// Writes returns the number of successful writes (testing helper).
func (s *SQLiteStore) Writes() int64 {
	return s.writes.Load()
}

func (s *SQLiteStore) clock() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now()
}

func (s *SQLiteStore) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return pm.NewStorageError("sqlite", op+"_begin", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return pm.NewStorageError("sqlite", op+"_commit", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// loadState returns nil, false, nil when the project has no row.
func loadState(ctx context.Context, q queryer, projectID string) (*pm.State, bool, error) {
	var raw string
	var version int64
	err := q.QueryRowContext(ctx, selectStateSQL, projectID).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, pm.NewStorageError("sqlite", "load_state", err)
	}

	var state pm.State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, false, pm.NewStorageError("sqlite", "decode_state", err)
	}
	state.Version = version
	state.Normalize()
	return &state, true, nil
}

// writeState inserts or conditionally updates the state row. A lost race
// surfaces as pm.ErrVersionConflict.
func writeState(ctx context.Context, tx *sql.Tx, next *pm.State, expectedVersion int64, exists bool) error {
	data, err := json.Marshal(next)
	if err != nil {
		return pm.NewStorageError("sqlite", "encode_state", err)
	}

	var res sql.Result
	if exists {
		res, err = tx.ExecContext(ctx, updateStateSQL, string(data), next.Version, next.LastUpdated.UnixNano(), next.ProjectID, expectedVersion)
	} else {
		res, err = tx.ExecContext(ctx, insertStateSQL, next.ProjectID, string(data), next.Version, next.LastUpdated.UnixNano())
	}
	if err != nil {
		return pm.NewStorageError("sqlite", "write_state", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return pm.NewStorageError("sqlite", "write_state", err)
	}
	if n == 0 {
		return pm.NewStorageError("sqlite", "write_state", pm.ErrVersionConflict)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, ev *pm.Event) error {
	_, err := tx.ExecContext(ctx, insertEventSQL,
		ev.ID, ev.ProjectID, ev.TS.UnixNano(), ev.Actor, ev.Command,
		string(ev.Before), string(ev.After), ev.Note, string(ev.EventType), ev.Undone,
	)
	if err != nil {
		return pm.NewStorageError("sqlite", "insert_event", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row scanner) (*pm.Event, error) {
	var (
		ev        pm.Event
		ts        int64
		before    string
		after     string
		note      sql.NullString
		eventType string
		undone    bool
	)
	if err := row.Scan(&ev.ID, &ev.ProjectID, &ts, &ev.Actor, &ev.Command, &before, &after, &note, &eventType, &undone); err != nil {
		return nil, err
	}
	ev.TS = time.Unix(0, ts).UTC()
	ev.Before = json.RawMessage(before)
	ev.After = json.RawMessage(after)
	ev.Note = note.String
	ev.EventType = pm.EventType(eventType)
	ev.Undone = undone
	return &ev, nil
}
