// Package storage provides decision-log backends.
//
// MemoryStorage is intended for tests and short-lived sessions.
// SQLiteStorage persists decisions to a database file through the cgo
// mattn/go-sqlite3 driver, with WAL mode enabled by default.
package storage
