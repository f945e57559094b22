// Package storage provides pm.Store implementations.
//
// MemoryStore keeps everything in process memory and is used by tests and
// ephemeral sessions. SQLiteStore persists state and events in a single
// SQLite file (pure-Go driver) and fronts state reads with an LRU cache
// that is revalidated against the stored version on every Load.
//
// Both stores serialise writes within a process. SQLiteStore additionally
// guards every state update with a version check, so a second process
// writing the same project makes the loser fail with pm.ErrVersionConflict
// instead of silently overwriting.
package storage
