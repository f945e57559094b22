// Package rao implements the Run / Audit / Override ledger.
//
// The ledger is a bounded history of snapshots stored inside project
// memory (pm.State.Rao). Run entries record executed tool calls, audit
// entries record gate evaluations that produced warnings, and override
// entries record policy changes made by undo.
//
// Consecutive audit entries with the same canonical form collapse into
// one: the warnings are sorted by code, subject and message and compared
// together with the blocked flag. Run and override entries are always
// appended. After each append only the newest MaxHistory entries are kept.
//
// SimulateReplay re-evaluates recorded runs against the current
// constraints and never writes.
package rao
