// Package pm defines project memory: the durable, versioned record of a
// project's policy, preferences, recent outcomes and RAO ledger.
//
// Every mutation goes through Store.Save, which writes exactly one Event
// holding full before and after snapshots. Undo restores the before
// snapshot of the most recent undoable event and is itself logged as an
// event, so the history is never rewritten.
//
// Concrete stores live in pkg/pm/storage. The helpers in this package
// (NewState, Update.Apply, NewEvent, Restore, ChangedKeys) hold the
// semantics shared by every store.
package pm
