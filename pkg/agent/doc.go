// Package agent runs the plan/build loop that turns a task into gated
// tool calls.
//
// # Loop
//
//	StartTask ──▶ planning (work notes) ──▶ proposing
//	                                          │
//	Continue ─────────────────────────────────┘
//	    completion ──▶ gating ──▶ executing ──▶ proposing ...
//	                      │
//	                      └──▶ awaiting_approval
//	                             ApprovePendingOnce | AlwaysAllowFromPending | RejectPendingGate
//
// Every proposal in build mode is evaluated by pkg/gate against the
// project's current constraints. A proposal that needs approval, or that
// is blocked, suspends the loop with a PendingGate; that is the only
// point where the loop waits for a human. Blocked proposals can only be
// rejected.
//
// # Persistence
//
// The agent never mutates project memory directly. Policy changes go
// through pm.Store.Save, ledger entries through rao.Ledger, and undo
// through pm.Store.UndoLast. A persistence error ends the current step
// and is returned unchanged; tool failures are reported to the model and
// the loop carries on.
//
// # Concurrency
//
// All exported methods are serialised by one mutex. Tool calls of a
// single proposal run sequentially, in proposal order.
package agent
