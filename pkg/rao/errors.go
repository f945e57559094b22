package rao

import "errors"

var (
	// ErrNilEntry indicates Append was called without a payload.
	ErrNilEntry = errors.New("rao: nil entry")

	// ErrConflictRetries indicates the ledger lost every optimistic write
	// race against concurrent writers.
	ErrConflictRetries = errors.New("rao: too many concurrent write conflicts")
)
