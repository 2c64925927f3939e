package statestore

import "errors"

// Sentinel error kinds for this package.
var (
	// ErrConflictExhausted means every optimistic retry hit a concurrent
	// writer. The run must fail rather than drop the update.
	ErrConflictExhausted = errors.New("state update conflict: retries exhausted")
	ErrInvalidKey        = errors.New("invalid state key")
	ErrLockTimeout       = errors.New("state lock timeout")
)
