package service

import "errors"

// Sentinel errors for this package.
var (
	// ErrSource wraps work-item source failures that abort a distribution run.
	ErrSource = errors.New("work-item source failed")
	// ErrRoster wraps roster failures that abort a run.
	ErrRoster = errors.New("worker roster failed")
	// ErrState wraps state-store failures; exhausted retries land here too.
	ErrState = errors.New("state store failed")
)
