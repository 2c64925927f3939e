package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyAssigned   = errors.New("item already assigned")
	ErrInvalidLimit      = errors.New("invalid leaderboard limit")
	ErrInvalidAssignment = errors.New("invalid assignment")
)
