package model

import "errors"

// Sentinel errors for malformed records.
var (
	ErrInvalidWorkItem = errors.New("invalid work item")
	ErrInvalidWorker   = errors.New("invalid worker profile")
)
