package source

import "errors"

// Sentinel errors for this package.
var (
	ErrRead        = errors.New("read work items")
	ErrUnknownItem = errors.New("unknown work item")
)
