package allocation

import "errors"

// Sentinel errors for this package.
var (
	// ErrAlreadyCommitted is returned by a Committer when the item already
	// has an assignment. The allocator skips such items without counting them.
	ErrAlreadyCommitted = errors.New("item already committed")
	// ErrCommit wraps any other Committer failure; it aborts the batch.
	ErrCommit = errors.New("commit assignment failed")
)
