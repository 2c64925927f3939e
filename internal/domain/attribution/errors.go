package attribution

import "errors"

// Sentinel errors for this package.
var (
	// ErrAmbiguousLinkage may be returned by a Tracker's primary lookup when
	// several submissions claim the item; the fallback channel is used instead.
	ErrAmbiguousLinkage = errors.New("ambiguous closing submission")
	// ErrTracker wraps tracker failures that persisted through the retry.
	ErrTracker = errors.New("submission tracker failed")
)
