package dedupe

import "errors"

// ErrStore wraps failures reported by a digest Store.
var ErrStore = errors.New("dedupe store failed")
