package dedupe

import (
	"time"

	"github.com/okian/workloop/pkg/logger"
)

// Option applies a configuration option to the Deduper.
type Option func(*Deduper)

// WithRetryBackoff sets the pause before the single retry of a store call.
func WithRetryBackoff(d time.Duration) Option {
	return func(dd *Deduper) {
		if d >= 0 {
			dd.backoff = d
		}
	}
}

// WithLogger sets the logger used for fail-open warnings.
func WithLogger(l logger.Logger) Option {
	return func(d *Deduper) {
		if l != nil {
			d.logger = l
		}
	}
}
