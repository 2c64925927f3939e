package allocation

import (
	"time"

	"github.com/okian/workloop/pkg/logger"
)

// Option applies a configuration option to the Allocator.
type Option func(*Allocator)

// WithDiversityWeight sets the penalty added per assignment already won.
func WithDiversityWeight(w float64) Option {
	return func(a *Allocator) {
		if w >= 0 {
			a.diversityWeight = w
		}
	}
}

// WithMaxPenalty caps the diversity penalty. Values outside [0,1) are ignored.
func WithMaxPenalty(p float64) Option {
	return func(a *Allocator) {
		if p >= 0 && p < 1 {
			a.maxPenalty = p
		}
	}
}

// WithLogger sets the allocator logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Allocator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithClock overrides the assignment timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Allocator) {
		if now != nil {
			a.now = now
		}
	}
}
