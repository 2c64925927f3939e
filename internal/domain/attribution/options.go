package attribution

import (
	"strings"
	"time"

	"github.com/okian/workloop/pkg/logger"
)

// Option applies a configuration option to the Resolver.
type Option func(*Resolver)

// WithStrict toggles strict mode. In strict mode a submission tagged only
// with other workers is not credited to the expected worker.
func WithStrict(strict bool) Option {
	return func(r *Resolver) {
		r.strict = strict
	}
}

// WithKnownWorkers restricts identity tags to the given worker ids.
func WithKnownWorkers(ids []string) Option {
	return func(r *Resolver) {
		r.known = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			r.known[strings.ToLower(id)] = struct{}{}
		}
	}
}

// WithRetryBackoff sets the pause before the single retry of a tracker call.
func WithRetryBackoff(d time.Duration) Option {
	return func(r *Resolver) {
		if d >= 0 {
			r.backoff = d
		}
	}
}

// WithTransient sets the classifier for tracker errors. Errors it rejects
// are not retried and fail the item instead of deferring it. By default
// every error counts as transient.
func WithTransient(fn func(error) bool) Option {
	return func(r *Resolver) {
		if fn != nil {
			r.transient = fn
		}
	}
}

// WithLogger sets the resolver logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the verdict timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}
