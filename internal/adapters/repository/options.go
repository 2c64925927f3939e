package repository

// Option applies a configuration option to the Repository.
type Option func(*Repository)

// WithRetries bounds optimistic retries per document update.
func WithRetries(n int) Option {
	return func(r *Repository) {
		if n > 0 {
			r.retries = n
		}
	}
}

// WithRingSize sets how many handled digests the distribution document keeps.
func WithRingSize(n int) Option {
	return func(r *Repository) {
		if n > 0 {
			r.ringSize = n
		}
	}
}

// WithSnapshotHistory caps the snapshots kept per worker in the reputation
// document. Zero keeps all of them.
func WithSnapshotHistory(n int) Option {
	return func(r *Repository) {
		if n >= 0 {
			r.snapshotHistory = n
		}
	}
}
