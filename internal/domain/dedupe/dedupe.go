package dedupe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/workloop/internal/domain/model"
	"github.com/okian/workloop/pkg/logger"
	"github.com/okian/workloop/pkg/metrics"
)

const defaultRetryBackoff = 50 * time.Millisecond

// Store holds handled digests.
type Store interface {
	Contains(ctx context.Context, digest string) (bool, error)
	Add(ctx context.Context, digest string) error
}

// Deduper answers whether an item was already handled. Lookups fail open:
// a store that keeps failing after one retry reports "not a duplicate".
type Deduper struct {
	store   Store
	backoff time.Duration
	logger  logger.Logger
}

// New creates a Deduper over store.
func New(store Store, opts ...Option) *Deduper {
	d := &Deduper{
		store:   store,
		backoff: defaultRetryBackoff,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// IsDuplicate reports whether item's digest was already handled.
func (d *Deduper) IsDuplicate(ctx context.Context, item model.WorkItem) bool {
	digest := Digest(item)
	var found bool
	err := d.retry(ctx, func() error {
		var err error
		found, err = d.store.Contains(ctx, digest)
		return err
	})
	if err != nil {
		metrics.RecordDedupeFailOpen()
		d.logger.Warn(ctx, "dedupe lookup failed, treating item as new",
			logger.String("item", item.ID),
			logger.String("digest", digest),
			logger.Error(err),
		)
		return false
	}
	return found
}

// MarkHandled records item's digest.
func (d *Deduper) MarkHandled(ctx context.Context, item model.WorkItem) error {
	digest := Digest(item)
	err := d.retry(ctx, func() error {
		return d.store.Add(ctx, digest)
	})
	if err != nil {
		return fmt.Errorf("%w: mark %s: %w", ErrStore, item.ID, err)
	}
	return nil
}

// retry runs fn and, on error, once more after the backoff.
func (d *Deduper) retry(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return err
	case <-time.After(d.backoff):
	}
	return fn()
}

// MemoryStore is a Store over an in-process Ring.
type MemoryStore struct {
	mu   sync.Mutex
	ring *Ring
}

// NewMemoryStore creates a MemoryStore keeping size digests.
func NewMemoryStore(size int) *MemoryStore {
	return &MemoryStore{ring: NewRing(size)}
}

// Contains implements Store.
func (m *MemoryStore) Contains(_ context.Context, digest string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ring.Contains(digest), nil
}

// Add implements Store.
func (m *MemoryStore) Add(_ context.Context, digest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ring.Add(digest)
	return nil
}

// Len returns the number of retained digests.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ring.Len()
}
