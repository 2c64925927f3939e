// Package service wires the workloop components into batch runs and exposes
// the read model served by the ops API.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/okian/workloop/internal/adapters/archive"
	"github.com/okian/workloop/internal/adapters/events"
	"github.com/okian/workloop/internal/adapters/repository"
	"github.com/okian/workloop/internal/domain/affinity"
	"github.com/okian/workloop/internal/domain/allocation"
	"github.com/okian/workloop/internal/domain/attribution"
	"github.com/okian/workloop/internal/domain/dedupe"
	"github.com/okian/workloop/internal/domain/model"
	"github.com/okian/workloop/internal/domain/scoring"
	"github.com/okian/workloop/pkg/logger"
)

// DefaultWindow is the default evaluation window.
const DefaultWindow = 30 * 24 * time.Hour

// Source is the work-item discovery collaborator.
type Source interface {
	ListPending(ctx context.Context) ([]model.WorkItem, error)
	MarkHandled(ctx context.Context, itemID string) error
}

// Roster supplies worker profiles. It is re-read on every run.
type Roster interface {
	Load(ctx context.Context) ([]model.WorkerProfile, error)
}

// Pipeline runs distribution, attribution and evaluation over shared state.
type Pipeline struct {
	repo     *repository.Repository
	source   Source
	roster   Roster
	resolver *attribution.Resolver

	deduper   *dedupe.Deduper
	affinity  *affinity.Scorer
	allocator *allocation.Allocator
	scorer    *scoring.Scorer
	publisher events.Publisher
	archiver  archive.Archiver

	window      time.Duration
	concurrency int
	now         func() time.Time
	logger      logger.Logger

	mu    sync.RWMutex
	stats runStats
}

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithAffinity sets the affinity scorer.
func WithAffinity(s *affinity.Scorer) Option {
	return func(p *Pipeline) {
		if s != nil {
			p.affinity = s
		}
	}
}

// WithAllocator sets the allocator.
func WithAllocator(a *allocation.Allocator) Option {
	return func(p *Pipeline) {
		if a != nil {
			p.allocator = a
		}
	}
}

// WithScorer sets the performance scorer.
func WithScorer(s *scoring.Scorer) Option {
	return func(p *Pipeline) {
		if s != nil {
			p.scorer = s
		}
	}
}

// WithDeduper replaces the deduper built over the repository's handled set.
func WithDeduper(d *dedupe.Deduper) Option {
	return func(p *Pipeline) {
		if d != nil {
			p.deduper = d
		}
	}
}

// WithPublisher sets the lifecycle event publisher.
func WithPublisher(pub events.Publisher) Option {
	return func(p *Pipeline) {
		if pub != nil {
			p.publisher = pub
		}
	}
}

// WithArchiver sets the snapshot archiver.
func WithArchiver(a archive.Archiver) Option {
	return func(p *Pipeline) {
		if a != nil {
			p.archiver = a
		}
	}
}

// WithWindow sets the evaluation window.
func WithWindow(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.window = d
		}
	}
}

// WithConcurrency sets how many items attribution resolves at once.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets a custom logger for the pipeline.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Pipeline. Components not supplied through options use their
// defaults; events and archiving are disabled unless configured.
func New(repo *repository.Repository, source Source, roster Roster, resolver *attribution.Resolver, opts ...Option) *Pipeline {
	p := &Pipeline{
		repo:        repo,
		source:      source,
		roster:      roster,
		resolver:    resolver,
		affinity:    affinity.New(),
		allocator:   allocation.New(),
		scorer:      scoring.NewScorer(),
		publisher:   events.Nop{},
		archiver:    archive.Nop{},
		window:      DefaultWindow,
		concurrency: 1,
		now:         time.Now,
		logger:      logger.Nop(),
		stats:       runStats{startedAt: time.Now().UTC()},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.deduper == nil {
		p.deduper = dedupe.New(repo.Handled(), dedupe.WithLogger(p.logger))
	}
	return p
}

// Close releases the publisher.
func (p *Pipeline) Close() error {
	return p.publisher.Close()
}

func (p *Pipeline) publish(ctx context.Context, evs []events.Event) {
	if len(evs) == 0 {
		return
	}
	if err := p.publisher.Publish(ctx, evs...); err != nil {
		p.logger.Warn(ctx, "event publishing failed",
			logger.Int("events", len(evs)),
			logger.Error(err),
		)
	}
}
