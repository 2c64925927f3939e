package main

import (
	"context"
	"fmt"

	"github.com/okian/workloop/internal/adapters/archive"
	"github.com/okian/workloop/internal/adapters/events"
	"github.com/okian/workloop/internal/adapters/repository"
	"github.com/okian/workloop/internal/adapters/roster"
	"github.com/okian/workloop/internal/adapters/source"
	"github.com/okian/workloop/internal/adapters/statestore"
	"github.com/okian/workloop/internal/adapters/tracker"
	service "github.com/okian/workloop/internal/app"
	"github.com/okian/workloop/internal/config"
	"github.com/okian/workloop/internal/domain/affinity"
	"github.com/okian/workloop/internal/domain/allocation"
	"github.com/okian/workloop/internal/domain/attribution"
	"github.com/okian/workloop/internal/domain/scoring"
	"github.com/okian/workloop/pkg/logger"
)

// openStore opens the configured state backend. The returned close func is
// never nil.
func openStore(ctx context.Context, cfg *config.Config) (statestore.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.StateBackend {
	case config.BackendFile:
		s, err := statestore.NewFile(cfg.StateDir)
		return s, noop, err
	case config.BackendPostgres:
		s, err := statestore.OpenPostgres(ctx, cfg.StateDSN)
		if err != nil {
			return nil, noop, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, noop, err
		}
		return s, s.Close, nil
	case config.BackendRedis:
		s, err := statestore.OpenRedis(ctx, cfg.StateRedisAddr)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	default:
		return statestore.NewMemory(), noop, nil
	}
}

// build wires the pipeline from configuration. The returned func releases
// the state backend and the event publisher.
func build(ctx context.Context, cfg *config.Config, log logger.Logger) (*service.Pipeline, func(), error) {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s state: %w", cfg.StateBackend, err)
	}
	repo := repository.New(store,
		repository.WithRetries(cfg.StateRetries),
		repository.WithRingSize(cfg.DedupRingSize),
	)

	client := tracker.New(cfg.TrackerBaseURL,
		tracker.WithToken(cfg.TrackerToken),
		tracker.WithRateLimit(cfg.TrackerRateLimit),
		tracker.WithLogger(log.Named("tracker")),
	)
	resolver := attribution.New(client,
		attribution.WithStrict(cfg.StrictAttribution),
		attribution.WithTransient(tracker.IsTransient),
		attribution.WithLogger(log.Named("attribution")),
	)

	opts := []service.Option{
		service.WithLogger(log.Named("pipeline")),
		service.WithWindow(cfg.EvaluationWindow),
		service.WithConcurrency(cfg.AttributionConcurrency),
		service.WithAffinity(affinity.New(
			affinity.WithPatternWeight(cfg.PatternWeight),
			affinity.WithOverlapFloor(cfg.OverlapFloor),
			affinity.WithLocalityBonus(cfg.LocalityBonus),
			affinity.WithReputationCoefficient(cfg.ReputationCoefficient),
		)),
		service.WithAllocator(allocation.New(
			allocation.WithDiversityWeight(cfg.DiversityWeight),
			allocation.WithMaxPenalty(cfg.MaxPenalty),
			allocation.WithLogger(log.Named("allocation")),
		)),
		service.WithScorer(scoring.NewScorer(
			scoring.WithWeights(scoring.Weights{
				Quality:       cfg.WeightQuality,
				Resolution:    cfg.WeightResolution,
				Submission:    cfg.WeightSubmission,
				Collaboration: cfg.WeightCollaboration,
				Innovation:    cfg.WeightInnovation,
			}),
			scoring.WithDistinguishedThreshold(cfg.DistinguishedThreshold),
			scoring.WithMinSampleSize(cfg.MinSampleSize),
			scoring.WithReviewTarget(cfg.ReviewTarget),
		)),
	}

	if len(cfg.KafkaBrokers) > 0 {
		pub, err := events.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, events.WithLogger(log.Named("events")))
		if err != nil {
			_ = closeStore()
			return nil, nil, err
		}
		opts = append(opts, service.WithPublisher(pub))
	}
	if cfg.ArchiveBucket != "" {
		arc, err := archive.NewS3(ctx, cfg.ArchiveBucket, cfg.ArchivePrefix, archive.WithLogger(log.Named("archive")))
		if err != nil {
			_ = closeStore()
			return nil, nil, err
		}
		opts = append(opts, service.WithArchiver(arc))
	}

	p := service.New(repo,
		source.NewFile(cfg.SourceFile, source.WithLogger(log.Named("source"))),
		roster.NewFile(cfg.RosterFile, roster.WithLogger(log.Named("roster"))),
		resolver,
		opts...,
	)

	closeAll := func() {
		if err := p.Close(); err != nil {
			log.Warn(ctx, "publisher close failed", logger.Error(err))
		}
		if err := closeStore(); err != nil {
			log.Warn(ctx, "state close failed", logger.Error(err))
		}
	}
	return p, closeAll, nil
}
