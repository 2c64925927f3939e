package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/workloop/pkg/logger"
)

// Cycler runs one full cycle.
type Cycler interface {
	RunCycle(ctx context.Context) (CycleReport, error)
}

// Scheduler runs cycles on a fixed interval until stopped.
type Scheduler struct {
	cycler   Cycler
	interval time.Duration
	logger   logger.Logger

	shutdown chan struct{}
	done     chan struct{}
	once     sync.Once
}

// SchedulerOption applies a configuration option to the Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets the scheduler logger.
func WithSchedulerLogger(l logger.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScheduler creates a scheduler running c every interval.
func NewScheduler(c Cycler, interval time.Duration, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		cycler:   c,
		interval: interval,
		logger:   logger.Nop(),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts a cycle immediately and then once per interval until ctx is
// cancelled or Shutdown is called. A failed cycle is logged and the next
// one runs on schedule. A cycle in progress finishes before Run returns.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	rep, err := s.cycler.RunCycle(ctx)
	if err != nil {
		s.logger.Error(ctx, "cycle failed",
			logger.Duration("duration", time.Since(start)),
			logger.Error(err),
		)
		return
	}
	s.logger.Info(ctx, "cycle finished",
		logger.String("distribution", rep.Distribution.CycleID),
		logger.Int("assigned", len(rep.Distribution.Assignments)),
		logger.Int("resolved", len(rep.Attribution.Resolved)),
		logger.Int("evaluated", len(rep.Evaluation.Snapshots)),
		logger.Duration("duration", time.Since(start)),
	)
}

// Shutdown stops the loop after the current cycle and waits for it.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.once.Do(func() { close(s.shutdown) })

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		s.logger.Warn(ctx, "scheduler shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
