package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/workloop/internal/adapters/events"
	"github.com/okian/workloop/internal/adapters/repository"
	"github.com/okian/workloop/internal/adapters/worker"
	"github.com/okian/workloop/internal/domain/attribution"
	"github.com/okian/workloop/internal/domain/model"
	"github.com/okian/workloop/pkg/logger"
	"github.com/okian/workloop/pkg/metrics"
)

// AttributionReport summarizes one attribution run.
type AttributionReport struct {
	Pending    int                       `json:"pending"`
	Resolved   []model.AttributionResult `json:"resolved"`
	Deferred   []string                  `json:"deferred"`
	Unlinked   []string                  `json:"unlinked"`
	Failed     []string                  `json:"failed"`
	Attributed int                       `json:"attributed"`
	Duration   time.Duration             `json:"duration"`
}

type resolution struct {
	asg     model.Assignment
	verdict attribution.Verdict
	err     error
}

// RunAttribution resolves every assignment that has no current verdict.
// Tracker calls may run concurrently; verdicts are persisted one by one in
// item order.
func (p *Pipeline) RunAttribution(ctx context.Context) (AttributionReport, error) {
	start := time.Now()
	var rep AttributionReport
	err := p.attribute(ctx, &rep)
	rep.Duration = time.Since(start)
	metrics.RecordCycle("attribution", float64(rep.Duration.Milliseconds()), err)
	p.recordAttribution(rep, err)
	return rep, err
}

func (p *Pipeline) attribute(ctx context.Context, rep *AttributionReport) error {
	assignments, err := p.repo.Assignments(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrState, err)
	}
	results, err := p.repo.Attributions(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrState, err)
	}
	current := repository.LatestByItem(results)

	pending := make([]model.Assignment, 0, len(assignments))
	for _, a := range assignments {
		if _, done := current[a.ItemID]; !done {
			pending = append(pending, a)
		}
	}
	rep.Pending = len(pending)

	pool := worker.NewPool(p.concurrency, func(ctx context.Context, a model.Assignment) resolution {
		v, err := p.resolver.Resolve(ctx, model.WorkItem{ID: a.ItemID}, a)
		return resolution{asg: a, verdict: v, err: err}
	}, worker.WithName("attribution"), worker.WithLogger(p.logger))

	outcomes, poolErr := pool.Process(ctx, pending)

	evs := make([]events.Event, 0, len(outcomes))
	defer func() { p.publish(ctx, evs) }()

	for _, o := range outcomes {
		if o.err != nil {
			return o.err
		}
		if o.asg.ItemID == "" {
			// not dispatched before cancellation
			continue
		}
		switch o.verdict.Outcome {
		case attribution.OutcomeResolved:
			if err := p.repo.AppendAttribution(ctx, o.verdict.Result); err != nil {
				return fmt.Errorf("%w: %w", ErrState, err)
			}
			rep.Resolved = append(rep.Resolved, o.verdict.Result)
			if o.verdict.Result.Attributed {
				rep.Attributed++
			}
			if ev, evErr := events.AttributionResolved(o.verdict.Result); evErr == nil {
				evs = append(evs, ev)
			}
		case attribution.OutcomeDeferred:
			rep.Deferred = append(rep.Deferred, o.asg.ItemID)
		case attribution.OutcomeUnlinked:
			rep.Unlinked = append(rep.Unlinked, o.asg.ItemID)
		case attribution.OutcomeFailed:
			rep.Failed = append(rep.Failed, o.asg.ItemID)
		}
	}
	if poolErr != nil {
		return poolErr
	}

	p.logger.Info(ctx, "attribution finished",
		logger.Int("pending", rep.Pending),
		logger.Int("resolved", len(rep.Resolved)),
		logger.Int("attributed", rep.Attributed),
		logger.Int("deferred", len(rep.Deferred)),
		logger.Int("unlinked", len(rep.Unlinked)),
		logger.Int("failed", len(rep.Failed)),
	)
	return nil
}
