package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/workloop/internal/adapters/events"
	"github.com/okian/workloop/internal/domain/model"
	"github.com/okian/workloop/internal/domain/scoring"
	"github.com/okian/workloop/pkg/logger"
	"github.com/okian/workloop/pkg/metrics"
)

// EvaluationReport summarizes one evaluation run.
type EvaluationReport struct {
	WindowStart time.Time                   `json:"window_start"`
	WindowEnd   time.Time                   `json:"window_end"`
	Snapshots   []model.PerformanceSnapshot `json:"snapshots"`
	Promoted    []string                    `json:"promoted"`
	Demoted     []string                    `json:"demoted"`
	Archived    int                         `json:"archived"`
	Duration    time.Duration               `json:"duration"`
}

// RunEvaluation scores every roster worker over the trailing window and
// records a snapshot plus live reputation for each.
func (p *Pipeline) RunEvaluation(ctx context.Context) (EvaluationReport, error) {
	start := time.Now()
	end := p.now().UTC()
	rep := EvaluationReport{WindowStart: end.Add(-p.window), WindowEnd: end}
	err := p.evaluate(ctx, &rep)
	rep.Duration = time.Since(start)
	metrics.RecordCycle("evaluation", float64(rep.Duration.Milliseconds()), err)
	p.recordEvaluation(rep, err)
	return rep, err
}

func (p *Pipeline) evaluate(ctx context.Context, rep *EvaluationReport) error {
	profiles, err := p.roster.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRoster, err)
	}
	assignments, err := p.repo.Assignments(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrState, err)
	}
	results, err := p.repo.Attributions(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrState, err)
	}
	standing, err := p.repo.Reputation(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrState, err)
	}

	evs := make([]events.Event, 0, len(profiles))
	defer func() { p.publish(ctx, evs) }()

	for _, w := range profiles {
		if err := ctx.Err(); err != nil {
			return err
		}
		current := model.TierNew
		if st, ok := standing.Workers[w.ID]; ok && st.Tier != "" {
			current = st.Tier
		}

		act := scoring.Aggregate(w.ID, rep.WindowStart, rep.WindowEnd, assignments, results, w.Signals)
		snap := p.scorer.Evaluate(w.ID, current, act, rep.WindowStart, rep.WindowEnd)
		if err := p.repo.RecordSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("%w: %w", ErrState, err)
		}
		rep.Snapshots = append(rep.Snapshots, snap)

		switch {
		case snap.Tier == current:
		case snap.Tier == model.TierDistinguished || current == model.TierNew:
			rep.Promoted = append(rep.Promoted, w.ID)
		default:
			rep.Demoted = append(rep.Demoted, w.ID)
		}

		if key, err := p.archiver.Archive(ctx, snap); err != nil {
			p.logger.Warn(ctx, "snapshot archive failed",
				logger.String("worker", w.ID),
				logger.String("snapshot", snap.ID),
				logger.Error(err),
			)
		} else if key != "" {
			rep.Archived++
		}
		if ev, evErr := events.PerformanceEvaluated(snap); evErr == nil {
			evs = append(evs, ev)
		}

		p.logger.Info(ctx, "worker evaluated",
			logger.String("worker", w.ID),
			logger.Float64("composite", snap.Composite),
			logger.String("tier", string(snap.Tier)),
			logger.String("previous_tier", string(current)),
			logger.Int("sample_size", snap.SampleSize),
		)
	}
	return nil
}
