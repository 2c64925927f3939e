package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/workloop/internal/adapters/events"
	"github.com/okian/workloop/internal/adapters/repository"
	"github.com/okian/workloop/internal/domain/allocation"
	"github.com/okian/workloop/internal/domain/model"
	"github.com/okian/workloop/internal/domain/scoring"
	"github.com/okian/workloop/pkg/logger"
	"github.com/okian/workloop/pkg/metrics"
)

// DistributionReport summarizes one distribution run.
type DistributionReport struct {
	CycleID     string               `json:"cycle_id"`
	Considered  int                  `json:"considered"`
	Rejected    int                  `json:"rejected"`
	Duplicates  int                  `json:"duplicates"`
	Assignments []model.Assignment   `json:"assignments"`
	Unassigned  []allocation.Skipped `json:"-"`
	Counts      map[string]int       `json:"counts"`
	Duration    time.Duration        `json:"duration"`
}

// RunDistribution assigns every new pending item to one worker.
func (p *Pipeline) RunDistribution(ctx context.Context) (DistributionReport, error) {
	start := time.Now()
	rep := DistributionReport{CycleID: uuid.NewString()}
	err := p.distribute(ctx, &rep)
	rep.Duration = time.Since(start)
	metrics.RecordCycle("distribution", float64(rep.Duration.Milliseconds()), err)
	p.recordDistribution(rep, err)
	return rep, err
}

func (p *Pipeline) distribute(ctx context.Context, rep *DistributionReport) error {
	log := p.logger.With(logger.String("cycle", rep.CycleID))

	workers, err := p.workers(ctx)
	if err != nil {
		return err
	}

	pending, err := p.source.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSource, err)
	}
	rep.Considered = len(pending)
	metrics.RecordItemsConsidered(len(pending))

	batch := make([]allocation.Candidate, 0, len(pending))
	for _, item := range pending {
		if err := item.Validate(); err != nil {
			rep.Rejected++
			metrics.RecordRecordRejected("work_item")
			log.Warn(ctx, "skipping invalid work item", logger.String("item", item.ID), logger.Error(err))
			continue
		}
		if p.deduper.IsDuplicate(ctx, item) {
			rep.Duplicates++
			metrics.RecordItemDuplicate()
			log.Info(ctx, "item already handled, skipping", logger.String("item", item.ID), logger.String("source_ref", item.SourceRef))
			p.markSourceHandled(ctx, item.ID)
			continue
		}
		batch = append(batch, allocation.Candidate{Item: item, Scores: p.affinity.Vector(item, workers)})
	}

	res, err := p.allocator.Allocate(ctx, rep.CycleID, batch, allocation.CommitterFunc(p.commit))
	rep.Assignments = res.Assignments
	rep.Unassigned = res.Unassigned
	rep.Counts = res.Counts

	evs := make([]events.Event, 0, len(res.Assignments))
	for _, a := range res.Assignments {
		p.markSourceHandled(ctx, a.ItemID)
		if ev, evErr := events.AssignmentCreated(a); evErr == nil {
			evs = append(evs, ev)
		}
	}
	for _, s := range res.Unassigned {
		if s.Reason == allocation.ReasonAlreadyAssigned {
			p.markSourceHandled(ctx, s.Item.ID)
		}
	}
	p.publish(ctx, evs)

	if err != nil {
		if errors.Is(err, allocation.ErrCommit) {
			return fmt.Errorf("%w: %w", ErrState, err)
		}
		return err
	}

	log.Info(ctx, "distribution finished",
		logger.Int("considered", rep.Considered),
		logger.Int("rejected", rep.Rejected),
		logger.Int("duplicates", rep.Duplicates),
		logger.Int("assigned", len(rep.Assignments)),
		logger.Int("unassigned", len(rep.Unassigned)),
	)
	return nil
}

// commit persists one assignment together with its handled digest.
func (p *Pipeline) commit(ctx context.Context, item model.WorkItem, a model.Assignment) error {
	err := p.repo.CommitAssignment(ctx, item, a)
	if errors.Is(err, repository.ErrAlreadyAssigned) {
		return fmt.Errorf("%w: %w", allocation.ErrAlreadyCommitted, err)
	}
	return err
}

// markSourceHandled tells the source an item is done. The digest is already
// persisted, so a failure here only means the item is filtered again later.
func (p *Pipeline) markSourceHandled(ctx context.Context, itemID string) {
	if err := p.source.MarkHandled(ctx, itemID); err != nil {
		p.logger.Warn(ctx, "source did not accept handled flag",
			logger.String("item", itemID),
			logger.Error(err),
		)
	}
}

// workers loads the roster fresh and overlays live reputation and tier.
// Workers without a snapshot yet stand at the neutral composite, the score
// evaluation gives a worker with no data. Assignment counts start at zero
// for every run.
func (p *Pipeline) workers(ctx context.Context) ([]model.WorkerProfile, error) {
	profiles, err := p.roster.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRoster, err)
	}
	doc, err := p.repo.Reputation(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrState, err)
	}
	out := make([]model.WorkerProfile, 0, len(profiles))
	for _, w := range profiles {
		if st, ok := doc.Workers[w.ID]; ok {
			w.Reputation = st.Reputation
			w.Tier = st.Tier
		} else {
			w.Reputation = scoring.NeutralScore
		}
		w.AssignmentCount = 0
		if err := w.Validate(); err != nil {
			metrics.RecordRecordRejected("worker")
			p.logger.Warn(ctx, "skipping invalid worker", logger.String("worker", w.ID), logger.Error(err))
			continue
		}
		out = append(out, w)
	}
	return out, nil
}
