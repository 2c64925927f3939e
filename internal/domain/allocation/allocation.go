// Package allocation assigns scored work items to workers while spreading
// load across the roster.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/okian/workloop/internal/domain/model"
	"github.com/okian/workloop/pkg/logger"
	"github.com/okian/workloop/pkg/metrics"
)

// Defaults.
const (
	DefaultDiversityWeight = 0.7
	DefaultMaxPenalty      = 0.9
)

// Unassigned reasons.
const (
	ReasonNoWorkers       = "no scored workers"
	ReasonAlreadyAssigned = "already assigned"
)

// Candidate is a work item with its full score vector keyed by worker id.
type Candidate struct {
	Item   model.WorkItem
	Scores map[string]float64
}

// Committer persists one assignment before the next item is allocated.
type Committer interface {
	Commit(ctx context.Context, item model.WorkItem, a model.Assignment) error
}

// CommitterFunc adapts a function to Committer.
type CommitterFunc func(ctx context.Context, item model.WorkItem, a model.Assignment) error

// Commit implements Committer.
func (f CommitterFunc) Commit(ctx context.Context, item model.WorkItem, a model.Assignment) error {
	return f(ctx, item, a)
}

// Skipped is an item the allocator did not assign, with the reason.
type Skipped struct {
	Item   model.WorkItem
	Reason string
}

// Result is the outcome of one batch.
type Result struct {
	Assignments []model.Assignment
	Unassigned  []Skipped
	// Counts holds the per-cycle assignment count of every worker seen.
	Counts map[string]int
}

// Allocator picks one worker per item with a compounding diversity penalty.
type Allocator struct {
	diversityWeight float64
	maxPenalty      float64
	logger          logger.Logger
	now             func() time.Time
}

// New creates an Allocator with default weights.
func New(opts ...Option) *Allocator {
	a := &Allocator{
		diversityWeight: DefaultDiversityWeight,
		maxPenalty:      DefaultMaxPenalty,
		logger:          logger.Nop(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Penalty returns the diversity penalty for a worker that already won count items.
func (a *Allocator) Penalty(count int) float64 {
	return math.Min(float64(count)*a.diversityWeight, a.maxPenalty)
}

// Allocate assigns the batch in ascending item id order. Counts start at
// zero for every worker. Each assignment goes through commit before the next
// item; a commit failure stops the batch and returns what was done so far.
func (a *Allocator) Allocate(ctx context.Context, cycleID string, batch []Candidate, commit Committer) (Result, error) {
	res := Result{Counts: make(map[string]int)}
	if len(batch) == 0 {
		return res, nil
	}

	ordered := make([]Candidate, len(batch))
	copy(ordered, batch)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Item.ID < ordered[j].Item.ID })

	for _, c := range ordered {
		for id := range c.Scores {
			if _, ok := res.Counts[id]; !ok {
				res.Counts[id] = 0
			}
		}
	}

	for _, c := range ordered {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		workerID, adjusted, ok := a.pick(c.Scores, res.Counts)
		if !ok {
			res.Unassigned = append(res.Unassigned, Skipped{Item: c.Item, Reason: ReasonNoWorkers})
			metrics.RecordItemUnassigned()
			a.logger.Warn(ctx, "item left unassigned",
				logger.String("cycle", cycleID),
				logger.String("item", c.Item.ID),
				logger.String("reason", ReasonNoWorkers),
			)
			continue
		}

		penalty := a.Penalty(res.Counts[workerID])
		asg := model.Assignment{
			ItemID:     c.Item.ID,
			WorkerID:   workerID,
			Score:      adjusted,
			CycleID:    cycleID,
			AssignedAt: a.now().UTC(),
		}
		if err := commit.Commit(ctx, c.Item, asg); err != nil {
			if errors.Is(err, ErrAlreadyCommitted) {
				res.Unassigned = append(res.Unassigned, Skipped{Item: c.Item, Reason: ReasonAlreadyAssigned})
				a.logger.Info(ctx, "item already assigned, skipping",
					logger.String("cycle", cycleID),
					logger.String("item", c.Item.ID),
				)
				continue
			}
			return res, fmt.Errorf("%w: %s: %w", ErrCommit, c.Item.ID, err)
		}

		res.Counts[workerID]++
		res.Assignments = append(res.Assignments, asg)
		metrics.RecordItemAssigned(workerID, penalty)
		a.logger.Info(ctx, "item assigned",
			logger.String("cycle", cycleID),
			logger.String("item", c.Item.ID),
			logger.String("worker", workerID),
			logger.Float64("raw_score", c.Scores[workerID]),
			logger.Float64("penalty", penalty),
			logger.Float64("adjusted_score", adjusted),
		)
	}
	return res, nil
}

// pick returns the worker with the highest adjusted score. Ties go to the
// lowest count, then the lowest worker id.
func (a *Allocator) pick(scores map[string]float64, counts map[string]int) (string, float64, bool) {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return "", 0, false
	}
	sort.Strings(ids)

	best := ""
	bestScore := math.Inf(-1)
	for _, id := range ids {
		adj := scores[id] * (1 - a.Penalty(counts[id]))
		switch {
		case adj > bestScore:
		case adj == bestScore && counts[id] < counts[best]:
		default:
			continue
		}
		best, bestScore = id, adj
	}
	return best, bestScore, true
}
