// Package scoring rolls validated activity up into a composite reputation
// score and drives the worker tier machine.
package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/okian/workloop/internal/domain/model"
	"github.com/okian/workloop/pkg/metrics"
)

// Default scoring configuration constants.
const (
	NeutralScore                  = 0.5
	DefaultDistinguishedThreshold = 0.85
	DefaultMinSampleSize          = 5
	DefaultReviewTarget           = 10
	weightTolerance               = 1e-9
)

// Weights are the composite weights of the five components. They sum to 1.
type Weights struct {
	Quality       float64
	Resolution    float64
	Submission    float64
	Collaboration float64
	Innovation    float64
}

// DefaultWeights returns the default weight table.
func DefaultWeights() Weights {
	return Weights{Quality: 0.30, Resolution: 0.20, Submission: 0.20, Collaboration: 0.15, Innovation: 0.15}
}

// Validate rejects negative weights and sums off 1.0 by more than 1e-9.
func (w Weights) Validate() error {
	for _, v := range []float64{w.Quality, w.Resolution, w.Submission, w.Collaboration, w.Innovation} {
		if v < 0 {
			return fmt.Errorf("%w: negative weight", ErrInvalidWeights)
		}
	}
	if sum := w.Quality + w.Resolution + w.Submission + w.Collaboration + w.Innovation; math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%w: sum %v", ErrInvalidWeights, sum)
	}
	return nil
}

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithWeights sets the composite weights. Invalid tables are ignored;
// config validation rejects them before they get here.
func WithWeights(w Weights) Option {
	return func(s *Scorer) {
		if w.Validate() == nil {
			s.weights = w
		}
	}
}

// WithDistinguishedThreshold sets the composite needed for the distinguished tier.
func WithDistinguishedThreshold(t float64) Option {
	return func(s *Scorer) {
		if t > 0 && t <= 1 {
			s.threshold = t
		}
	}
}

// WithMinSampleSize sets the attempts needed before promotion to distinguished.
func WithMinSampleSize(n int) Option {
	return func(s *Scorer) {
		if n >= 0 {
			s.minSample = n
		}
	}
}

// WithReviewTarget sets the review count that saturates collaboration.
func WithReviewTarget(n int) Option {
	return func(s *Scorer) {
		if n > 0 {
			s.reviewTarget = n
		}
	}
}

// WithClock overrides the snapshot timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) {
		if now != nil {
			s.now = now
		}
	}
}

// Activity is what a worker did inside an evaluation window.
type Activity struct {
	// Assigned counts assignments made in the window.
	Assigned int
	// Resolved counts those assignments that now have a current verdict.
	Resolved int
	// Attempted counts current verdicts reached in the window.
	Attempted int
	// Attributed counts attempted verdicts that credit the worker.
	Attributed int
	// Explicit counts attributed verdicts backed by an explicit tag.
	Explicit int
	// ReviewActions is nil when reviews are not tracked.
	ReviewActions *int
	// Innovation is an opaque external signal in [0,1]; nil when absent.
	Innovation *float64
}

// Scorer evaluates activity into snapshots.
type Scorer struct {
	weights      Weights
	threshold    float64
	minSample    int
	reviewTarget int
	now          func() time.Time
}

// NewScorer creates a Scorer with the default weight table.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{
		weights:      DefaultWeights(),
		threshold:    DefaultDistinguishedThreshold,
		minSample:    DefaultMinSampleSize,
		reviewTarget: DefaultReviewTarget,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Aggregate counts workerID's activity in [start, end]. Only the newest
// result per item counts.
func Aggregate(workerID string, start, end time.Time, assignments []model.Assignment, results []model.AttributionResult, signals model.Signals) Activity {
	latest := make(map[string]model.AttributionResult, len(results))
	for _, r := range results {
		if r.ResolvedAt.After(end) {
			continue
		}
		if cur, ok := latest[r.ItemID]; !ok || r.ResolvedAt.After(cur.ResolvedAt) {
			latest[r.ItemID] = r
		}
	}

	act := Activity{ReviewActions: signals.ReviewActions, Innovation: signals.Innovation}
	for _, a := range assignments {
		if a.WorkerID != workerID || !inWindow(a.AssignedAt, start, end) {
			continue
		}
		act.Assigned++
		if _, ok := latest[a.ItemID]; ok {
			act.Resolved++
		}
	}
	for _, r := range latest {
		if r.ExpectedWorker != workerID || !inWindow(r.ResolvedAt, start, end) {
			continue
		}
		act.Attempted++
		if r.Attributed {
			act.Attributed++
			if r.Strength == model.StrengthExplicit {
				act.Explicit++
			}
		}
	}
	return act
}

func inWindow(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

// Components turns activity into five bounded ratios.
func (s *Scorer) Components(a Activity) model.Components {
	c := model.Components{
		Quality:       ratio(a.Explicit, a.Attributed),
		Resolution:    ratio(a.Resolved, a.Assigned),
		Submission:    ratio(a.Attributed, a.Attempted),
		Collaboration: NeutralScore,
		Innovation:    NeutralScore,
	}
	if a.ReviewActions != nil {
		c.Collaboration = math.Min(1, float64(*a.ReviewActions)/float64(s.reviewTarget))
		c.Collaboration = clamp(c.Collaboration)
	}
	if a.Innovation != nil {
		c.Innovation = clamp(*a.Innovation)
	}
	return c
}

// Composite is the weighted sum of components, clamped to [0,1].
func (s *Scorer) Composite(c model.Components) float64 {
	w := s.weights
	return clamp(w.Quality*c.Quality +
		w.Resolution*c.Resolution +
		w.Submission*c.Submission +
		w.Collaboration*c.Collaboration +
		w.Innovation*c.Innovation)
}

// NextTier applies the tier machine. Promotion is monotonic up to active;
// only distinguished can regress, and never below active.
func (s *Scorer) NextTier(current model.Tier, composite float64, attempted int) model.Tier {
	tier := current
	if tier == "" {
		tier = model.TierNew
	}
	if tier == model.TierNew && attempted > 0 {
		tier = model.TierActive
	}
	switch tier {
	case model.TierActive:
		if composite >= s.threshold && attempted >= s.minSample {
			tier = model.TierDistinguished
		}
	case model.TierDistinguished:
		if composite < s.threshold {
			tier = model.TierActive
		}
	}
	return tier
}

// Evaluate produces a new snapshot for workerID.
func (s *Scorer) Evaluate(workerID string, current model.Tier, a Activity, start, end time.Time) model.PerformanceSnapshot {
	comps := s.Components(a)
	composite := s.Composite(comps)
	tier := s.NextTier(current, composite, a.Attempted)

	metrics.RecordCompositeScore(composite)
	from := current
	if from == "" {
		from = model.TierNew
	}
	if from != tier {
		metrics.RecordTierTransition(string(from), string(tier))
	}

	return model.PerformanceSnapshot{
		ID:          uuid.NewString(),
		WorkerID:    workerID,
		Components:  comps,
		Composite:   composite,
		Tier:        tier,
		WindowStart: start,
		WindowEnd:   end,
		SampleSize:  a.Attempted,
		CreatedAt:   s.now().UTC(),
	}
}

func ratio(num, den int) float64 {
	if den <= 0 {
		return NeutralScore
	}
	return clamp(float64(num) / float64(den))
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
