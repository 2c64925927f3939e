// Package affinity scores how well a worker fits a work item.
package affinity

import (
	"strings"

	"github.com/okian/workloop/internal/domain/model"
)

// Default coefficients.
const (
	DefaultPatternWeight         = 1.0
	DefaultOverlapFloor          = 0.1
	DefaultLocalityBonus         = 0.5
	DefaultReputationCoefficient = 1.0
)

// Scorer computes affinity as overlap + locality + reputation. It holds
// only coefficients; worker state is passed in on every call.
type Scorer struct {
	patternWeight         float64
	overlapFloor          float64
	localityBonus         float64
	reputationCoefficient float64
}

// New creates a Scorer with default coefficients.
func New(opts ...Option) *Scorer {
	s := &Scorer{
		patternWeight:         DefaultPatternWeight,
		overlapFloor:          DefaultOverlapFloor,
		localityBonus:         DefaultLocalityBonus,
		reputationCoefficient: DefaultReputationCoefficient,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score returns the affinity of worker for item, always >= 0.
func (s *Scorer) Score(item model.WorkItem, worker model.WorkerProfile) float64 {
	return s.overlap(item, worker) + s.locality(item, worker) + s.reputation(worker)
}

// Vector scores item against every worker.
func (s *Scorer) Vector(item model.WorkItem, workers []model.WorkerProfile) map[string]float64 {
	out := make(map[string]float64, len(workers))
	for _, w := range workers {
		out[w.ID] = s.Score(item, w)
	}
	return out
}

func (s *Scorer) overlap(item model.WorkItem, worker model.WorkerProfile) float64 {
	caps := make(map[string]float64, len(worker.Capabilities))
	for tag, weight := range worker.Capabilities {
		caps[strings.ToLower(strings.TrimSpace(tag))] = weight
	}

	var sum float64
	matched := false
	seen := make(map[string]struct{}, len(item.Patterns))
	for _, p := range item.Patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		if weight, ok := caps[p]; ok {
			matched = true
			sum += weight
		}
	}
	if !matched {
		return s.overlapFloor
	}
	return sum * s.patternWeight
}

func (s *Scorer) locality(item model.WorkItem, worker model.WorkerProfile) float64 {
	a := strings.TrimSpace(item.Context)
	b := strings.TrimSpace(worker.Context)
	if a == "" || b == "" || !strings.EqualFold(a, b) {
		return 0
	}
	return s.localityBonus
}

func (s *Scorer) reputation(worker model.WorkerProfile) float64 {
	rep := worker.Reputation
	if rep < 0 {
		rep = 0
	}
	return s.reputationCoefficient * rep
}
