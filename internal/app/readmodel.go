package service

import (
	"context"
	"time"

	"github.com/okian/workloop/internal/domain/types"
)

type runStats struct {
	startedAt    time.Time
	distribution *DistributionReport
	attribution  *AttributionReport
	evaluation   *EvaluationReport
	lastError    string
	lastErrorAt  time.Time
	runs         int
}

func (p *Pipeline) recordRun(err error) {
	p.stats.runs++
	if err != nil {
		p.stats.lastError = err.Error()
		p.stats.lastErrorAt = time.Now().UTC()
	}
}

func (p *Pipeline) recordDistribution(r DistributionReport, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.distribution = &r
	p.recordRun(err)
}

func (p *Pipeline) recordAttribution(r AttributionReport, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.attribution = &r
	p.recordRun(err)
}

func (p *Pipeline) recordEvaluation(r EvaluationReport, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.evaluation = &r
	p.recordRun(err)
}

// GetStats returns counters from the most recent runs.
func (p *Pipeline) GetStats() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := map[string]any{
		"started_at":  p.stats.startedAt,
		"runs":        p.stats.runs,
		"concurrency": p.concurrency,
		"window":      p.window.String(),
	}
	if d := p.stats.distribution; d != nil {
		stats["distribution"] = map[string]any{
			"cycle_id":    d.CycleID,
			"considered":  d.Considered,
			"rejected":    d.Rejected,
			"duplicates":  d.Duplicates,
			"assigned":    len(d.Assignments),
			"unassigned":  len(d.Unassigned),
			"duration_ms": d.Duration.Milliseconds(),
		}
	}
	if a := p.stats.attribution; a != nil {
		stats["attribution"] = map[string]any{
			"pending":     a.Pending,
			"resolved":    len(a.Resolved),
			"attributed":  a.Attributed,
			"deferred":    len(a.Deferred),
			"unlinked":    len(a.Unlinked),
			"failed":      len(a.Failed),
			"duration_ms": a.Duration.Milliseconds(),
		}
	}
	if e := p.stats.evaluation; e != nil {
		stats["evaluation"] = map[string]any{
			"window_start": e.WindowStart,
			"window_end":   e.WindowEnd,
			"snapshots":    len(e.Snapshots),
			"promoted":     len(e.Promoted),
			"demoted":      len(e.Demoted),
			"archived":     e.Archived,
			"duration_ms":  e.Duration.Milliseconds(),
		}
	}
	if p.stats.lastError != "" {
		stats["last_error"] = p.stats.lastError
		stats["last_error_at"] = p.stats.lastErrorAt
	}
	return stats
}

// Leaderboard returns workers ranked by live reputation. Zero returns all.
func (p *Pipeline) Leaderboard(ctx context.Context, limit int) ([]types.Entry, error) {
	return p.repo.Leaderboard(ctx, limit)
}

// Worker returns the live standing of workerID with its rank and latest
// snapshot figures.
func (p *Pipeline) Worker(ctx context.Context, workerID string) (types.WorkerView, error) {
	st, err := p.repo.Worker(ctx, workerID)
	if err != nil {
		return types.WorkerView{}, err
	}
	view := types.WorkerView{
		Entry: types.Entry{
			WorkerID:   workerID,
			Reputation: st.Reputation,
			Tier:       string(st.Tier),
		},
		LatestSnapshotID: st.LatestSnapshotID,
		Composite:        st.Reputation,
		UpdatedAt:        st.UpdatedAt,
	}

	board, err := p.repo.Leaderboard(ctx, 0)
	if err != nil {
		return types.WorkerView{}, err
	}
	for _, e := range board {
		if e.WorkerID == workerID {
			view.Rank = e.Rank
			break
		}
	}

	snaps, err := p.repo.Snapshots(ctx, workerID)
	if err != nil {
		return types.WorkerView{}, err
	}
	for i := len(snaps) - 1; i >= 0; i-- {
		if snaps[i].ID == st.LatestSnapshotID {
			view.Composite = snaps[i].Composite
			view.SampleSize = snaps[i].SampleSize
			break
		}
	}
	return view, nil
}
