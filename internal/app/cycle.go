package service

import (
	"context"
	"time"

	"github.com/okian/workloop/pkg/metrics"
)

// CycleReport bundles the three runs of one cycle.
type CycleReport struct {
	Distribution DistributionReport `json:"distribution"`
	Attribution  AttributionReport  `json:"attribution"`
	Evaluation   EvaluationReport   `json:"evaluation"`
}

// RunCycle runs distribution, attribution and evaluation in that order and
// stops at the first failing run.
func (p *Pipeline) RunCycle(ctx context.Context) (CycleReport, error) {
	start := time.Now()
	var rep CycleReport
	err := p.cycle(ctx, &rep)
	metrics.RecordCycle("full", float64(time.Since(start).Milliseconds()), err)
	return rep, err
}

func (p *Pipeline) cycle(ctx context.Context, rep *CycleReport) error {
	var err error
	if rep.Distribution, err = p.RunDistribution(ctx); err != nil {
		return err
	}
	if rep.Attribution, err = p.RunAttribution(ctx); err != nil {
		return err
	}
	rep.Evaluation, err = p.RunEvaluation(ctx)
	return err
}
