// Package worker runs batches of independent jobs on a bounded set of
// goroutines.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/okian/workloop/pkg/logger"
)

// Handler processes one job. It must not panic on a cancelled context.
type Handler[J, R any] func(ctx context.Context, job J) R

// Pool runs a Handler over batches with a fixed number of workers.
type Pool[J, R any] struct {
	size   int
	handle Handler[J, R]
	name   string
	logger logger.Logger
}

// NewPool creates a pool of size workers. Sizes below one run serially.
func NewPool[J, R any](size int, handle Handler[J, R], opts ...Option) *Pool[J, R] {
	s := settings{name: "worker", logger: logger.Nop()}
	for _, opt := range opts {
		opt(&s)
	}
	if size < 1 {
		size = 1
	}
	return &Pool[J, R]{size: size, handle: handle, name: s.name, logger: s.logger}
}

// Size returns the number of workers.
func (p *Pool[J, R]) Size() int { return p.size }

// Process hands every job to a worker and returns results in job order.
// Once ctx is cancelled no further job is started; their results stay at
// the zero value and ctx.Err() is returned.
func (p *Pool[J, R]) Process(ctx context.Context, jobs []J) ([]R, error) {
	results := make([]R, len(jobs))
	if len(jobs) == 0 {
		return results, ctx.Err()
	}

	start := time.Now()
	next := make(chan int)
	var wg sync.WaitGroup
	workers := min(p.size, len(jobs))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				results[i] = p.handle(ctx, jobs[i])
			}
		}()
	}

	dispatched := 0
feed:
	for i := range jobs {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		case next <- i:
			dispatched++
		}
	}
	close(next)
	wg.Wait()

	p.logger.Debug(ctx, "batch processed",
		logger.String("pool", p.name),
		logger.Int("workers", workers),
		logger.Int("jobs", len(jobs)),
		logger.Int("dispatched", dispatched),
		logger.Duration("duration", time.Since(start)),
	)
	return results, ctx.Err()
}
