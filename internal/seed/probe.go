package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/okian/workloop/internal/adapters/worker"
	"github.com/okian/workloop/internal/domain/types"
	"github.com/okian/workloop/pkg/logger"
)

// ErrInconsistent reports a read model that contradicts itself.
var ErrInconsistent = errors.New("inconsistent read model")

// Report is what a probe observed.
type Report struct {
	Healthy     bool
	Stats       map[string]any
	Leaderboard []types.Entry
	Checked     int
	Duration    time.Duration
}

type prober struct {
	base   string
	client *http.Client
}

// Probe checks health, reads stats and the leaderboard, and cross-checks
// every leaderboard entry against its worker view.
func Probe(ctx context.Context, cfg Config) (Report, error) {
	start := time.Now()
	p := &prober{base: cfg.BaseURL, client: &http.Client{Timeout: cfg.Timeout}}
	var rep Report

	if err := p.get(ctx, "/healthz", nil, nil); err != nil {
		return rep, fmt.Errorf("health check: %w", err)
	}
	rep.Healthy = true

	if err := p.get(ctx, "/stats", nil, &rep.Stats); err != nil {
		return rep, fmt.Errorf("stats: %w", err)
	}

	q := url.Values{"limit": {strconv.Itoa(cfg.TopN)}}
	if err := p.get(ctx, "/leaderboard", q, &rep.Leaderboard); err != nil {
		return rep, fmt.Errorf("leaderboard: %w", err)
	}
	if err := verifyLeaderboard(rep.Leaderboard); err != nil {
		return rep, err
	}

	pool := worker.NewPool(cfg.Parallel, func(ctx context.Context, e types.Entry) error {
		var view types.WorkerView
		if err := p.get(ctx, "/workers/"+url.PathEscape(e.WorkerID), nil, &view); err != nil {
			return fmt.Errorf("worker %s: %w", e.WorkerID, err)
		}
		if view.Rank != e.Rank || view.Reputation != e.Reputation || view.Tier != e.Tier {
			return fmt.Errorf("%w: worker %s view rank %d rep %.3f tier %s, leaderboard rank %d rep %.3f tier %s",
				ErrInconsistent, e.WorkerID, view.Rank, view.Reputation, view.Tier, e.Rank, e.Reputation, e.Tier)
		}
		return nil
	}, worker.WithName("probe"))

	errs, err := pool.Process(ctx, rep.Leaderboard)
	if err != nil {
		return rep, err
	}
	if err := errors.Join(errs...); err != nil {
		return rep, err
	}
	rep.Checked = len(rep.Leaderboard)
	rep.Duration = time.Since(start)

	cfg.log().Info(ctx, "probe passed",
		logger.String("url", cfg.BaseURL),
		logger.Int("entries", rep.Checked),
		logger.Duration("duration", rep.Duration),
	)
	return rep, nil
}

// verifyLeaderboard checks ranks run 1..n and reputation never increases.
func verifyLeaderboard(entries []types.Entry) error {
	for i, e := range entries {
		if e.Rank != i+1 {
			return fmt.Errorf("%w: entry %d has rank %d", ErrInconsistent, i, e.Rank)
		}
		if i > 0 && e.Reputation > entries[i-1].Reputation {
			return fmt.Errorf("%w: %s ranks below a lower reputation", ErrInconsistent, e.WorkerID)
		}
	}
	return nil
}

func (p *prober) get(ctx context.Context, path string, q url.Values, out any) error {
	u := p.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
