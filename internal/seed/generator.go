package seed

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/okian/workloop/internal/domain/model"
)

const randomFloatDivisor = 1000000

func randomInt(n int) int {
	if n <= 1 {
		return 0
	}
	v, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(v.Int64())
}

// randomFloat returns a value in [0,1) from crypto/rand.
func randomFloat() float64 {
	return float64(randomInt(randomFloatDivisor)) / float64(randomFloatDivisor)
}

// Workers builds n profiles cycling through the role table. Every worker
// is strong in its role's patterns and weak in one random other pattern.
func Workers(n int) []model.WorkerProfile {
	out := make([]model.WorkerProfile, 0, n)
	for i := 0; i < n; i++ {
		role := roles[i%len(roles)]
		caps := make(map[string]float64, len(role.patterns)+1)
		for _, p := range role.patterns {
			caps[p] = 0.6 + 0.4*randomFloat()
		}
		other := roles[randomInt(len(roles))].patterns[0]
		if _, ok := caps[other]; !ok {
			caps[other] = 0.1 + 0.3*randomFloat()
		}

		w := model.WorkerProfile{
			ID:           fmt.Sprintf("%s-%d", role.name, i/len(roles)+1),
			Capabilities: caps,
			Context:      contexts[randomInt(len(contexts))],
			Tier:         model.TierNew,
		}
		if randomInt(2) == 0 {
			reviews := randomInt(15)
			w.Signals.ReviewActions = &reviews
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Items builds n pending items in repo with one to three patterns each.
func Items(repo string, n int, now time.Time) []model.WorkItem {
	out := make([]model.WorkItem, 0, n)
	for i := 1; i <= n; i++ {
		role := roles[randomInt(len(roles))]
		patterns := []string{role.patterns[randomInt(len(role.patterns))]}
		if extra := randomInt(3); extra > 0 {
			for _, p := range roles[randomInt(len(roles))].patterns[:extra] {
				if p != patterns[0] {
					patterns = append(patterns, p)
				}
			}
		}
		out = append(out, model.WorkItem{
			ID:        fmt.Sprintf("%s#%d", repo, i),
			SourceRef: fmt.Sprintf("seed-%d", i),
			Title:     fmt.Sprintf("Synthetic %s task %d", patterns[0], i),
			Patterns:  patterns,
			Context:   contexts[randomInt(len(contexts))],
			CreatedAt: now.UTC(),
		})
	}
	return out
}
