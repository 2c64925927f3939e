// Package types contains common types used across the application
package types

import (
	"sort"
	"time"
)

// Entry represents a leaderboard entry
type Entry struct {
	Rank       int     `json:"rank"`
	WorkerID   string  `json:"worker_id"`
	Reputation float64 `json:"reputation"`
	Tier       string  `json:"tier"`
}

// WorkerView is the read shape of one worker's live standing.
type WorkerView struct {
	Entry
	LatestSnapshotID string    `json:"latest_snapshot_id,omitempty"`
	Composite        float64   `json:"composite"`
	SampleSize       int       `json:"sample_size"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Rank orders entries by reputation (desc) then worker id, numbers them
// from 1 and keeps at most limit. A non-positive limit keeps all.
func Rank(entries []Entry, limit int) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Reputation != out[j].Reputation {
			return out[i].Reputation > out[j].Reputation
		}
		return out[i].WorkerID < out[j].WorkerID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
