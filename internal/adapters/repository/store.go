// Package repository keeps the persisted workloop documents: the
// distribution log, the attribution log and the reputation registry.
package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/okian/workloop/internal/adapters/statestore"
	"github.com/okian/workloop/internal/domain/dedupe"
	"github.com/okian/workloop/internal/domain/model"
	"github.com/okian/workloop/internal/domain/types"
)

// Document keys.
const (
	KeyDistribution = "distribution"
	KeyAttribution  = "attribution"
	KeyReputation   = "reputation"
)

// DistributionDoc holds every assignment and the handled-digest ring. Both
// change in the same save so an item is never marked handled without its
// assignment.
type DistributionDoc struct {
	Assignments map[string]model.Assignment `json:"assignments"`
	Handled     *dedupe.Ring                `json:"handled"`
}

// AttributionDoc is the append-only verdict log.
type AttributionDoc struct {
	Results []model.AttributionResult `json:"results"`
}

// WorkerState is a worker's live standing. Reputation always equals the
// composite of LatestSnapshotID.
type WorkerState struct {
	Reputation       float64    `json:"reputation"`
	Tier             model.Tier `json:"tier"`
	LatestSnapshotID string     `json:"latest_snapshot_id,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// ReputationDoc holds live standings and snapshot history per worker.
type ReputationDoc struct {
	Workers   map[string]WorkerState                 `json:"workers"`
	Snapshots map[string][]model.PerformanceSnapshot `json:"snapshots"`
}

// Repository reads and writes the documents through a versioned store.
type Repository struct {
	store           statestore.Store
	retries         int
	ringSize        int
	snapshotHistory int
}

// New creates a Repository over store.
func New(store statestore.Store, opts ...Option) *Repository {
	r := &Repository{
		store:    store,
		retries:  statestore.DefaultRetries,
		ringSize: dedupe.DefaultRingSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) normalizeDistribution(d *DistributionDoc) {
	if d.Assignments == nil {
		d.Assignments = make(map[string]model.Assignment)
	}
	switch {
	case d.Handled == nil:
		d.Handled = dedupe.NewRing(r.ringSize)
	case d.Handled.Cap() != r.ringSize:
		d.Handled = d.Handled.Resize(r.ringSize)
	}
}

func normalizeReputation(d *ReputationDoc) {
	if d.Workers == nil {
		d.Workers = make(map[string]WorkerState)
	}
	if d.Snapshots == nil {
		d.Snapshots = make(map[string][]model.PerformanceSnapshot)
	}
}

// CommitAssignment stores a and marks item handled in one versioned save.
// A second assignment for the same item fails with ErrAlreadyAssigned.
func (r *Repository) CommitAssignment(ctx context.Context, item model.WorkItem, a model.Assignment) error {
	if a.ItemID == "" || a.WorkerID == "" || a.ItemID != item.ID {
		return fmt.Errorf("%w: item %q worker %q", ErrInvalidAssignment, a.ItemID, a.WorkerID)
	}
	digest := dedupe.Digest(item)
	_, err := statestore.UpdateJSON(ctx, r.store, KeyDistribution, r.retries, func(d *DistributionDoc) error {
		r.normalizeDistribution(d)
		if _, exists := d.Assignments[a.ItemID]; exists {
			return fmt.Errorf("%w: %s", ErrAlreadyAssigned, a.ItemID)
		}
		d.Assignments[a.ItemID] = a
		d.Handled.Add(digest)
		return nil
	})
	return err
}

// Distribution loads the distribution document.
func (r *Repository) Distribution(ctx context.Context) (DistributionDoc, error) {
	d, _, err := statestore.LoadJSON[DistributionDoc](ctx, r.store, KeyDistribution)
	if err != nil {
		return DistributionDoc{}, err
	}
	r.normalizeDistribution(&d)
	return d, nil
}

// Assignments returns every assignment ordered by item id.
func (r *Repository) Assignments(ctx context.Context) ([]model.Assignment, error) {
	d, err := r.Distribution(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Assignment, 0, len(d.Assignments))
	for _, a := range d.Assignments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

// Assignment returns the assignment of itemID.
func (r *Repository) Assignment(ctx context.Context, itemID string) (model.Assignment, error) {
	d, err := r.Distribution(ctx)
	if err != nil {
		return model.Assignment{}, err
	}
	a, ok := d.Assignments[itemID]
	if !ok {
		return model.Assignment{}, fmt.Errorf("%w: assignment %s", ErrNotFound, itemID)
	}
	return a, nil
}

// Handled exposes the persisted digest ring as a dedupe.Store.
func (r *Repository) Handled() *HandledSet {
	return &HandledSet{repo: r}
}

// HandledSet is the dedupe view of the distribution document.
type HandledSet struct {
	repo *Repository
}

var _ dedupe.Store = (*HandledSet)(nil)

// Contains implements dedupe.Store.
func (h *HandledSet) Contains(ctx context.Context, digest string) (bool, error) {
	d, err := h.repo.Distribution(ctx)
	if err != nil {
		return false, err
	}
	return d.Handled.Contains(digest), nil
}

// Add implements dedupe.Store.
func (h *HandledSet) Add(ctx context.Context, digest string) error {
	_, err := statestore.UpdateJSON(ctx, h.repo.store, KeyDistribution, h.repo.retries, func(d *DistributionDoc) error {
		h.repo.normalizeDistribution(d)
		d.Handled.Add(digest)
		return nil
	})
	return err
}

// AppendAttribution appends a verdict. Earlier verdicts for the item stay.
func (r *Repository) AppendAttribution(ctx context.Context, res model.AttributionResult) error {
	_, err := statestore.UpdateJSON(ctx, r.store, KeyAttribution, r.retries, func(d *AttributionDoc) error {
		d.Results = append(d.Results, res)
		return nil
	})
	return err
}

// Attributions returns the full verdict log in append order.
func (r *Repository) Attributions(ctx context.Context) ([]model.AttributionResult, error) {
	d, _, err := statestore.LoadJSON[AttributionDoc](ctx, r.store, KeyAttribution)
	if err != nil {
		return nil, err
	}
	return d.Results, nil
}

// Latest returns the current verdict for itemID: the newest by time, and
// the last appended among equal times.
func (r *Repository) Latest(ctx context.Context, itemID string) (model.AttributionResult, bool, error) {
	results, err := r.Attributions(ctx)
	if err != nil {
		return model.AttributionResult{}, false, err
	}
	cur, ok := LatestByItem(results)[itemID]
	return cur, ok, nil
}

// LatestByItem reduces a verdict log to the current verdict per item.
func LatestByItem(results []model.AttributionResult) map[string]model.AttributionResult {
	out := make(map[string]model.AttributionResult, len(results))
	for _, res := range results {
		if cur, ok := out[res.ItemID]; ok && res.ResolvedAt.Before(cur.ResolvedAt) {
			continue
		}
		out[res.ItemID] = res
	}
	return out
}

// RecordSnapshot appends snap and sets the worker's live reputation and
// tier from it in one save.
func (r *Repository) RecordSnapshot(ctx context.Context, snap model.PerformanceSnapshot) error {
	_, err := statestore.UpdateJSON(ctx, r.store, KeyReputation, r.retries, func(d *ReputationDoc) error {
		normalizeReputation(d)
		history := append(d.Snapshots[snap.WorkerID], snap)
		if r.snapshotHistory > 0 && len(history) > r.snapshotHistory {
			history = history[len(history)-r.snapshotHistory:]
		}
		d.Snapshots[snap.WorkerID] = history
		d.Workers[snap.WorkerID] = WorkerState{
			Reputation:       snap.Composite,
			Tier:             snap.Tier,
			LatestSnapshotID: snap.ID,
			UpdatedAt:        snap.CreatedAt,
		}
		return nil
	})
	return err
}

// Reputation loads the reputation document.
func (r *Repository) Reputation(ctx context.Context) (ReputationDoc, error) {
	d, _, err := statestore.LoadJSON[ReputationDoc](ctx, r.store, KeyReputation)
	if err != nil {
		return ReputationDoc{}, err
	}
	normalizeReputation(&d)
	return d, nil
}

// Worker returns the live standing of workerID.
func (r *Repository) Worker(ctx context.Context, workerID string) (WorkerState, error) {
	d, err := r.Reputation(ctx)
	if err != nil {
		return WorkerState{}, err
	}
	w, ok := d.Workers[workerID]
	if !ok {
		return WorkerState{}, fmt.Errorf("%w: worker %s", ErrNotFound, workerID)
	}
	return w, nil
}

// Snapshots returns the snapshot history of workerID, oldest first.
func (r *Repository) Snapshots(ctx context.Context, workerID string) ([]model.PerformanceSnapshot, error) {
	d, err := r.Reputation(ctx)
	if err != nil {
		return nil, err
	}
	return d.Snapshots[workerID], nil
}

// Leaderboard ranks workers by live reputation. A zero limit returns all.
func (r *Repository) Leaderboard(ctx context.Context, limit int) ([]types.Entry, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	d, err := r.Reputation(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]types.Entry, 0, len(d.Workers))
	for id, w := range d.Workers {
		entries = append(entries, types.Entry{WorkerID: id, Reputation: w.Reputation, Tier: string(w.Tier)})
	}
	return types.Rank(entries, limit), nil
}
