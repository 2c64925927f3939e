// Package attribution decides whether the submission that closed a work item
// was produced by the worker it was assigned to.
package attribution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/workloop/internal/domain/model"
	"github.com/okian/workloop/pkg/logger"
	"github.com/okian/workloop/pkg/metrics"
)

const defaultRetryBackoff = 200 * time.Millisecond

// Tracker is the external submission tracker.
type Tracker interface {
	// FindClosingSubmission returns the submission that closed itemID, or nil
	// when the tracker knows of none.
	FindClosingSubmission(ctx context.Context, itemID string) (*model.SubmissionRef, error)
	// SearchSubmissionsReferencing returns submissions whose text references itemID.
	SearchSubmissionsReferencing(ctx context.Context, itemID string) ([]model.SubmissionRef, error)
	// GetSubmissionText returns the text surfaces of ref.
	GetSubmissionText(ctx context.Context, ref model.SubmissionRef) (model.SubmissionText, error)
}

// Outcome classifies a resolution attempt.
type Outcome string

const (
	// OutcomeResolved carries a result to persist.
	OutcomeResolved Outcome = "resolved"
	// OutcomeDeferred means the tracker kept failing; retry next cycle.
	OutcomeDeferred Outcome = "deferred"
	// OutcomeUnlinked means no submission was found through any channel.
	// The item is retried next cycle and never defaulted to zero credit.
	OutcomeUnlinked Outcome = "unlinked"
	// OutcomeFailed means the tracker rejected the request with an error a
	// retry cannot fix, such as bad credentials or a malformed item id.
	OutcomeFailed Outcome = "failed"
)

// Verdict is the result of Resolve. Result is only set when resolved.
type Verdict struct {
	Outcome  Outcome
	Result   model.AttributionResult
	Evidence *model.EvidenceBundle
	Err      error
}

// Resolver gathers evidence for a closed item and grades it.
type Resolver struct {
	tracker   Tracker
	strict    bool
	known     map[string]struct{}
	backoff   time.Duration
	transient func(error) bool
	logger    logger.Logger
	now       func() time.Time
}

// New creates a Resolver in strict mode.
func New(tracker Tracker, opts ...Option) *Resolver {
	r := &Resolver{
		tracker:   tracker,
		strict:    true,
		backoff:   defaultRetryBackoff,
		transient: func(error) bool { return true },
		logger:    logger.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve attributes the submission that closed item against assignment.
// Expected conditions are reported through the Verdict outcome; the error is
// reserved for a cancelled context.
func (r *Resolver) Resolve(ctx context.Context, item model.WorkItem, asg model.Assignment) (Verdict, error) {
	ref, channel, err := r.locate(ctx, item.ID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Verdict{}, ctxErr
		}
		return r.trackerFailure(ctx, "lookup", asg, err), nil
	}
	if ref == nil {
		metrics.RecordLinkageFailure()
		metrics.RecordAttributionDeferred("unlinked")
		r.logger.Error(ctx, "no closing submission found through any channel",
			logger.String("item", item.ID),
			logger.String("expected_worker", asg.WorkerID),
		)
		return Verdict{Outcome: OutcomeUnlinked}, nil
	}

	var text model.SubmissionText
	err = r.retry(ctx, func() error {
		var err error
		text, err = r.tracker.GetSubmissionText(ctx, *ref)
		return err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Verdict{}, ctxErr
		}
		err = fmt.Errorf("%w: text of %s: %w", ErrTracker, ref.ID, err)
		return r.trackerFailure(ctx, "text", asg, err), nil
	}

	evidence := &model.EvidenceBundle{
		ItemID:         item.ID,
		Ref:            *ref,
		Channel:        channel,
		SubmissionText: text,
	}
	result := r.Judge(item.ID, asg.WorkerID, evidence)

	metrics.RecordAttributionVerdict(string(result.Strength), string(result.Channel), result.Attributed)
	r.logger.Info(ctx, "attribution resolved",
		logger.String("item", item.ID),
		logger.String("expected_worker", asg.WorkerID),
		logger.String("submission", ref.ID),
		logger.String("channel", string(result.Channel)),
		logger.String("strength", string(result.Strength)),
		logger.Bool("attributed", result.Attributed),
		logger.Bool("strict", r.strict),
		logger.String("tags", strings.Join(result.Tags, ",")),
	)
	return Verdict{Outcome: OutcomeResolved, Result: result, Evidence: evidence}, nil
}

// Judge grades evidence for the expected worker.
//
//	expected worker tagged      -> explicit, attributed
//	no identity tags            -> indirect, attributed (linkage alone)
//	only other workers tagged   -> explicit, attributed only in lenient mode
func (r *Resolver) Judge(itemID, expected string, evidence *model.EvidenceBundle) model.AttributionResult {
	tags := ExtractTags(evidence.Texts(), r.known)
	res := model.AttributionResult{
		ID:             uuid.NewString(),
		ItemID:         itemID,
		ExpectedWorker: expected,
		Channel:        evidence.Channel,
		SubmissionID:   evidence.Ref.ID,
		Tags:           tags,
		ResolvedAt:     r.now().UTC(),
	}

	switch {
	case len(tags) == 0:
		res.Strength = model.StrengthIndirect
		res.Attributed = true
	case containsFold(tags, expected):
		res.Strength = model.StrengthExplicit
		res.Attributed = true
	default:
		res.Strength = model.StrengthExplicit
		res.Attributed = !r.strict
	}
	return res
}

// locate finds the closing submission, primary channel first.
func (r *Resolver) locate(ctx context.Context, itemID string) (*model.SubmissionRef, model.Channel, error) {
	var primary *model.SubmissionRef
	err := r.retry(ctx, func() error {
		var err error
		primary, err = r.tracker.FindClosingSubmission(ctx, itemID)
		if errors.Is(err, ErrAmbiguousLinkage) {
			primary = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, model.ChannelNone, fmt.Errorf("%w: primary lookup: %w", ErrTracker, err)
	}
	if primary != nil {
		return primary, model.ChannelPrimary, nil
	}

	r.logger.Debug(ctx, "primary linkage empty, searching references", logger.String("item", itemID))

	var refs []model.SubmissionRef
	err = r.retry(ctx, func() error {
		var err error
		refs, err = r.tracker.SearchSubmissionsReferencing(ctx, itemID)
		return err
	})
	if err != nil {
		return nil, model.ChannelNone, fmt.Errorf("%w: fallback search: %w", ErrTracker, err)
	}
	if len(refs) == 0 {
		return nil, model.ChannelNone, nil
	}

	sorted := make([]model.SubmissionRef, len(refs))
	copy(sorted, refs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].ClosedAt.Equal(sorted[j].ClosedAt) {
			return sorted[i].ClosedAt.After(sorted[j].ClosedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return &sorted[0], model.ChannelFallback, nil
}

// trackerFailure defers the item on a transient error and fails it
// otherwise. Neither outcome persists a verdict.
func (r *Resolver) trackerFailure(ctx context.Context, stage string, asg model.Assignment, err error) Verdict {
	if r.transient(err) {
		metrics.RecordAttributionDeferred("tracker_error")
		r.logger.Warn(ctx, "attribution deferred, tracker unavailable",
			logger.String("item", asg.ItemID),
			logger.String("expected_worker", asg.WorkerID),
			logger.String("stage", stage),
			logger.Error(err),
		)
		return Verdict{Outcome: OutcomeDeferred, Err: err}
	}
	metrics.RecordAttributionFailed(stage)
	r.logger.Error(ctx, "attribution failed, tracker rejected the request",
		logger.String("item", asg.ItemID),
		logger.String("expected_worker", asg.WorkerID),
		logger.String("stage", stage),
		logger.Error(err),
	)
	return Verdict{Outcome: OutcomeFailed, Err: err}
}

// retry runs fn and, on a transient error, once more after the backoff.
func (r *Resolver) retry(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || !r.transient(err) {
		return err
	}
	select {
	case <-ctx.Done():
		return err
	case <-time.After(r.backoff):
	}
	return fn()
}

func containsFold(tags []string, id string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, id) {
			return true
		}
	}
	return false
}
