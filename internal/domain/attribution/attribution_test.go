package attribution_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/workloop/internal/domain/attribution"
	"github.com/okian/workloop/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeTracker struct {
	primary      *model.SubmissionRef
	primaryErr   error
	primaryFails int
	refs         []model.SubmissionRef
	searchErr    error
	texts        map[string]model.SubmissionText
	textErr      error

	primaryCalls int
	searchCalls  int
}

func (f *fakeTracker) FindClosingSubmission(_ context.Context, _ string) (*model.SubmissionRef, error) {
	f.primaryCalls++
	if f.primaryFails > 0 {
		f.primaryFails--
		return nil, errors.New("502 bad gateway")
	}
	return f.primary, f.primaryErr
}

func (f *fakeTracker) SearchSubmissionsReferencing(_ context.Context, _ string) ([]model.SubmissionRef, error) {
	f.searchCalls++
	return f.refs, f.searchErr
}

func (f *fakeTracker) GetSubmissionText(_ context.Context, ref model.SubmissionRef) (model.SubmissionText, error) {
	if f.textErr != nil {
		return model.SubmissionText{}, f.textErr
	}
	return f.texts[ref.ID], nil
}

var (
	item = model.WorkItem{ID: "acme/api#7", Title: "Fix retries"}
	asg  = model.Assignment{ItemID: "acme/api#7", WorkerID: "cloud-specialist"}
	pr   = model.SubmissionRef{ID: "acme/api#42", ClosedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
)

func tracker(text model.SubmissionText) *fakeTracker {
	return &fakeTracker{
		primary: &pr,
		texts:   map[string]model.SubmissionText{pr.ID: text},
	}
}

func TestResolveVerdicts(t *testing.T) {
	ctx := context.Background()

	Convey("Given a submission located by the primary channel", t, func() {
		Convey("When it tags the expected worker", func() {
			tr := tracker(model.SubmissionText{Title: "Fix retries", Comments: []string{"done by @Cloud-Specialist"}})
			v, err := attribution.New(tr).Resolve(ctx, item, asg)

			Convey("Then the verdict is explicit and attributed", func() {
				So(err, ShouldBeNil)
				So(v.Outcome, ShouldEqual, attribution.OutcomeResolved)
				So(v.Result.Attributed, ShouldBeTrue)
				So(v.Result.Strength, ShouldEqual, model.StrengthExplicit)
				So(v.Result.Channel, ShouldEqual, model.ChannelPrimary)
				So(v.Result.SubmissionID, ShouldEqual, pr.ID)
				So(v.Result.ID, ShouldNotBeEmpty)
				So(tr.searchCalls, ShouldEqual, 0)
			})
		})

		Convey("When it tags only a different worker", func() {
			text := model.SubmissionText{Description: "Implemented by @test-runner"}

			Convey("Then strict mode refuses credit regardless of linkage", func() {
				v, err := attribution.New(tracker(text)).Resolve(ctx, item, asg)
				So(err, ShouldBeNil)
				So(v.Result.Attributed, ShouldBeFalse)
				So(v.Result.Strength, ShouldEqual, model.StrengthExplicit)
				So(v.Result.Tags, ShouldResemble, []string{"test-runner"})
			})

			Convey("Then lenient mode still credits the linkage", func() {
				v, err := attribution.New(tracker(text), attribution.WithStrict(false)).Resolve(ctx, item, asg)
				So(err, ShouldBeNil)
				So(v.Result.Attributed, ShouldBeTrue)
				So(v.Result.Strength, ShouldEqual, model.StrengthExplicit)
			})
		})

		Convey("When it carries no identity tags", func() {
			text := model.SubmissionText{Title: "Fix retries", Description: "Closes #7. Mail me at ops@acme-corp.io"}

			Convey("Then lenient mode accepts the linkage as indirect evidence", func() {
				v, err := attribution.New(tracker(text), attribution.WithStrict(false)).Resolve(ctx, item, asg)
				So(err, ShouldBeNil)
				So(v.Result.Attributed, ShouldBeTrue)
				So(v.Result.Strength, ShouldEqual, model.StrengthIndirect)
			})

			Convey("Then strict mode does the same", func() {
				v, err := attribution.New(tracker(text)).Resolve(ctx, item, asg)
				So(err, ShouldBeNil)
				So(v.Result.Attributed, ShouldBeTrue)
				So(v.Result.Strength, ShouldEqual, model.StrengthIndirect)
			})
		})

		Convey("When tags outside the known roster appear", func() {
			text := model.SubmissionText{Comments: []string{"thanks @some-human"}}
			r := attribution.New(tracker(text), attribution.WithKnownWorkers([]string{"cloud-specialist", "test-runner"}))
			v, err := r.Resolve(ctx, item, asg)

			Convey("Then they are ignored", func() {
				So(err, ShouldBeNil)
				So(v.Result.Tags, ShouldBeEmpty)
				So(v.Result.Strength, ShouldEqual, model.StrengthIndirect)
				So(v.Result.Attributed, ShouldBeTrue)
			})
		})
	})
}

func TestResolveLinkage(t *testing.T) {
	ctx := context.Background()
	older := model.SubmissionRef{ID: "acme/api#40", ClosedAt: pr.ClosedAt.Add(-time.Hour)}
	sameTimeB := model.SubmissionRef{ID: "acme/api#44", ClosedAt: pr.ClosedAt}

	Convey("Given no primary linkage", t, func() {
		tr := &fakeTracker{
			refs: []model.SubmissionRef{older, sameTimeB, pr},
			texts: map[string]model.SubmissionText{
				pr.ID: {Comments: []string{"@cloud-specialist"}},
			},
		}
		v, err := attribution.New(tr, attribution.WithRetryBackoff(0)).Resolve(ctx, item, asg)

		Convey("Then the newest fallback candidate wins, ids breaking ties", func() {
			So(err, ShouldBeNil)
			So(v.Outcome, ShouldEqual, attribution.OutcomeResolved)
			So(v.Result.Channel, ShouldEqual, model.ChannelFallback)
			So(v.Result.SubmissionID, ShouldEqual, pr.ID)
			So(v.Evidence.Channel, ShouldEqual, model.ChannelFallback)
		})
	})

	Convey("Given an ambiguous primary linkage", t, func() {
		tr := &fakeTracker{
			primaryErr: attribution.ErrAmbiguousLinkage,
			refs:       []model.SubmissionRef{older},
			texts:      map[string]model.SubmissionText{},
		}
		v, err := attribution.New(tr, attribution.WithRetryBackoff(0)).Resolve(ctx, item, asg)

		Convey("Then the fallback is used without retrying the primary", func() {
			So(err, ShouldBeNil)
			So(tr.primaryCalls, ShouldEqual, 1)
			So(v.Result.Channel, ShouldEqual, model.ChannelFallback)
			So(v.Result.SubmissionID, ShouldEqual, older.ID)
		})
	})

	Convey("Given no linkage through either channel", t, func() {
		tr := &fakeTracker{}
		v, err := attribution.New(tr, attribution.WithRetryBackoff(0)).Resolve(ctx, item, asg)

		Convey("Then the item is unlinked, not defaulted to zero credit", func() {
			So(err, ShouldBeNil)
			So(v.Outcome, ShouldEqual, attribution.OutcomeUnlinked)
			So(v.Result.ID, ShouldBeEmpty)
		})
	})
}

func TestResolveTrackerFailures(t *testing.T) {
	ctx := context.Background()

	Convey("Given a tracker that fails once", t, func() {
		tr := tracker(model.SubmissionText{Comments: []string{"@cloud-specialist"}})
		tr.primaryFails = 1
		v, err := attribution.New(tr, attribution.WithRetryBackoff(0)).Resolve(ctx, item, asg)

		Convey("Then the retry succeeds", func() {
			So(err, ShouldBeNil)
			So(tr.primaryCalls, ShouldEqual, 2)
			So(v.Outcome, ShouldEqual, attribution.OutcomeResolved)
		})
	})

	Convey("Given a tracker that keeps failing", t, func() {
		tr := tracker(model.SubmissionText{})
		tr.primaryFails = 5
		v, err := attribution.New(tr, attribution.WithRetryBackoff(0)).Resolve(ctx, item, asg)

		Convey("Then the attribution is deferred after one retry", func() {
			So(err, ShouldBeNil)
			So(tr.primaryCalls, ShouldEqual, 2)
			So(v.Outcome, ShouldEqual, attribution.OutcomeDeferred)
			So(errors.Is(v.Err, attribution.ErrTracker), ShouldBeTrue)
		})
	})

	Convey("Given submission text that cannot be fetched", t, func() {
		tr := tracker(model.SubmissionText{})
		tr.textErr = errors.New("timeout")
		v, err := attribution.New(tr, attribution.WithRetryBackoff(0)).Resolve(ctx, item, asg)

		So(err, ShouldBeNil)
		So(v.Outcome, ShouldEqual, attribution.OutcomeDeferred)
	})

	Convey("Given a failing fallback search", t, func() {
		tr := &fakeTracker{searchErr: errors.New("rate limited")}
		v, err := attribution.New(tr, attribution.WithRetryBackoff(0)).Resolve(ctx, item, asg)

		So(err, ShouldBeNil)
		So(v.Outcome, ShouldEqual, attribution.OutcomeDeferred)
		So(tr.searchCalls, ShouldEqual, 2)
	})

	Convey("Given a cancelled context and a failing tracker", t, func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		tr := tracker(model.SubmissionText{})
		tr.primaryFails = 5
		_, err := attribution.New(tr).Resolve(cctx, item, asg)

		So(errors.Is(err, context.Canceled), ShouldBeTrue)
	})
}

var errBadCredentials = errors.New("401 bad credentials")

func transientUnlessRejected(err error) bool { return !errors.Is(err, errBadCredentials) }

func TestResolvePermanentFailures(t *testing.T) {
	ctx := context.Background()

	Convey("Given a classifier that marks rejected credentials permanent", t, func() {
		Convey("When the primary lookup is rejected", func() {
			tr := tracker(model.SubmissionText{})
			tr.primaryErr = errBadCredentials
			tr.primary = nil
			v, err := attribution.New(tr, attribution.WithRetryBackoff(0), attribution.WithTransient(transientUnlessRejected)).Resolve(ctx, item, asg)

			Convey("Then the item fails after a single call and is not deferred", func() {
				So(err, ShouldBeNil)
				So(v.Outcome, ShouldEqual, attribution.OutcomeFailed)
				So(tr.primaryCalls, ShouldEqual, 1)
				So(tr.searchCalls, ShouldEqual, 0)
				So(errors.Is(v.Err, errBadCredentials), ShouldBeTrue)
				So(errors.Is(v.Err, attribution.ErrTracker), ShouldBeTrue)
			})
		})

		Convey("When the submission text is rejected", func() {
			tr := tracker(model.SubmissionText{})
			tr.textErr = errBadCredentials
			v, err := attribution.New(tr, attribution.WithRetryBackoff(0), attribution.WithTransient(transientUnlessRejected)).Resolve(ctx, item, asg)

			So(err, ShouldBeNil)
			So(v.Outcome, ShouldEqual, attribution.OutcomeFailed)
		})

		Convey("When the tracker fails transiently", func() {
			tr := tracker(model.SubmissionText{})
			tr.primaryFails = 5
			v, err := attribution.New(tr, attribution.WithRetryBackoff(0), attribution.WithTransient(transientUnlessRejected)).Resolve(ctx, item, asg)

			Convey("Then it is still retried once and deferred", func() {
				So(err, ShouldBeNil)
				So(v.Outcome, ShouldEqual, attribution.OutcomeDeferred)
				So(tr.primaryCalls, ShouldEqual, 2)
			})
		})
	})
}

func TestExtractTags(t *testing.T) {
	Convey("Identity tags are hyphenated sigil tokens", t, func() {
		texts := []string{
			"Work by @Review-Bot and @perf-tuner-2, cc @alice",
			"@review-bot again; mail x@docs-writer.io",
			"(@test-runner)",
		}
		So(attribution.ExtractTags(texts, nil), ShouldResemble, []string{"perf-tuner-2", "review-bot", "test-runner"})

		known := map[string]struct{}{"review-bot": {}}
		So(attribution.ExtractTags(texts, known), ShouldResemble, []string{"review-bot"})
		So(attribution.ExtractTags(nil, nil), ShouldBeEmpty)
	})
}
