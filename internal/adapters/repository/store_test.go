package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/workloop/internal/adapters/repository"
	"github.com/okian/workloop/internal/adapters/statestore"
	"github.com/okian/workloop/internal/domain/dedupe"
	"github.com/okian/workloop/internal/domain/model"
)

var t0 = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func TestDistribution(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty repository", t, func() {
		store := statestore.NewMemory()
		repo := repository.New(store, repository.WithRingSize(2))
		item := model.WorkItem{ID: "item-1", SourceRef: "scan-1", Title: "Tune cache", Patterns: []string{"performance"}}
		asg := model.Assignment{ItemID: "item-1", WorkerID: "perf-tuner", Score: 1.5, AssignedAt: t0}

		Convey("When an assignment is committed", func() {
			So(repo.CommitAssignment(ctx, item, asg), ShouldBeNil)

			Convey("Then the assignment and handled digest land together", func() {
				got, err := repo.Assignment(ctx, "item-1")
				So(err, ShouldBeNil)
				So(got, ShouldResemble, asg)

				d, err := repo.Distribution(ctx)
				So(err, ShouldBeNil)
				So(d.Handled.Contains(dedupe.Digest(item)), ShouldBeTrue)

				_, v, _ := store.Load(ctx, repository.KeyDistribution)
				So(v, ShouldEqual, 1)
			})

			Convey("Then the dedupe view sees the item as handled", func() {
				d := dedupe.New(repo.Handled())
				again := item
				again.SourceRef = "scan-2"
				So(d.IsDuplicate(ctx, again), ShouldBeTrue)
			})

			Convey("Then a second commit for the item is rejected", func() {
				err := repo.CommitAssignment(ctx, item, model.Assignment{ItemID: "item-1", WorkerID: "other"})
				So(errors.Is(err, repository.ErrAlreadyAssigned), ShouldBeTrue)
				got, _ := repo.Assignment(ctx, "item-1")
				So(got.WorkerID, ShouldEqual, "perf-tuner")
			})
		})

		Convey("When assignments are listed", func() {
			for _, id := range []string{"item-3", "item-1", "item-2"} {
				So(repo.CommitAssignment(ctx, model.WorkItem{ID: id, Title: id}, model.Assignment{ItemID: id, WorkerID: "w"}), ShouldBeNil)
			}
			list, err := repo.Assignments(ctx)
			So(err, ShouldBeNil)
			So(len(list), ShouldEqual, 3)
			So(list[0].ItemID, ShouldEqual, "item-1")
			So(list[2].ItemID, ShouldEqual, "item-3")

			Convey("Then the ring keeps only the newest digests", func() {
				d, _ := repo.Distribution(ctx)
				So(d.Handled.Len(), ShouldEqual, 2)
				So(d.Handled.Contains(dedupe.Digest(model.WorkItem{ID: "item-3", Title: "item-3"})), ShouldBeFalse)
			})
		})

		Convey("When an assignment does not match its item", func() {
			err := repo.CommitAssignment(ctx, item, model.Assignment{ItemID: "item-9", WorkerID: "w"})
			So(errors.Is(err, repository.ErrInvalidAssignment), ShouldBeTrue)
		})

		Convey("When an unknown assignment is requested", func() {
			_, err := repo.Assignment(ctx, "nope")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When the handled set is written directly", func() {
			So(repo.Handled().Add(ctx, "abc"), ShouldBeNil)
			ok, err := repo.Handled().Contains(ctx, "abc")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
		})
	})
}

func TestAttribution(t *testing.T) {
	ctx := context.Background()

	Convey("Given a verdict log", t, func() {
		repo := repository.New(statestore.NewMemory())

		first := model.AttributionResult{ID: "r1", ItemID: "item-1", ExpectedWorker: "w", Attributed: false, ResolvedAt: t0}
		second := model.AttributionResult{ID: "r2", ItemID: "item-1", ExpectedWorker: "w", Attributed: true, ResolvedAt: t0.Add(time.Hour)}
		other := model.AttributionResult{ID: "r3", ItemID: "item-2", ExpectedWorker: "w", Attributed: true, ResolvedAt: t0}

		for _, r := range []model.AttributionResult{first, second, other} {
			So(repo.AppendAttribution(ctx, r), ShouldBeNil)
		}

		Convey("Then every verdict is kept in append order", func() {
			all, err := repo.Attributions(ctx)
			So(err, ShouldBeNil)
			So(len(all), ShouldEqual, 3)
			So(all[0].ID, ShouldEqual, "r1")
		})

		Convey("Then the newest verdict is current", func() {
			cur, ok, err := repo.Latest(ctx, "item-1")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(cur.ID, ShouldEqual, "r2")
		})

		Convey("Then items without verdicts report absence", func() {
			_, ok, err := repo.Latest(ctx, "item-9")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("Then equal timestamps favour the later append", func() {
			tie := model.AttributionResult{ID: "r4", ItemID: "item-2", ResolvedAt: t0}
			So(repo.AppendAttribution(ctx, tie), ShouldBeNil)
			cur, _, _ := repo.Latest(ctx, "item-2")
			So(cur.ID, ShouldEqual, "r4")
		})
	})
}

func TestReputation(t *testing.T) {
	ctx := context.Background()

	Convey("Given recorded snapshots", t, func() {
		repo := repository.New(statestore.NewMemory(), repository.WithSnapshotHistory(2))
		snaps := []model.PerformanceSnapshot{
			{ID: "s1", WorkerID: "a", Composite: 0.4, Tier: model.TierActive, CreatedAt: t0},
			{ID: "s2", WorkerID: "a", Composite: 0.6, Tier: model.TierActive, CreatedAt: t0.Add(time.Hour)},
			{ID: "s3", WorkerID: "a", Composite: 0.9, Tier: model.TierDistinguished, CreatedAt: t0.Add(2 * time.Hour)},
			{ID: "s4", WorkerID: "b", Composite: 0.7, Tier: model.TierActive, CreatedAt: t0},
			{ID: "s5", WorkerID: "c", Composite: 0.7, Tier: model.TierActive, CreatedAt: t0},
		}
		for _, s := range snaps {
			So(repo.RecordSnapshot(ctx, s), ShouldBeNil)
		}

		Convey("Then live reputation equals the latest composite", func() {
			w, err := repo.Worker(ctx, "a")
			So(err, ShouldBeNil)
			So(w.Reputation, ShouldEqual, 0.9)
			So(w.Tier, ShouldEqual, model.TierDistinguished)
			So(w.LatestSnapshotID, ShouldEqual, "s3")
		})

		Convey("Then history is capped to the newest snapshots", func() {
			hist, err := repo.Snapshots(ctx, "a")
			So(err, ShouldBeNil)
			So(len(hist), ShouldEqual, 2)
			So(hist[0].ID, ShouldEqual, "s2")
			So(hist[1].ID, ShouldEqual, "s3")
		})

		Convey("Then the leaderboard ranks by reputation", func() {
			top, err := repo.Leaderboard(ctx, 2)
			So(err, ShouldBeNil)
			So(len(top), ShouldEqual, 2)
			So(top[0].WorkerID, ShouldEqual, "a")
			So(top[1].WorkerID, ShouldEqual, "b")
			So(top[1].Rank, ShouldEqual, 2)

			_, err = repo.Leaderboard(ctx, -1)
			So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
		})

		Convey("Then unknown workers are not found", func() {
			_, err := repo.Worker(ctx, "zzz")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}
