package types_test

import (
	"testing"

	types "github.com/okian/workloop/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRank(t *testing.T) {
	Convey("Given unordered leaderboard entries", t, func() {
		entries := []types.Entry{
			{WorkerID: "review-bot", Reputation: 0.4},
			{WorkerID: "cloud-specialist", Reputation: 0.9},
			{WorkerID: "test-runner", Reputation: 0.4},
			{WorkerID: "perf-tuner", Reputation: 0.7},
		}

		Convey("When ranking without a limit", func() {
			ranked := types.Rank(entries, 0)

			Convey("Then reputation orders them and ids break ties", func() {
				So(len(ranked), ShouldEqual, 4)
				So(ranked[0].WorkerID, ShouldEqual, "cloud-specialist")
				So(ranked[1].WorkerID, ShouldEqual, "perf-tuner")
				So(ranked[2].WorkerID, ShouldEqual, "review-bot")
				So(ranked[3].WorkerID, ShouldEqual, "test-runner")
			})

			Convey("And ranks are sequential from one", func() {
				for i, e := range ranked {
					So(e.Rank, ShouldEqual, i+1)
				}
			})

			Convey("And the input is left untouched", func() {
				So(entries[0].WorkerID, ShouldEqual, "review-bot")
				So(entries[0].Rank, ShouldEqual, 0)
			})
		})

		Convey("When ranking with a limit", func() {
			ranked := types.Rank(entries, 2)

			Convey("Then only the top entries remain", func() {
				So(len(ranked), ShouldEqual, 2)
				So(ranked[1].WorkerID, ShouldEqual, "perf-tuner")
			})
		})

		Convey("When ranking nothing", func() {
			So(types.Rank(nil, 10), ShouldBeEmpty)
		})
	})
}
