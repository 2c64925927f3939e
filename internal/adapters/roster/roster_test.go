package roster_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/workloop/internal/adapters/roster"
	"github.com/okian/workloop/internal/domain/model"
)

const workers = `{
  // team roster
  "workers": [
    {"id": "cloud-specialist", "capabilities": {"Cloud": 1.0, "infra": 0.5}, "context": "eu"},
    {"id": "docs-writer", "capabilities": ["docs", "writing"], "review_actions": 3},
    {"id": "", "capabilities": ["docs"]},
    {"id": "bad-weight", "capabilities": {"cloud": -1}},
    {"id": "bad-shape", "capabilities": 7},
    {"id": "cloud-specialist", "capabilities": ["other"]},
    {"id": "perf-tuner", "capabilities": {"performance": 2}, "innovation": 0.4}, /* trailing comma */
  ]
}`

func TestLoad(t *testing.T) {
	ctx := context.Background()

	Convey("Given a commented roster with bad entries", t, func() {
		path := filepath.Join(t.TempDir(), "roster.jsonc")
		So(os.WriteFile(path, []byte(workers), 0o600), ShouldBeNil)

		got, err := roster.NewFile(path).Load(ctx)
		So(err, ShouldBeNil)

		Convey("Then only valid unique workers are returned in id order", func() {
			So(len(got), ShouldEqual, 3)
			So(got[0].ID, ShouldEqual, "cloud-specialist")
			So(got[1].ID, ShouldEqual, "docs-writer")
			So(got[2].ID, ShouldEqual, "perf-tuner")
		})

		Convey("Then capabilities are normalized", func() {
			So(got[0].Capabilities, ShouldResemble, map[string]float64{"cloud": 1, "infra": 0.5})
			So(got[1].Capabilities, ShouldResemble, map[string]float64{"docs": 1, "writing": 1})
		})

		Convey("Then signals and defaults are carried", func() {
			So(*got[1].Signals.ReviewActions, ShouldEqual, 3)
			So(got[1].Signals.Innovation, ShouldBeNil)
			So(*got[2].Signals.Innovation, ShouldEqual, 0.4)
			So(got[0].Tier, ShouldEqual, model.TierNew)
			So(got[0].Context, ShouldEqual, "eu")
		})
	})

	Convey("Given a roster that is not JSON", t, func() {
		path := filepath.Join(t.TempDir(), "roster.jsonc")
		So(os.WriteFile(path, []byte("workers: []"), 0o600), ShouldBeNil)
		_, err := roster.NewFile(path).Load(ctx)
		So(errors.Is(err, roster.ErrRead), ShouldBeTrue)
	})

	Convey("Given a missing roster", t, func() {
		_, err := roster.NewFile(filepath.Join(t.TempDir(), "none.jsonc")).Load(ctx)
		So(errors.Is(err, roster.ErrRead), ShouldBeTrue)
	})
}
