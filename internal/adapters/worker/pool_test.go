package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/workloop/internal/adapters/worker"
)

func TestPool(t *testing.T) {
	Convey("Given a pool of three workers", t, func() {
		var active, peak int32
		p := worker.NewPool(3, func(_ context.Context, n int) int {
			cur := atomic.AddInt32(&active, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return n * n
		}, worker.WithName("squares"))

		Convey("When a batch is processed", func() {
			out, err := p.Process(context.Background(), []int{1, 2, 3, 4, 5, 6, 7})

			Convey("Then results keep job order", func() {
				So(err, ShouldBeNil)
				So(out, ShouldResemble, []int{1, 4, 9, 16, 25, 36, 49})
			})

			Convey("Then concurrency never exceeds the pool size", func() {
				So(atomic.LoadInt32(&peak), ShouldBeLessThanOrEqualTo, 3)
			})
		})

		Convey("When the batch is empty", func() {
			out, err := p.Process(context.Background(), nil)
			So(err, ShouldBeNil)
			So(out, ShouldBeEmpty)
		})
	})

	Convey("Given a cancelled context", t, func() {
		var calls int32
		p := worker.NewPool(1, func(_ context.Context, s string) string {
			atomic.AddInt32(&calls, 1)
			return s
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		out, err := p.Process(ctx, []string{"a", "b", "c"})
		So(errors.Is(err, context.Canceled), ShouldBeTrue)
		So(len(out), ShouldEqual, 3)
		So(atomic.LoadInt32(&calls), ShouldEqual, 0)
	})

	Convey("A non-positive size runs serially", t, func() {
		p := worker.NewPool(0, func(_ context.Context, n int) int { return n })
		So(p.Size(), ShouldEqual, 1)
	})
}
