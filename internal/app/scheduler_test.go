package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/workloop/internal/app"
)

type countingCycler struct {
	runs atomic.Int32
	err  error
}

func (c *countingCycler) RunCycle(context.Context) (service.CycleReport, error) {
	c.runs.Add(1)
	return service.CycleReport{}, c.err
}

func TestScheduler(t *testing.T) {
	Convey("Given a scheduler with a short interval", t, func() {
		c := &countingCycler{}
		s := service.NewScheduler(c, 5*time.Millisecond)

		Convey("When it runs until shut down", func() {
			done := make(chan struct{})
			go func() {
				s.Run(context.Background())
				close(done)
			}()
			time.Sleep(30 * time.Millisecond)

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			So(s.Shutdown(ctx), ShouldBeNil)
			<-done

			Convey("Then the first cycle ran immediately and later ones followed", func() {
				So(c.runs.Load(), ShouldBeGreaterThanOrEqualTo, 2)
			})

			Convey("Then a second shutdown is harmless", func() {
				So(s.Shutdown(ctx), ShouldBeNil)
			})
		})

		Convey("When cycles fail the loop keeps going", func() {
			c.err = errors.New("tracker down")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()
			s.Run(ctx)
			So(c.runs.Load(), ShouldBeGreaterThanOrEqualTo, 2)
		})
	})

	Convey("Shutdown gives up when the cycle never finishes", t, func() {
		s := service.NewScheduler(&countingCycler{}, time.Hour)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		So(s.Shutdown(ctx), ShouldNotBeNil)
	})
}
