package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	err := Init()
	if err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	Named("allocator").Info(context.Background(), "test message", String("k", "v"))
}

func TestLoggerOutput(t *testing.T) {
	Convey("Given a logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(SetLevelString("info"), ShouldBeNil)
		l := New(&buf)

		Convey("When logging with fields", func() {
			l.With(String("cycle", "c-1")).Info(context.Background(), "assigned",
				String("item", "item-1"),
				Float64("score", 1.5),
				Bool("strict", true),
			)

			Convey("Then the record carries message, fields and caller", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, "msg=assigned")
				So(out, ShouldContainSubstring, "cycle=c-1")
				So(out, ShouldContainSubstring, "item=item-1")
				So(out, ShouldContainSubstring, "strict=true")
				So(out, ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When the level filters a record", func() {
			l.Debug(context.Background(), "hidden")

			Convey("Then nothing is written", func() {
				So(buf.Len(), ShouldEqual, 0)
			})
		})

		Convey("When logging with a nil context", func() {
			So(func() { l.Warn(nil, "no ctx") }, ShouldNotPanic) //nolint:staticcheck // nil ctx tolerated
			So(strings.Count(buf.String(), "no ctx"), ShouldEqual, 1)
		})
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Given level strings", t, func() {
		for _, lvl := range []string{"debug", "INFO", "warn", "warning", "error", ""} {
			So(SetLevelString(lvl), ShouldBeNil)
		}
		So(SetLevelString("verbose"), ShouldNotBeNil)
		So(SetLevelString("info"), ShouldBeNil)
	})
}

func TestNop(t *testing.T) {
	Convey("The nop logger accepts every call", t, func() {
		l := Nop().Named("x").With(Int("n", 1))
		So(func() {
			l.Info(context.Background(), "a")
			l.Warn(context.Background(), "b")
			l.Error(context.Background(), "c")
			l.Debug(context.Background(), "d")
		}, ShouldNotPanic)
	})
}
