package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/workloop/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.DiversityWeight, convey.ShouldEqual, 0.7)
				convey.So(cfg.MaxPenalty, convey.ShouldEqual, 0.9)
				convey.So(cfg.DedupRingSize, convey.ShouldEqual, 100)
				convey.So(cfg.StrictAttribution, convey.ShouldBeTrue)
				convey.So(cfg.DistinguishedThreshold, convey.ShouldEqual, 0.85)
				convey.So(cfg.MinSampleSize, convey.ShouldEqual, 5)
				convey.So(cfg.StateBackend, convey.ShouldEqual, config.BackendFile)
				convey.So(cfg.StateDir, convey.ShouldEqual, "state")
				convey.So(cfg.ReviewTarget, convey.ShouldEqual, 10)
				convey.So(cfg.MetricsEnabled, convey.ShouldBeTrue)
				convey.So(cfg.KafkaBrokers, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("WORKLOOP_ADDR", ":8080")
			_ = os.Setenv("WORKLOOP_DEDUP_RING_SIZE", "250")
			_ = os.Setenv("WORKLOOP_STRICT_ATTRIBUTION", "false")
			_ = os.Setenv("WORKLOOP_CYCLE_INTERVAL", "90s")
			_ = os.Setenv("WORKLOOP_KAFKA_BROKERS", "k1:9092,k2:9092")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.DedupRingSize, convey.ShouldEqual, 250)
				convey.So(cfg.StrictAttribution, convey.ShouldBeFalse)
				convey.So(cfg.CycleInterval, convey.ShouldEqual, 90*time.Second)
				convey.So(cfg.KafkaBrokers, convey.ShouldResemble, []string{"k1:9092", "k2:9092"})
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			path := writeTempConfig(t, `
addr: ":9090"
max_penalty: 0.8
state_backend: memory
weight_quality: 0.4
weight_resolution: 0.2
weight_submission: 0.2
weight_collaboration: 0.1
weight_innovation: 0.1
metrics_namespace: ops
metrics_refresh_interval: 30s
metrics_buckets: [5, 50, 500]
metrics_labels:
  deployment: staging
`)
			_ = os.Setenv("WORKLOOP_CONFIG", path)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from the file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.MaxPenalty, convey.ShouldEqual, 0.8)
				convey.So(cfg.StateBackend, convey.ShouldEqual, config.BackendMemory)
				convey.So(cfg.WeightQuality, convey.ShouldEqual, 0.4)
				convey.So(cfg.MetricsNamespace, convey.ShouldEqual, "ops")
				convey.So(cfg.MetricsRefreshInterval, convey.ShouldEqual, 30*time.Second)
				convey.So(cfg.MetricsBuckets, convey.ShouldResemble, []float64{5, 50, 500})
				convey.So(cfg.MetricsLabels, convey.ShouldResemble, map[string]string{"deployment": "staging"})
			})

			convey.Convey("And env overrides the file", func() {
				_ = os.Setenv("WORKLOOP_ADDR", ":7070")
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
			})
		})

		convey.Convey("When the config file does not exist", func() {
			_ = os.Setenv("WORKLOOP_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then a load error is returned", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the review target is zero", func() {
			_ = os.Setenv("WORKLOOP_REVIEW_TARGET", "0")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then startup fails instead of keeping the default", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the weights do not sum to one", func() {
			_ = os.Setenv("WORKLOOP_WEIGHT_QUALITY", "0.5")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then startup fails with an invalid config error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workloop.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearConfigEnvVars() {
	for _, k := range []string{
		"WORKLOOP_CONFIG",
		"WORKLOOP_ADDR",
		"WORKLOOP_DEDUP_RING_SIZE",
		"WORKLOOP_STRICT_ATTRIBUTION",
		"WORKLOOP_CYCLE_INTERVAL",
		"WORKLOOP_KAFKA_BROKERS",
		"WORKLOOP_WEIGHT_QUALITY",
		"WORKLOOP_REVIEW_TARGET",
	} {
		_ = os.Unsetenv(k)
	}
}
