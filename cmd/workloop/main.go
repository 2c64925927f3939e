// Command workloop runs the work distribution, attribution and evaluation
// cycles and serves the ops API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/okian/workloop/internal/adapters/http/api"
	service "github.com/okian/workloop/internal/app"
	"github.com/okian/workloop/internal/config"
	"github.com/okian/workloop/internal/seed"
	"github.com/okian/workloop/pkg/logger"
	"github.com/okian/workloop/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 20 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	nanosecondsPerMillisecond = 1e6
)

const usage = `Usage: workloop <command> [flags]

Commands:
  distribute   assign pending work items to workers
  attribute    resolve attribution for closed assignments
  evaluate     score workers and update reputation
  cycle        run distribute, attribute and evaluate once
  serve        run cycles on an interval and serve the ops API
  seed         write synthetic items and roster files
  probe        check a running instance for read-model consistency

Configuration is read from WORKLOOP_CONFIG (YAML) and WORKLOOP_* env vars.
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		_, _ = io.WriteString(stdout, usage)
		return nil
	}
	cmd, rest := args[0], args[1:]

	if err := logger.Init(); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "seed":
		return runSeed(ctx, rest)
	case "probe":
		return runProbe(ctx, rest, stdout)
	case "distribute", "attribute", "evaluate", "cycle", "serve":
	default:
		_, _ = io.WriteString(stdout, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}

	flags := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "YAML config file (overrides WORKLOOP_CONFIG)")
	if err := flags.Parse(rest); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *configPath != "" {
		if err := os.Setenv("WORKLOOP_CONFIG", *configPath); err != nil {
			return err
		}
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if cfg.StateBackend == config.BackendMemory && !config.CommandAllowsMemory(cmd) {
		return fmt.Errorf("%w: %s needs persistent state; memory is only valid for serve", config.ErrInvalidConfig, cmd)
	}
	metrics.Configure(metricsOptions(cfg)...)
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	p, closeAll, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeAll()

	switch cmd {
	case "distribute":
		return report(stdout)(p.RunDistribution(ctx))
	case "attribute":
		return report(stdout)(p.RunAttribution(ctx))
	case "evaluate":
		return report(stdout)(p.RunEvaluation(ctx))
	case "cycle":
		return report(stdout)(p.RunCycle(ctx))
	default:
		return serve(ctx, cfg, p, log)
	}
}

// report prints a run report as indented JSON.
func report(w io.Writer) func(any, error) error {
	return func(rep any, err error) error {
		if err != nil {
			return err
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
}

func serve(ctx context.Context, cfg *config.Config, p *service.Pipeline, log logger.Logger) error {
	if metrics.Enabled() {
		go startSystemMetricsUpdater(ctx, metrics.RefreshInterval())
	}

	sched := service.NewScheduler(p, cfg.CycleInterval, service.WithSchedulerLogger(log))
	go sched.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewServer(p, api.WithLogger(log)).Router(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.Duration("cycle_interval", cfg.CycleInterval),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		log.Error(ctx, "HTTP server failed", logger.Error(serveErr))
	}
	log.Info(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if err := sched.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "scheduler shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "stopped")
	return serveErr
}

func runSeed(ctx context.Context, args []string) error {
	cfg := seed.Config{Logger: logger.Get()}
	flags := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	flags.IntVar(&cfg.Items, "items", seed.DefaultItems, "number of work items")
	flags.IntVar(&cfg.Workers, "workers", seed.DefaultWorkers, "number of roster workers")
	flags.StringVar(&cfg.Repo, "repo", seed.DefaultRepo, "owner/repo used in item ids")
	flags.StringVar(&cfg.OutDir, "out", ".", "output directory")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	_, _, err := seed.Write(ctx, cfg)
	return err
}

func runProbe(ctx context.Context, args []string, stdout io.Writer) error {
	cfg := seed.Config{Logger: logger.Get()}
	flags := pflag.NewFlagSet("probe", pflag.ContinueOnError)
	flags.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "base URL of the instance")
	flags.IntVar(&cfg.TopN, "top", seed.DefaultTopN, "leaderboard entries to check")
	flags.IntVar(&cfg.Parallel, "parallel", seed.DefaultParallel, "concurrent worker lookups")
	flags.DurationVar(&cfg.Timeout, "timeout", seed.DefaultTimeout, "HTTP request timeout")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	rep, err := seed.Probe(ctx, cfg)
	if err != nil {
		return err
	}
	return report(stdout)(map[string]any{
		"stats":       rep.Stats,
		"leaderboard": rep.Leaderboard,
		"checked":     rep.Checked,
	}, nil)
}

func metricsOptions(cfg *config.Config) []metrics.Option {
	return []metrics.Option{
		metrics.WithMetricsEnabled(cfg.MetricsEnabled),
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithMetricPrefix(cfg.MetricsPrefix),
		metrics.WithCustomLabels(cfg.MetricsLabels),
		metrics.WithHistogramBuckets(cfg.MetricsBuckets),
		metrics.WithRefreshInterval(cfg.MetricsRefreshInterval),
	}
}

// startSystemMetricsUpdater refreshes process gauges every interval until
// ctx is done.
func startSystemMetricsUpdater(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		metrics.RecordSystemGCPauseTime(float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond)
	}
}
