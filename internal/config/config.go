// Package config defines workloop configuration and its validation.
//
// Conventions:
// - Keys are flat and snake_case so env vars map onto them one to one.
// - New returns defaults; Load layers file and env on top.
package config

import (
	"context"
	"fmt"
	"math"
	"time"
)

// State backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

const weightTolerance = 1e-9

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the ops HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// CycleInterval is the pause between scheduled cycles.
	CycleInterval time.Duration `koanf:"cycle_interval"`

	// Allocation.
	DiversityWeight float64 `koanf:"diversity_weight"`
	MaxPenalty      float64 `koanf:"max_penalty"`

	// DedupRingSize bounds the handled-digest ring.
	DedupRingSize int `koanf:"dedup_ring_size"`

	// StrictAttribution rejects submissions tagged only with other workers.
	StrictAttribution bool `koanf:"strict_attribution"`

	// AttributionConcurrency is how many items are resolved at once.
	AttributionConcurrency int `koanf:"attribution_concurrency"`

	// Performance.
	DistinguishedThreshold float64       `koanf:"distinguished_threshold"`
	MinSampleSize          int           `koanf:"min_sample_size"`
	ReviewTarget           int           `koanf:"review_target"`
	EvaluationWindow       time.Duration `koanf:"evaluation_window"`

	WeightQuality       float64 `koanf:"weight_quality"`
	WeightResolution    float64 `koanf:"weight_resolution"`
	WeightSubmission    float64 `koanf:"weight_submission"`
	WeightCollaboration float64 `koanf:"weight_collaboration"`
	WeightInnovation    float64 `koanf:"weight_innovation"`

	// Affinity.
	PatternWeight         float64 `koanf:"pattern_weight"`
	OverlapFloor          float64 `koanf:"overlap_floor"`
	LocalityBonus         float64 `koanf:"locality_bonus"`
	ReputationCoefficient float64 `koanf:"reputation_coefficient"`

	// State store.
	StateBackend   string `koanf:"state_backend"`
	StateDir       string `koanf:"state_dir"`
	StateDSN       string `koanf:"state_dsn"`
	StateRedisAddr string `koanf:"state_redis_addr"`
	StateRetries   int    `koanf:"state_retries"`

	// Submission tracker.
	TrackerBaseURL   string  `koanf:"tracker_base_url"`
	TrackerToken     string  `koanf:"tracker_token"`
	TrackerRateLimit float64 `koanf:"tracker_rate_limit"`

	// Event publishing; disabled without brokers.
	KafkaBrokers []string `koanf:"kafka_brokers"`
	KafkaTopic   string   `koanf:"kafka_topic"`

	// Snapshot archive; disabled without a bucket.
	ArchiveBucket string `koanf:"archive_bucket"`
	ArchivePrefix string `koanf:"archive_prefix"`

	// Inputs.
	SourceFile string `koanf:"source_file"`
	RosterFile string `koanf:"roster_file"`

	// Metrics naming and sampling.
	MetricsEnabled         bool              `koanf:"metrics_enabled"`
	MetricsNamespace       string            `koanf:"metrics_namespace"`
	MetricsSubsystem       string            `koanf:"metrics_subsystem"`
	MetricsPrefix          string            `koanf:"metrics_prefix"`
	MetricsLabels          map[string]string `koanf:"metrics_labels"`
	MetricsBuckets         []float64         `koanf:"metrics_buckets"`
	MetricsRefreshInterval time.Duration     `koanf:"metrics_refresh_interval"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		Addr:                   ":9080",
		CycleInterval:          5 * time.Minute,
		DiversityWeight:        0.7,
		MaxPenalty:             0.9,
		DedupRingSize:          100,
		StrictAttribution:      true,
		AttributionConcurrency: 1,
		DistinguishedThreshold: 0.85,
		MinSampleSize:          5,
		ReviewTarget:           10,
		EvaluationWindow:       30 * 24 * time.Hour,
		WeightQuality:          0.30,
		WeightResolution:       0.20,
		WeightSubmission:       0.20,
		WeightCollaboration:    0.15,
		WeightInnovation:       0.15,
		PatternWeight:          1.0,
		OverlapFloor:           0.1,
		LocalityBonus:          0.5,
		ReputationCoefficient:  1.0,
		StateBackend:           BackendFile,
		StateDir:               "state",
		StateRetries:           3,
		TrackerBaseURL:         "https://api.github.com",
		TrackerRateLimit:       5,
		KafkaTopic:             "workloop.events",
		ArchivePrefix:          "workloop",
		SourceFile:             "items.yaml",
		RosterFile:             "roster.jsonc",
		MetricsEnabled:         true,
		MetricsNamespace:       "workloop",
		MetricsSubsystem:       "core",
		MetricsRefreshInterval: 10 * time.Second,
	}
}

// Validate rejects configurations the core cannot run with.
func (c *Config) Validate(_ context.Context) error {
	sum := c.WeightQuality + c.WeightResolution + c.WeightSubmission + c.WeightCollaboration + c.WeightInnovation
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("%w: scoring weights sum to %v, want 1.0", ErrInvalidConfig, sum)
	}
	for name, w := range map[string]float64{
		"weight_quality":       c.WeightQuality,
		"weight_resolution":    c.WeightResolution,
		"weight_submission":    c.WeightSubmission,
		"weight_collaboration": c.WeightCollaboration,
		"weight_innovation":    c.WeightInnovation,
	} {
		if w < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, name)
		}
	}
	if c.MaxPenalty < 0 || c.MaxPenalty >= 1 {
		return fmt.Errorf("%w: max_penalty %v outside [0,1)", ErrInvalidConfig, c.MaxPenalty)
	}
	if c.DiversityWeight < 0 {
		return fmt.Errorf("%w: diversity_weight must not be negative", ErrInvalidConfig)
	}
	if c.DedupRingSize <= 0 {
		return fmt.Errorf("%w: dedup_ring_size must be positive", ErrInvalidConfig)
	}
	if c.DistinguishedThreshold <= 0 || c.DistinguishedThreshold > 1 {
		return fmt.Errorf("%w: distinguished_threshold %v outside (0,1]", ErrInvalidConfig, c.DistinguishedThreshold)
	}
	if c.MinSampleSize < 0 {
		return fmt.Errorf("%w: min_sample_size must not be negative", ErrInvalidConfig)
	}
	if c.ReviewTarget <= 0 {
		return fmt.Errorf("%w: review_target must be positive", ErrInvalidConfig)
	}
	if c.EvaluationWindow <= 0 {
		return fmt.Errorf("%w: evaluation_window must be positive", ErrInvalidConfig)
	}
	if c.PatternWeight < 0 || c.OverlapFloor < 0 || c.LocalityBonus < 0 || c.ReputationCoefficient < 0 {
		return fmt.Errorf("%w: affinity coefficients must not be negative", ErrInvalidConfig)
	}
	if c.AttributionConcurrency <= 0 {
		return fmt.Errorf("%w: attribution_concurrency must be positive", ErrInvalidConfig)
	}
	if c.StateRetries <= 0 {
		return fmt.Errorf("%w: state_retries must be positive", ErrInvalidConfig)
	}
	if c.CycleInterval <= 0 {
		return fmt.Errorf("%w: cycle_interval must be positive", ErrInvalidConfig)
	}
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}

	switch c.StateBackend {
	case BackendMemory:
	case BackendFile:
		if c.StateDir == "" {
			return fmt.Errorf("%w: state_dir required for file backend", ErrInvalidConfig)
		}
	case BackendPostgres:
		if c.StateDSN == "" {
			return fmt.Errorf("%w: state_dsn required for postgres backend", ErrInvalidConfig)
		}
	case BackendRedis:
		if c.StateRedisAddr == "" {
			return fmt.Errorf("%w: state_redis_addr required for redis backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown state_backend %q", ErrInvalidConfig, c.StateBackend)
	}

	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("%w: kafka_topic required when brokers are set", ErrInvalidConfig)
	}

	if c.MetricsNamespace == "" {
		return fmt.Errorf("%w: metrics_namespace must not be empty", ErrInvalidConfig)
	}
	if c.MetricsRefreshInterval <= 0 {
		return fmt.Errorf("%w: metrics_refresh_interval must be positive", ErrInvalidConfig)
	}
	for i := 1; i < len(c.MetricsBuckets); i++ {
		if c.MetricsBuckets[i] <= c.MetricsBuckets[i-1] {
			return fmt.Errorf("%w: metrics_buckets must be strictly increasing", ErrInvalidConfig)
		}
	}
	return nil
}

// CommandAllowsMemory reports whether cmd may run on the memory backend.
// Only the long-running server keeps state across runs in one process.
func CommandAllowsMemory(cmd string) bool {
	return cmd == "serve"
}
