// Package seed generates synthetic inputs for smoke and load runs and probes
// a running instance for read-model consistency.
package seed

import (
	"time"

	"github.com/okian/workloop/pkg/logger"
)

// Config holds the generator and probe settings.
type Config struct {
	BaseURL  string        // Base URL of a running instance
	Items    int           // Number of work items to generate
	Workers  int           // Number of roster workers to generate
	Repo     string        // owner/repo used for item ids
	TopN     int           // Leaderboard entries the probe checks
	Parallel int           // Concurrent worker lookups in the probe
	Timeout  time.Duration // HTTP request timeout
	OutDir   string        // Directory receiving items.yaml and roster.jsonc
	Logger   logger.Logger // Nil discards
}

func (c Config) log() logger.Logger {
	if c.Logger == nil {
		return logger.Nop()
	}
	return c.Logger
}

// Defaults.
const (
	DefaultItems    = 200
	DefaultWorkers  = 20
	DefaultRepo     = "acme/platform"
	DefaultTopN     = 10
	DefaultParallel = 4
	DefaultTimeout  = 10 * time.Second
	ItemsFile       = "items.yaml"
	RosterFile      = "roster.jsonc"
)

// Roles paired with the patterns they are strongest in. Worker ids are
// built as role-N so they match the identity tag format.
var roles = []struct { //nolint:gochecknoglobals // generator table
	name     string
	patterns []string
}{
	{"cloud-specialist", []string{"cloud", "infrastructure"}},
	{"docs-writer", []string{"docs", "api"}},
	{"perf-tuner", []string{"performance", "database"}},
	{"test-runner", []string{"testing", "ci"}},
	{"security-reviewer", []string{"security", "auth"}},
	{"frontend-dev", []string{"frontend", "accessibility"}},
}

var contexts = []string{"platform", "payments", "search", ""} //nolint:gochecknoglobals // generator table
