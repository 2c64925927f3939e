// Package model contains domain models passed between layers.
package model

import (
	"time"
)

// Tier is a worker's standing in the reputation state machine.
type Tier string

const (
	TierNew           Tier = "new"
	TierActive        Tier = "active"
	TierDistinguished Tier = "distinguished"
)

// Strength grades the evidence behind an attribution verdict.
type Strength string

const (
	StrengthNone     Strength = "none"
	StrengthIndirect Strength = "indirect"
	StrengthExplicit Strength = "explicit"
)

// Channel names the linkage path that located a submission.
type Channel string

const (
	ChannelNone     Channel = "none"
	ChannelPrimary  Channel = "primary"
	ChannelFallback Channel = "fallback"
)

// WorkItem is a unit of discovered work awaiting assignment.
// ID is stable across rediscovery; SourceRef is whatever id the source
// used this time and carries no identity.
type WorkItem struct {
	ID          string    `json:"id" yaml:"id"`
	SourceRef   string    `json:"source_ref,omitempty" yaml:"source_ref"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description,omitempty" yaml:"description"`
	Patterns    []string  `json:"patterns" yaml:"patterns"`
	Context     string    `json:"context,omitempty" yaml:"context"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	Handled     bool      `json:"handled" yaml:"handled"`
}

// Signals are externally tracked inputs to the performance score.
// Nil means the signal is not tracked for this worker.
type Signals struct {
	ReviewActions *int     `json:"review_actions,omitempty"`
	Innovation    *float64 `json:"innovation,omitempty"`
}

// WorkerProfile describes a contributor and its live standing.
type WorkerProfile struct {
	ID string `json:"id"`
	// Capabilities maps pattern tag to affinity weight.
	Capabilities map[string]float64 `json:"capabilities"`
	Context      string             `json:"context,omitempty"`
	Reputation   float64            `json:"reputation"`
	Tier         Tier               `json:"tier"`
	// AssignmentCount is per cycle and reset before each batch.
	AssignmentCount int     `json:"assignment_count"`
	Signals         Signals `json:"signals"`
}

// Assignment binds one work item to one worker.
type Assignment struct {
	ItemID     string    `json:"item_id"`
	WorkerID   string    `json:"worker_id"`
	Score      float64   `json:"score"`
	CycleID    string    `json:"cycle_id,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
}

// SubmissionRef points at a submission in the external tracker.
type SubmissionRef struct {
	ID       string    `json:"id"`
	URL      string    `json:"url,omitempty"`
	ClosedAt time.Time `json:"closed_at"`
}

// SubmissionText is the text surface of a submission.
type SubmissionText struct {
	Title       string
	Description string
	Comments    []string
}

// EvidenceBundle aggregates the text around a closing submission.
type EvidenceBundle struct {
	ItemID  string
	Ref     SubmissionRef
	Channel Channel
	SubmissionText
}

// Texts returns every evidence surface in a stable order.
func (e EvidenceBundle) Texts() []string {
	out := make([]string, 0, 2+len(e.Comments))
	out = append(out, e.Title, e.Description)
	return append(out, e.Comments...)
}

// AttributionResult is one verdict for a closed work item. Results are
// appended; the newest for an item is current.
type AttributionResult struct {
	ID             string    `json:"id"`
	ItemID         string    `json:"item_id"`
	ExpectedWorker string    `json:"expected_worker"`
	Attributed     bool      `json:"attributed"`
	Strength       Strength  `json:"strength"`
	Channel        Channel   `json:"channel"`
	SubmissionID   string    `json:"submission_id,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	ResolvedAt     time.Time `json:"resolved_at"`
}

// Components are the normalized inputs to the composite score.
type Components struct {
	Quality       float64 `json:"quality"`
	Resolution    float64 `json:"resolution"`
	Submission    float64 `json:"submission"`
	Collaboration float64 `json:"collaboration"`
	Innovation    float64 `json:"innovation"`
}

// PerformanceSnapshot is an immutable evaluation of one worker.
type PerformanceSnapshot struct {
	ID          string     `json:"id"`
	WorkerID    string     `json:"worker_id"`
	Components  Components `json:"components"`
	Composite   float64    `json:"composite"`
	Tier        Tier       `json:"tier"`
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   time.Time  `json:"window_end"`
	SampleSize  int        `json:"sample_size"`
	CreatedAt   time.Time  `json:"created_at"`
}
