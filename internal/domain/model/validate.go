package model

import (
	"fmt"
	"strings"
)

// Validate reports whether the item can enter a distribution cycle.
func (w WorkItem) Validate() error {
	if strings.TrimSpace(w.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidWorkItem)
	}
	if strings.TrimSpace(w.Title) == "" {
		return fmt.Errorf("%w: %s: empty title", ErrInvalidWorkItem, w.ID)
	}
	for _, p := range w.Patterns {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: %s: blank pattern", ErrInvalidWorkItem, w.ID)
		}
	}
	return nil
}

// Validate reports whether the profile can be scored.
func (p WorkerProfile) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidWorker)
	}
	if p.Reputation < 0 || p.Reputation > 1 {
		return fmt.Errorf("%w: %s: reputation %v outside [0,1]", ErrInvalidWorker, p.ID, p.Reputation)
	}
	for tag, weight := range p.Capabilities {
		if weight < 0 {
			return fmt.Errorf("%w: %s: negative weight for %q", ErrInvalidWorker, p.ID, tag)
		}
	}
	if s := p.Signals.Innovation; s != nil && (*s < 0 || *s > 1) {
		return fmt.Errorf("%w: %s: innovation %v outside [0,1]", ErrInvalidWorker, p.ID, *s)
	}
	if r := p.Signals.ReviewActions; r != nil && *r < 0 {
		return fmt.Errorf("%w: %s: negative review actions", ErrInvalidWorker, p.ID)
	}
	switch p.Tier {
	case "", TierNew, TierActive, TierDistinguished:
	default:
		return fmt.Errorf("%w: %s: unknown tier %q", ErrInvalidWorker, p.ID, p.Tier)
	}
	return nil
}
