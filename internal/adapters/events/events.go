// Package events publishes workloop lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/workloop/internal/domain/model"
)

// Event types.
const (
	TypeAssignmentCreated    = "assignment.created"
	TypeAttributionResolved  = "attribution.resolved"
	TypePerformanceEvaluated = "performance.evaluated"
)

// Event is the envelope written to the bus. WorkerID is the message key so
// a worker's events stay ordered within a partition.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	WorkerID   string          `json:"worker_id"`
	ItemID     string          `json:"item_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

func newEvent(typ, workerID, itemID string, at time.Time, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	if at.IsZero() {
		at = time.Now()
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		WorkerID:   workerID,
		ItemID:     itemID,
		OccurredAt: at.UTC(),
		Payload:    raw,
	}, nil
}

// AssignmentCreated builds the event for a committed assignment.
func AssignmentCreated(a model.Assignment) (Event, error) {
	return newEvent(TypeAssignmentCreated, a.WorkerID, a.ItemID, a.AssignedAt, a)
}

// AttributionResolved builds the event for a persisted verdict.
func AttributionResolved(r model.AttributionResult) (Event, error) {
	return newEvent(TypeAttributionResolved, r.ExpectedWorker, r.ItemID, r.ResolvedAt, r)
}

// PerformanceEvaluated builds the event for a recorded snapshot.
func PerformanceEvaluated(s model.PerformanceSnapshot) (Event, error) {
	return newEvent(TypePerformanceEvaluated, s.WorkerID, "", s.CreatedAt, s)
}

// Nop discards events. It is used when no brokers are configured.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, ...Event) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }
