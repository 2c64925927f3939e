// Package roster loads worker profiles from a JSON-with-comments file.
package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/okian/workloop/internal/domain/model"
	"github.com/okian/workloop/pkg/logger"
	"github.com/okian/workloop/pkg/metrics"
)

// ErrRead is returned when the roster file cannot be read or parsed.
var ErrRead = errors.New("read roster")

// Capabilities accepts either a tag→weight object or a plain list of tags,
// each weighted 1.
type Capabilities map[string]float64

// UnmarshalJSON implements json.Unmarshaler.
func (c *Capabilities) UnmarshalJSON(data []byte) error {
	var tags []string
	if err := json.Unmarshal(data, &tags); err == nil {
		out := make(Capabilities, len(tags))
		for _, t := range tags {
			out[t] = 1
		}
		*c = out
		return nil
	}
	var weighted map[string]float64
	if err := json.Unmarshal(data, &weighted); err != nil {
		return fmt.Errorf("capabilities: %w", err)
	}
	*c = weighted
	return nil
}

type entry struct {
	ID            string       `json:"id"`
	Capabilities  Capabilities `json:"capabilities"`
	Context       string       `json:"context"`
	ReviewActions *int         `json:"review_actions"`
	Innovation    *float64     `json:"innovation"`
}

type document struct {
	Workers []json.RawMessage `json:"workers"`
}

// File reads the roster from path on every Load so edits apply next cycle.
type File struct {
	path   string
	logger logger.Logger
}

// Option applies a configuration option to the File roster.
type Option func(*File)

// WithLogger sets the logger used for skipped entries.
func WithLogger(l logger.Logger) Option {
	return func(f *File) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFile creates a roster reading path.
func NewFile(path string, opts ...Option) *File {
	f := &File{path: path, logger: logger.Nop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Load returns the valid profiles ordered by id. Reputation and tier are
// left at their zero values; they come from the reputation registry.
func (f *File) Load(ctx context.Context) ([]model.WorkerProfile, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrRead, f.path, err)
	}
	var doc document
	if err := json.Unmarshal(jsonc.ToJSON(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", ErrRead, f.path, err)
	}

	seen := make(map[string]struct{}, len(doc.Workers))
	out := make([]model.WorkerProfile, 0, len(doc.Workers))
	for i, msg := range doc.Workers {
		var e entry
		if err := json.Unmarshal(msg, &e); err != nil {
			f.reject(ctx, i, "", err)
			continue
		}
		p := model.WorkerProfile{
			ID:           strings.TrimSpace(e.ID),
			Capabilities: normalize(e.Capabilities),
			Context:      e.Context,
			Tier:         model.TierNew,
			Signals:      model.Signals{ReviewActions: e.ReviewActions, Innovation: e.Innovation},
		}
		if err := p.Validate(); err != nil {
			f.reject(ctx, i, p.ID, err)
			continue
		}
		if _, dup := seen[p.ID]; dup {
			f.reject(ctx, i, p.ID, fmt.Errorf("%w: duplicate id %s", model.ErrInvalidWorker, p.ID))
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	metrics.UpdateRosterSize(len(out))
	return out, nil
}

func (f *File) reject(ctx context.Context, index int, id string, err error) {
	metrics.RecordRecordRejected("worker")
	f.logger.Warn(ctx, "skipping malformed roster entry",
		logger.String("file", f.path),
		logger.Int("index", index),
		logger.String("worker", id),
		logger.Error(err),
	)
}

// normalize lowercases tags; the highest weight wins when two collapse.
func normalize(c Capabilities) map[string]float64 {
	out := make(map[string]float64, len(c))
	for tag, w := range c {
		key := strings.ToLower(strings.TrimSpace(tag))
		if key == "" {
			continue
		}
		if cur, ok := out[key]; !ok || w > cur {
			out[key] = w
		}
	}
	return out
}
