// Package source reads pending work items from a YAML file and records
// which of them were handled.
package source

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/okian/workloop/internal/domain/model"
	"github.com/okian/workloop/pkg/logger"
	"github.com/okian/workloop/pkg/metrics"
)

// File is a work-item source backed by a YAML document of the form
//
//	items:
//	  - id: acme/api#12
//	    title: Flaky deploy
//	    patterns: [cloud, testing]
//	    context: eu
//
// MarkHandled rewrites the document in place, keeping comments.
type File struct {
	path   string
	logger logger.Logger
	mu     sync.Mutex
}

// Option applies a configuration option to the File source.
type Option func(*File)

// WithLogger sets the logger used for skipped records.
func WithLogger(l logger.Logger) Option {
	return func(f *File) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFile creates a source reading path.
func NewFile(path string, opts ...Option) *File {
	f := &File{path: path, logger: logger.Nop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ListPending returns valid items not yet handled, in file order. Malformed
// records are logged and skipped.
func (f *File) ListPending(ctx context.Context) ([]model.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, seq, err := f.load()
	if err != nil {
		return nil, err
	}

	var out []model.WorkItem
	for i, node := range seq.Content {
		var item model.WorkItem
		if err := node.Decode(&item); err != nil {
			f.reject(ctx, i, "", err)
			continue
		}
		if err := item.Validate(); err != nil {
			f.reject(ctx, i, item.ID, err)
			continue
		}
		if item.Handled {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (f *File) reject(ctx context.Context, index int, id string, err error) {
	metrics.RecordRecordRejected("work_item")
	f.logger.Warn(ctx, "skipping malformed work item",
		logger.String("file", f.path),
		logger.Int("index", index),
		logger.String("item", id),
		logger.Error(err),
	)
}

// MarkHandled sets handled: true on the record with itemID.
func (f *File) MarkHandled(_ context.Context, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, seq, err := f.load()
	if err != nil {
		return err
	}

	found := false
	for _, node := range seq.Content {
		if node.Kind != yaml.MappingNode || scalar(node, "id") != itemID {
			continue
		}
		setScalar(node, "handled", "true", "!!bool")
		found = true
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode %s: %w", f.path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode %s: %w", f.path, err)
	}
	return writeAtomic(f.path, buf.Bytes())
}

// load parses the file and returns the document and its items sequence.
func (f *File) load() (*yaml.Node, *yaml.Node, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrRead, f.path, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrRead, f.path, err)
	}
	if len(doc.Content) == 0 {
		return &doc, &yaml.Node{Kind: yaml.SequenceNode}, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("%w: %s: top level must be a mapping", ErrRead, f.path)
	}
	items := value(root, "items")
	if items == nil {
		return &doc, &yaml.Node{Kind: yaml.SequenceNode}, nil
	}
	if items.Kind != yaml.SequenceNode {
		return nil, nil, fmt.Errorf("%w: %s: items must be a list", ErrRead, f.path)
	}
	return &doc, items, nil
}

func value(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func scalar(m *yaml.Node, key string) string {
	if v := value(m, key); v != nil && v.Kind == yaml.ScalarNode {
		return v.Value
	}
	return ""
}

func setScalar(m *yaml.Node, key, val, tag string) {
	if v := value(m, key); v != nil {
		v.Kind, v.Tag, v.Value, v.Style = yaml.ScalarNode, tag, val, 0
		return
	}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: val},
	)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	name := tmp.Name()
	defer func() { _ = os.Remove(name) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(name, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
