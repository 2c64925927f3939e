package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/workloop/internal/domain/model"
	"github.com/okian/workloop/pkg/logger"
)

const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

type rosterWorker struct {
	ID            string             `json:"id"`
	Capabilities  map[string]float64 `json:"capabilities"`
	Context       string             `json:"context,omitempty"`
	ReviewActions *int               `json:"review_actions,omitempty"`
}

// Write generates inputs per cfg and writes them to cfg.OutDir. It returns
// the paths of the items and roster files.
func Write(ctx context.Context, cfg Config) (string, string, error) {
	if err := os.MkdirAll(cfg.OutDir, directoryPermission); err != nil {
		return "", "", fmt.Errorf("create %s: %w", cfg.OutDir, err)
	}
	itemsPath := filepath.Join(cfg.OutDir, ItemsFile)
	rosterPath := filepath.Join(cfg.OutDir, RosterFile)

	items := Items(cfg.Repo, cfg.Items, time.Now())
	if err := writeItems(itemsPath, items); err != nil {
		return "", "", err
	}
	workers := Workers(cfg.Workers)
	if err := writeRoster(rosterPath, workers); err != nil {
		return "", "", err
	}

	cfg.log().Info(ctx, "seed inputs written",
		logger.String("items_file", itemsPath),
		logger.Int("items", len(items)),
		logger.String("roster_file", rosterPath),
		logger.Int("workers", len(workers)),
	)
	return itemsPath, rosterPath, nil
}

func writeItems(path string, items []model.WorkItem) error {
	var buf bytes.Buffer
	buf.WriteString("# generated by workloop seed\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(struct {
		Items []model.WorkItem `yaml:"items"`
	}{Items: items}); err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), filePermission); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writeRoster(path string, workers []model.WorkerProfile) error {
	doc := struct {
		Workers []rosterWorker `json:"workers"`
	}{Workers: make([]rosterWorker, 0, len(workers))}
	for _, w := range workers {
		doc.Workers = append(doc.Workers, rosterWorker{
			ID:            w.ID,
			Capabilities:  w.Capabilities,
			Context:       w.Context,
			ReviewActions: w.Signals.ReviewActions,
		})
	}
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode roster: %w", err)
	}
	out := append([]byte("// generated by workloop seed\n"), body...)
	out = append(out, '\n')
	if err := os.WriteFile(path, out, filePermission); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
