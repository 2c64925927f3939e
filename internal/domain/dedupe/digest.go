// Package dedupe recognizes work items that were already handled.
package dedupe

import (
	"encoding/hex"
	"sort"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/okian/workloop/internal/domain/model"
)

// unitSeparator joins digest fields so "ab"+"c" and "a"+"bc" differ.
const unitSeparator = "\x1f"

// Digest returns the content identity of an item: blake3-256 over the
// normalized stable id, title and sorted unique pattern set. SourceRef is
// ignored so rediscovered items collide.
func Digest(item model.WorkItem) string {
	patterns := make([]string, 0, len(item.Patterns))
	seen := make(map[string]struct{}, len(item.Patterns))
	for _, p := range item.Patterns {
		p = normalize(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)

	var b strings.Builder
	b.WriteString(normalize(item.ID))
	b.WriteString(unitSeparator)
	b.WriteString(normalize(item.Title))
	b.WriteString(unitSeparator)
	b.WriteString(strings.Join(patterns, ","))

	sum := blake3.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
