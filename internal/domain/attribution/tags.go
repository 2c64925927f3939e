package attribution

import (
	"regexp"
	"sort"
	"strings"
)

// tagPattern matches "@role-variant" style identities not glued to a
// preceding word, so addresses like a@b-c.com do not count.
var tagPattern = regexp.MustCompile(`(?i)(?:^|[^a-z0-9_.@-])@([a-z0-9]+(?:-[a-z0-9]+)+)`)

// ExtractTags returns the sorted unique lower-case identity tags in texts.
// When known is non-empty, tags outside it are dropped.
func ExtractTags(texts []string, known map[string]struct{}) []string {
	set := make(map[string]struct{})
	for _, text := range texts {
		for _, m := range tagPattern.FindAllStringSubmatch(text, -1) {
			tag := strings.ToLower(m[1])
			if len(known) > 0 {
				if _, ok := known[tag]; !ok {
					continue
				}
			}
			set[tag] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
