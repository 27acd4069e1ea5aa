package filter

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/adwatch/adwatch/app/config"
)

// Accepts reports whether a listing title passes the filter spec. Every
// level must have at least one matching keyword (levels are AND-ed,
// keywords within a level are OR-ed). Matching is a case-insensitive
// substring check. An empty spec and a level without keywords both pass.
func Accepts(title string, spec config.FilterSpec) bool {
	if len(spec) == 0 {
		return true
	}

	normalized := normalize(title)

	for _, level := range spec {
		if len(level.Keywords) == 0 {
			continue
		}

		matched := false
		for _, keyword := range level.Keywords {
			if strings.Contains(normalized, normalize(keyword)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	return true
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}
