// Package detector decides when a statically fetched page is a JavaScript
// shell that needs a browser render before extraction.
package detector

import (
	"strings"
)

// DefaultThreshold is the body size below which script-heavy pages are
// treated as shells.
const DefaultThreshold = 2048

// Heuristic implements a handful of rule-based checks.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var shellMarkers = []string{
	`id="__next"`,
	`id="__nuxt"`,
	`id="root"></div>`,
	`id="app"></div>`,
	`data-reactroot`,
	`ng-version=`,
	`enable javascript`,
}

// NeedsRender reports whether body looks like a client-rendered shell.
func (h *Heuristic) NeedsRender(body string) bool {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return true
	}
	lower := strings.ToLower(trimmed)
	if len(lower) < h.BodyLengthThreshold && scriptShare(lower) >= 25 {
		return true
	}
	for _, marker := range shellMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// scriptShare returns the percentage of lower covered by <script> elements.
// Unterminated tags count to the end of the document.
func scriptShare(lower string) int {
	total := len(lower)
	covered := 0
	rest := lower
	for {
		start := strings.Index(rest, "<script")
		if start == -1 {
			break
		}
		rest = rest[start:]
		end := strings.Index(rest, "</script>")
		if end == -1 {
			covered += len(rest)
			break
		}
		end += len("</script>")
		covered += end
		rest = rest[end:]
	}
	return covered * 100 / total
}
