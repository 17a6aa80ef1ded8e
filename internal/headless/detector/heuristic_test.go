package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeuristic_NeedsRender(t *testing.T) {
	t.Parallel()

	longArticle := "<html><body><article><h1>Title</h1><p>" + strings.Repeat("words ", 500) + "</p></article></body></html>"

	tests := []struct {
		name string
		body string
		want bool
	}{
		{"empty body", "   ", true},
		{"next shell", `<html><body><div id="__next"></div></body></html>`, true},
		{"angular shell", `<app-root ng-version="17.0.0"></app-root>`, true},
		{"script heavy small page", `<html><script>var a=1;</script><p>t</p></html>`, true},
		{"unterminated script", `<p>x</p><script>window.boot(`, true},
		{"static article", longArticle, false},
		{"small static page", `<html><body><h1>Hello</h1><p>plain text here</p></body></html>`, false},
	}

	h := NewHeuristic(1000)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, h.NeedsRender(tc.body))
		})
	}
}

func TestNewHeuristicDefaultThreshold(t *testing.T) {
	t.Parallel()
	require.Equal(t, DefaultThreshold, NewHeuristic(0).BodyLengthThreshold)
	require.Equal(t, 10, NewHeuristic(10).BodyLengthThreshold)
}
