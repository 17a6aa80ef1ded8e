package scraper

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_ResolveDefaults(t *testing.T) {
	t.Parallel()

	r := NewDefaultRegistry(newFakeHTTP(nil), ProviderConfig{})
	tests := []struct {
		url  string
		want Strategy
	}{
		{"https://reddit.com/r/test", StrategyReddit},
		{"https://www.REDDIT.com/r/golang/", StrategyReddit},
		{"https://news.ycombinator.com/newest", StrategyHackerNews},
		{"https://hn.algolia.com/?q=go", StrategyHackerNews},
		{"https://a.com/feed", StrategyRSS},
		{"https://a.com/feed/", StrategyRSS},
		{"https://a.com/rss", StrategyRSS},
		{"https://a.com/index.xml", StrategyRSS},
		{"https://a.com/atom", StrategyRSS},
		{"https://a.com/blog", StrategyHTML},
		{"https://a.com/feedback", StrategyHTML},
	}
	for _, tc := range tests {
		t.Run(tc.url, func(t *testing.T) {
			require.Equal(t, tc.want, r.Resolve(tc.url))
		})
	}
}

func TestRegistry_RegisterPrepends(t *testing.T) {
	t.Parallel()

	r := NewDefaultRegistry(newFakeHTTP(nil), ProviderConfig{})
	require.Equal(t, StrategyReddit, r.Resolve("https://reddit.com/r/golang/feed"))

	require.NoError(t, r.Register(`/r/golang/feed$`, StrategyRSS))
	require.Equal(t, StrategyRSS, r.Resolve("https://reddit.com/r/golang/feed"))
	require.Equal(t, StrategyReddit, r.Resolve("https://reddit.com/r/other"))

	require.Error(t, r.Register(`(`, StrategyRSS))
	require.Error(t, r.Register(`x`, StrategyAuto))
}

func TestRegistry_ForStrategy(t *testing.T) {
	t.Parallel()

	r := NewDefaultRegistry(newFakeHTTP(nil), ProviderConfig{})
	for _, s := range []Strategy{StrategyRSS, StrategyReddit, StrategyHackerNews, StrategyHTML} {
		p, err := r.ForStrategy(s)
		require.NoError(t, err)
		require.Equal(t, s, p.Strategy())
	}

	_, err := r.ForStrategy(StrategyAuto)
	require.Error(t, err)

	p, err := r.ForSignal(StrategyAuto, "https://a.com/feed")
	require.NoError(t, err)
	require.Equal(t, StrategyRSS, p.Strategy())

	p, err = r.ForSignal(StrategyHTML, "https://a.com/feed")
	require.NoError(t, err)
	require.Equal(t, StrategyHTML, p.Strategy())

	_, err = NewRegistry().ForURL("https://a.com")
	require.Error(t, err)
}

func TestParseStrategy(t *testing.T) {
	t.Parallel()

	s, err := ParseStrategy(" hackernews ")
	require.NoError(t, err)
	require.Equal(t, StrategyHackerNews, s)

	_, err = ParseStrategy("ftp")
	require.Error(t, err)
}
