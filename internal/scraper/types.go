// Package scraper turns a monitored URL into a list of items using one of
// several extraction strategies.
package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/pulseflow/internal/changes"
)

// Strategy names an extraction method.
type Strategy string

// Supported strategies. StrategyAuto is resolved to one of the others by URL.
const (
	StrategyRSS        Strategy = "RSS"
	StrategyReddit     Strategy = "REDDIT"
	StrategyHackerNews Strategy = "HACKERNEWS"
	StrategyHTML       Strategy = "HTML"
	StrategyAuto       Strategy = "AUTO"
)

// ParseStrategy converts s (case-insensitive) into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch strategy := Strategy(strings.ToUpper(strings.TrimSpace(s))); strategy {
	case StrategyRSS, StrategyReddit, StrategyHackerNews, StrategyHTML, StrategyAuto:
		return strategy, nil
	default:
		return "", fmt.Errorf("unknown strategy %q", s)
	}
}

// Item is one extracted content unit.
type Item struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	URL         string         `json:"url"`
	Content     string         `json:"content,omitempty"`
	Author      string         `json:"author,omitempty"`
	PublishedAt *time.Time     `json:"publishedAt,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Comparable maps the item onto the shape used for change detection. The
// identity is the item ID, or its URL when no ID was extracted.
func (i Item) Comparable() changes.Item {
	id := i.ID
	if id == "" {
		id = i.URL
	}
	out := changes.Item{ID: id, Title: i.Title}
	if i.Content != "" {
		content := i.Content
		out.Content = &content
	}
	if i.URL != "" {
		u := i.URL
		out.URL = &u
	}
	if i.Author != "" {
		author := i.Author
		out.Author = &author
	}
	return out
}

// Comparables maps every item with Comparable.
func Comparables(items []Item) []changes.Item {
	out := make([]changes.Item, 0, len(items))
	for _, item := range items {
		out = append(out, item.Comparable())
	}
	return out
}

// Options describes one scrape.
type Options struct {
	URL        string
	DryRun     bool
	Selector   string
	Delay      time.Duration
	MaxRetries int
}

// Result is the outcome of a successful scrape.
type Result struct {
	Items     []Item    `json:"items"`
	ScrapedAt time.Time `json:"scrapedAt"`
	URL       string    `json:"url"`
	Provider  Strategy  `json:"provider"`
	DryRun    bool      `json:"dryRun"`
}

// Provider extracts items for a single strategy. Scrape performs the raw
// extraction only; blocking, robots, rate limiting and retries belong to
// the Executor.
type Provider interface {
	Strategy() Strategy
	CanHandle(rawURL string) bool
	SkipRobots() bool
	Scrape(ctx context.Context, opts Options) ([]Item, error)
}

// HTTPClient fetches remote documents.
type HTTPClient interface {
	GetText(ctx context.Context, url string) (string, error)
	GetJSON(ctx context.Context, url string, out any) error
}

// RobotsChecker answers robots.txt questions.
type RobotsChecker interface {
	IsAllowed(ctx context.Context, rawURL string) bool
}

// RateLimiter spaces requests to the same domain.
type RateLimiter interface {
	Wait(ctx context.Context, rawURL string, minDelay time.Duration) error
}

// Renderer returns a page's DOM after client-side scripts have run.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// ShellDetector reports whether a static body needs rendering.
type ShellDetector interface {
	NeedsRender(body string) bool
}
