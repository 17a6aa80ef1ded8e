package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/pulseflow/internal/logging"
)

// DefaultSelector matches common article containers.
const DefaultSelector = "article, .post, .entry, main, .content"

const (
	titleSelector   = "h1, h2, h3, .title, [class*='title']"
	contentSelector = "p, .summary, .excerpt, .description"
	authorSelector  = ".author, [class*='author'], [rel='author']"
	dateSelector    = ".date, [class*='date'], time"
	maxContentRunes = 500
)

// HTMLProvider extracts items from arbitrary pages with CSS selectors. It
// accepts every URL and is the fallback strategy.
type HTMLProvider struct {
	client   HTTPClient
	renderer Renderer
	detector ShellDetector
	logger   *zap.Logger
}

// HTMLOption customizes an HTMLProvider.
type HTMLOption func(*HTMLProvider)

// WithRenderer re-renders pages that detector judges to be script shells.
func WithRenderer(renderer Renderer, detector ShellDetector) HTMLOption {
	return func(p *HTMLProvider) {
		p.renderer = renderer
		p.detector = detector
	}
}

// WithHTMLLogger sets the logger.
func WithHTMLLogger(logger *zap.Logger) HTMLOption {
	return func(p *HTMLProvider) { p.logger = logging.OrNop(logger).Named("html") }
}

// NewHTMLProvider returns an HTMLProvider fetching through client.
func NewHTMLProvider(client HTTPClient, opts ...HTMLOption) *HTMLProvider {
	p := &HTMLProvider{client: client, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Strategy implements Provider.
func (*HTMLProvider) Strategy() Strategy { return StrategyHTML }

// SkipRobots implements Provider.
func (*HTMLProvider) SkipRobots() bool { return false }

// CanHandle always returns true.
func (*HTMLProvider) CanHandle(string) bool { return true }

// Scrape implements Provider.
func (p *HTMLProvider) Scrape(ctx context.Context, opts Options) ([]Item, error) {
	body, err := p.client.GetText(ctx, opts.URL)
	if err != nil {
		return nil, err
	}
	if p.renderer != nil && p.detector != nil && p.detector.NeedsRender(body) {
		rendered, rerr := p.renderer.Render(ctx, opts.URL)
		if rerr != nil {
			p.logger.Warn("headless render failed; using static body", zap.String("url", opts.URL), zap.Error(rerr))
		} else {
			body = rendered
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", opts.URL, err)
	}
	selector := opts.Selector
	if strings.TrimSpace(selector) == "" {
		selector = DefaultSelector
	}
	base, _ := url.Parse(opts.URL)

	var items []Item
	doc.Find(selector).Each(func(_ int, el *goquery.Selection) {
		if item, ok := extractElement(el, base, opts.URL, selector); ok {
			items = append(items, item)
		}
	})
	if len(items) == 0 {
		items = append(items, pageFallback(doc, opts.URL))
	}
	return items, nil
}

func extractElement(el *goquery.Selection, base *url.URL, pageURL, selector string) (Item, bool) {
	title := firstText(el, titleSelector)
	if title == "" {
		title = firstText(el, "a")
	}
	if title == "" {
		return Item{}, false
	}

	link := pageURL
	if href, ok := el.Find("a[href]").First().Attr("href"); ok {
		link = resolveLink(base, href, pageURL)
	}

	content := firstText(el, contentSelector)
	if content == "" {
		content = truncateRunes(strings.TrimSpace(el.Text()), maxContentRunes)
	}

	item := Item{
		ID:       link,
		Title:    title,
		URL:      link,
		Content:  content,
		Author:   firstText(el, authorSelector),
		Metadata: map[string]any{"selector": selector},
	}

	dateText, _ := el.Find("time").First().Attr("datetime")
	if strings.TrimSpace(dateText) == "" {
		dateText = firstText(el, dateSelector)
	}
	if published, ok := parseLooseDate(dateText); ok {
		item.PublishedAt = &published
	}
	return item, true
}

func pageFallback(doc *goquery.Document, pageURL string) Item {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = firstText(doc.Selection, "h1")
	}
	if title == "" {
		title = "Untitled"
	}
	content, _ := doc.Find("meta[name='description']").First().Attr("content")
	content = strings.TrimSpace(content)
	if content == "" {
		content = firstText(doc.Selection, "p")
	}
	return Item{
		ID:       pageURL,
		Title:    title,
		URL:      pageURL,
		Content:  content,
		Metadata: map[string]any{"fallback": true},
	}
}

func firstText(sel *goquery.Selection, query string) string {
	return strings.TrimSpace(sel.Find(query).First().Text())
}

func resolveLink(base *url.URL, href, fallback string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return fallback
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

var looseDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"02 Jan 2006",
	"01/02/2006",
}

// parseLooseDate tries a handful of common layouts; unknown formats yield false.
func parseLooseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range looseDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
