package scraper

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// RSSProvider reads RSS and Atom feeds.
type RSSProvider struct {
	client HTTPClient
}

// NewRSSProvider returns an RSSProvider fetching through client.
func NewRSSProvider(client HTTPClient) *RSSProvider {
	return &RSSProvider{client: client}
}

// Strategy implements Provider.
func (*RSSProvider) Strategy() Strategy { return StrategyRSS }

// SkipRobots implements Provider.
func (*RSSProvider) SkipRobots() bool { return false }

// CanHandle reports whether rawURL looks like a feed.
func (*RSSProvider) CanHandle(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	return strings.Contains(lower, "/feed") ||
		strings.Contains(lower, "/rss") ||
		strings.HasSuffix(lower, ".xml") ||
		strings.Contains(lower, "atom")
}

// Scrape implements Provider.
func (p *RSSProvider) Scrape(ctx context.Context, opts Options) ([]Item, error) {
	body, err := p.client.GetText(ctx, opts.URL)
	if err != nil {
		return nil, err
	}
	feed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", opts.URL, err)
	}

	items := make([]Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry == nil {
			continue
		}
		items = append(items, feedItem(entry, opts.URL))
	}
	return items, nil
}

func feedItem(entry *gofeed.Item, feedURL string) Item {
	item := Item{
		Title: strings.TrimSpace(entry.Title),
		URL:   strings.TrimSpace(entry.Link),
	}
	if item.Title == "" {
		item.Title = "Untitled"
	}
	item.ID = item.URL
	if item.ID == "" {
		item.ID = entry.GUID
	}
	if item.URL == "" {
		item.URL = feedURL
	}

	content := entry.Description
	if strings.TrimSpace(content) == "" {
		content = entry.Content
	}
	item.Content = plainText(content)

	switch {
	case entry.Author != nil && entry.Author.Name != "":
		item.Author = entry.Author.Name
	case len(entry.Authors) > 0 && entry.Authors[0] != nil:
		item.Author = entry.Authors[0].Name
	}

	if entry.PublishedParsed != nil {
		published := *entry.PublishedParsed
		item.PublishedAt = &published
	} else if entry.UpdatedParsed != nil {
		updated := *entry.UpdatedParsed
		item.PublishedAt = &updated
	}

	metadata := map[string]any{}
	if entry.GUID != "" {
		metadata["guid"] = entry.GUID
	}
	if len(entry.Categories) > 0 {
		metadata["categories"] = entry.Categories
	}
	if len(metadata) > 0 {
		item.Metadata = metadata
	}
	return item
}

// plainText strips markup from a feed fragment.
func plainText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" || !strings.Contains(fragment, "<") {
		return fragment
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
