package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultHackerNewsAPI is the Algolia search API base.
const DefaultHackerNewsAPI = "https://hn.algolia.com/api/v1"

const hnHitsPerPage = "30"

// HackerNewsProvider reads Hacker News listings through the Algolia API.
type HackerNewsProvider struct {
	client  HTTPClient
	apiBase string
}

// NewHackerNewsProvider returns a HackerNewsProvider. An empty apiBase
// uses DefaultHackerNewsAPI.
func NewHackerNewsProvider(client HTTPClient, apiBase string) *HackerNewsProvider {
	if apiBase == "" {
		apiBase = DefaultHackerNewsAPI
	}
	return &HackerNewsProvider{client: client, apiBase: strings.TrimSuffix(apiBase, "/")}
}

// Strategy implements Provider.
func (*HackerNewsProvider) Strategy() Strategy { return StrategyHackerNews }

// SkipRobots implements Provider.
func (*HackerNewsProvider) SkipRobots() bool { return false }

// CanHandle reports whether rawURL points at Hacker News or its search API.
func (*HackerNewsProvider) CanHandle(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return strings.Contains(host, "news.ycombinator.com") || strings.Contains(host, "hn.algolia.com")
}

type hnSearchResult struct {
	Hits []struct {
		ObjectID    string `json:"objectID"`
		Title       string `json:"title"`
		URL         string `json:"url"`
		Author      string `json:"author"`
		CreatedAt   string `json:"created_at"`
		Points      int    `json:"points"`
		NumComments int    `json:"num_comments"`
		StoryText   string `json:"story_text"`
	} `json:"hits"`
}

// Scrape implements Provider.
func (p *HackerNewsProvider) Scrape(ctx context.Context, opts Options) ([]Item, error) {
	apiURL, err := p.QueryURL(opts.URL)
	if err != nil {
		return nil, err
	}
	var result hnSearchResult
	if err := p.client.GetJSON(ctx, apiURL, &result); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(result.Hits))
	for _, hit := range result.Hits {
		discussion := "https://news.ycombinator.com/item?id=" + hit.ObjectID
		link := hit.URL
		if link == "" {
			link = discussion
		}
		item := Item{
			ID:      link,
			Title:   hit.Title,
			URL:     link,
			Content: hit.StoryText,
			Author:  hit.Author,
			Metadata: map[string]any{
				"objectId":    hit.ObjectID,
				"points":      hit.Points,
				"numComments": hit.NumComments,
				"hnUrl":       discussion,
			},
		}
		if created, err := time.Parse(time.RFC3339, hit.CreatedAt); err == nil {
			item.PublishedAt = &created
		}
		items = append(items, item)
	}
	return items, nil
}

// QueryURL maps a Hacker News page URL onto the matching search API call.
func (p *HackerNewsProvider) QueryURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse hacker news url %q: %w", rawURL, err)
	}
	endpoint := "search"
	q := url.Values{}
	switch {
	case strings.Contains(u.Path, "/newest"):
		endpoint = "search_by_date"
		q.Set("tags", "story")
	case strings.Contains(u.Path, "/show"):
		q.Set("tags", "show_hn")
	case strings.Contains(u.Path, "/ask"):
		q.Set("tags", "ask_hn")
	case u.Query().Get("q") != "":
		q.Set("query", u.Query().Get("q"))
	default:
		q.Set("tags", "front_page")
	}
	q.Set("hitsPerPage", hnHitsPerPage)
	return p.apiBase + "/" + endpoint + "?" + q.Encode(), nil
}
