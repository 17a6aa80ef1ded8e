package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultRedditHost serves listings without the main site's bot wall.
const DefaultRedditHost = "old.reddit.com"

// RedditProvider reads subreddit and thread listings through the JSON API.
type RedditProvider struct {
	client HTTPClient
	host   string
}

// NewRedditProvider returns a RedditProvider. An empty host uses DefaultRedditHost.
func NewRedditProvider(client HTTPClient, host string) *RedditProvider {
	if host == "" {
		host = DefaultRedditHost
	}
	return &RedditProvider{client: client, host: host}
}

// Strategy implements Provider.
func (*RedditProvider) Strategy() Strategy { return StrategyReddit }

// SkipRobots is true: the listing API is structured data and reddit's
// robots.txt blocks every generic agent.
func (*RedditProvider) SkipRobots() bool { return true }

// CanHandle reports whether rawURL is on a reddit.com host.
func (*RedditProvider) CanHandle(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Hostname()), "reddit.com")
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Selftext    string  `json:"selftext"`
	Author      string  `json:"author"`
	CreatedUTC  float64 `json:"created_utc"`
	Permalink   string  `json:"permalink"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	Subreddit   string  `json:"subreddit"`
	IsSelf      bool    `json:"is_self"`
}

// Scrape implements Provider.
func (p *RedditProvider) Scrape(ctx context.Context, opts Options) ([]Item, error) {
	listingURL, err := p.ListingURL(opts.URL)
	if err != nil {
		return nil, err
	}
	var listing redditListing
	if err := p.client.GetJSON(ctx, listingURL, &listing); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		post := child.Data
		link := "https://reddit.com" + post.Permalink
		published := time.Unix(int64(post.CreatedUTC), 0).UTC()
		metadata := map[string]any{
			"score":       post.Score,
			"numComments": post.NumComments,
			"subreddit":   post.Subreddit,
		}
		if !post.IsSelf && post.URL != "" {
			metadata["originalUrl"] = post.URL
		}
		items = append(items, Item{
			ID:          link,
			Title:       post.Title,
			URL:         link,
			Content:     post.Selftext,
			Author:      post.Author,
			PublishedAt: &published,
			Metadata:    metadata,
		})
	}
	return items, nil
}

// ListingURL rewrites a reddit page URL into its JSON listing on the
// configured host.
func (p *RedditProvider) ListingURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse reddit url %q: %w", rawURL, err)
	}
	u.Scheme = "https"
	u.Host = p.host
	path := strings.TrimSuffix(u.Path, "/")
	if !strings.HasSuffix(path, ".json") {
		path += ".json"
	}
	u.Path = path
	u.RawPath = ""
	q := u.Query()
	q.Set("raw_json", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
