package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
<channel>
  <title>Example Blog</title>
  <link>https://blog.example.com</link>
  <item>
    <title>Release 1.2</title>
    <link>https://blog.example.com/posts/1-2</link>
    <guid>post-12</guid>
    <description>&lt;p&gt;We shipped &lt;b&gt;1.2&lt;/b&gt;.&lt;/p&gt;</description>
    <dc:creator>Alex</dc:creator>
    <category>releases</category>
    <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
  </item>
  <item>
    <guid>only-guid</guid>
  </item>
</channel>
</rss>`

func TestRSSProvider_Scrape(t *testing.T) {
	t.Parallel()

	feedURL := "https://blog.example.com/feed"
	p := NewRSSProvider(newFakeHTTP(map[string]string{feedURL: rssFixture}))

	items, err := p.Scrape(context.Background(), Options{URL: feedURL})
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := items[0]
	require.Equal(t, "Release 1.2", first.Title)
	require.Equal(t, "https://blog.example.com/posts/1-2", first.URL)
	require.Equal(t, first.URL, first.ID)
	require.Equal(t, "We shipped 1.2.", first.Content)
	require.Equal(t, "Alex", first.Author)
	require.NotNil(t, first.PublishedAt)
	require.Equal(t, 2006, first.PublishedAt.Year())
	require.Equal(t, "post-12", first.Metadata["guid"])
	require.Equal(t, []string{"releases"}, first.Metadata["categories"])

	second := items[1]
	require.Equal(t, "Untitled", second.Title)
	require.Equal(t, feedURL, second.URL)
	require.Equal(t, "only-guid", second.ID)
}

func TestRSSProvider_CanHandle(t *testing.T) {
	t.Parallel()

	p := NewRSSProvider(nil)
	require.True(t, p.CanHandle("https://a.com/feed/posts"))
	require.True(t, p.CanHandle("https://a.com/RSS"))
	require.True(t, p.CanHandle("https://a.com/index.xml"))
	require.True(t, p.CanHandle("https://a.com/atom.php"))
	require.False(t, p.CanHandle("https://a.com/blog"))
}

func TestRSSProvider_InvalidFeed(t *testing.T) {
	t.Parallel()

	p := NewRSSProvider(newFakeHTTP(map[string]string{"https://a.com/feed": "not a feed"}))
	_, err := p.Scrape(context.Background(), Options{URL: "https://a.com/feed"})
	require.ErrorContains(t, err, "parse feed")
}

const redditFixture = `{"data":{"children":[
 {"data":{"title":"Go 1.25 released","url":"https://go.dev/blog/go1.25","selftext":"","author":"gopher","created_utc":1700000000,
  "permalink":"/r/golang/comments/abc/go_125/","score":420,"num_comments":69,"subreddit":"golang","is_self":false}},
 {"data":{"title":"Ask: generics?","url":"https://www.reddit.com/r/golang/comments/def/ask/","selftext":"What do you think?","author":"newbie",
  "created_utc":1700000100,"permalink":"/r/golang/comments/def/ask/","score":3,"num_comments":1,"subreddit":"golang","is_self":true}}
]}}`

func TestRedditProvider_Scrape(t *testing.T) {
	t.Parallel()

	listing := "https://old.reddit.com/r/golang.json?raw_json=1"
	client := newFakeHTTP(map[string]string{listing: redditFixture})
	p := NewRedditProvider(client, "")

	items, err := p.Scrape(context.Background(), Options{URL: "https://www.reddit.com/r/golang/"})
	require.NoError(t, err)
	require.Equal(t, []string{listing}, client.Calls())
	require.Len(t, items, 2)

	require.Equal(t, "https://reddit.com/r/golang/comments/abc/go_125/", items[0].URL)
	require.Equal(t, items[0].URL, items[0].ID)
	require.Equal(t, "gopher", items[0].Author)
	require.Equal(t, time.Unix(1700000000, 0).UTC(), *items[0].PublishedAt)
	require.Equal(t, 420, items[0].Metadata["score"])
	require.Equal(t, 69, items[0].Metadata["numComments"])
	require.Equal(t, "golang", items[0].Metadata["subreddit"])
	require.Equal(t, "https://go.dev/blog/go1.25", items[0].Metadata["originalUrl"])

	require.Equal(t, "What do you think?", items[1].Content)
	require.NotContains(t, items[1].Metadata, "originalUrl")
}

func TestRedditProvider_ListingURL(t *testing.T) {
	t.Parallel()

	p := NewRedditProvider(nil, "reddit.internal")
	got, err := p.ListingURL("https://reddit.com/r/golang/top.json?t=day")
	require.NoError(t, err)
	require.Equal(t, "https://reddit.internal/r/golang/top.json?raw_json=1&t=day", got)

	require.True(t, p.SkipRobots())
	require.True(t, p.CanHandle("https://old.reddit.com/r/x"))
	require.False(t, p.CanHandle("https://example.com/reddit"))
}

const hnFixture = `{"hits":[
 {"objectID":"1","title":"Show HN: PulseFlow","url":"https://pulseflow.app","author":"pg","created_at":"2024-05-01T10:00:00Z","points":100,"num_comments":20},
 {"objectID":"2","title":"Ask HN: Best Go books?","author":"dang","created_at":"2024-05-01T11:00:00Z","points":5,"num_comments":3,"story_text":"Looking for recs"}
]}`

func TestHackerNewsProvider_QueryURL(t *testing.T) {
	t.Parallel()

	p := NewHackerNewsProvider(nil, "")
	tests := []struct {
		url  string
		want string
	}{
		{"https://news.ycombinator.com/newest", DefaultHackerNewsAPI + "/search_by_date?hitsPerPage=30&tags=story"},
		{"https://news.ycombinator.com/show", DefaultHackerNewsAPI + "/search?hitsPerPage=30&tags=show_hn"},
		{"https://news.ycombinator.com/ask", DefaultHackerNewsAPI + "/search?hitsPerPage=30&tags=ask_hn"},
		{"https://hn.algolia.com/?q=go+generics", DefaultHackerNewsAPI + "/search?hitsPerPage=30&query=go+generics"},
		{"https://news.ycombinator.com/", DefaultHackerNewsAPI + "/search?hitsPerPage=30&tags=front_page"},
	}
	for _, tc := range tests {
		t.Run(tc.url, func(t *testing.T) {
			got, err := p.QueryURL(tc.url)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestHackerNewsProvider_Scrape(t *testing.T) {
	t.Parallel()

	api := "https://hn.test/api/v1"
	client := newFakeHTTP(map[string]string{api + "/search?hitsPerPage=30&tags=front_page": hnFixture})
	p := NewHackerNewsProvider(client, api+"/")

	items, err := p.Scrape(context.Background(), Options{URL: "https://news.ycombinator.com"})
	require.NoError(t, err)
	require.Len(t, items, 2)

	require.Equal(t, "https://pulseflow.app", items[0].URL)
	require.Equal(t, 100, items[0].Metadata["points"])
	require.Equal(t, "https://news.ycombinator.com/item?id=1", items[0].Metadata["hnUrl"])
	require.Equal(t, 2024, items[0].PublishedAt.Year())

	require.Equal(t, "https://news.ycombinator.com/item?id=2", items[1].URL)
	require.Equal(t, "Looking for recs", items[1].Content)
	require.Equal(t, "2", items[1].Metadata["objectId"])
}

const blogFixture = `<html><head><title>Example Blog</title></head><body>
<article>
  <h2 class="post-title">First post</h2>
  <a href="/posts/first">Read more</a>
  <p>Intro paragraph.</p>
  <span class="author">Sam</span>
  <time datetime="2024-03-01T09:00:00Z">March 1</time>
</article>
<article>
  <h2>Second post</h2>
  <a href="https://other.example.com/second">link</a>
  <span class="post-date">Jan 2, 2024</span>
</article>
<article><div>no heading or link here</div></article>
</body></html>`

func TestHTMLProvider_ExtractsArticles(t *testing.T) {
	t.Parallel()

	pageURL := "https://blog.example.com/index.html"
	p := NewHTMLProvider(newFakeHTTP(map[string]string{pageURL: blogFixture}))

	items, err := p.Scrape(context.Background(), Options{URL: pageURL})
	require.NoError(t, err)
	require.Len(t, items, 2)

	require.Equal(t, "First post", items[0].Title)
	require.Equal(t, "https://blog.example.com/posts/first", items[0].URL)
	require.Equal(t, "Intro paragraph.", items[0].Content)
	require.Equal(t, "Sam", items[0].Author)
	require.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), items[0].PublishedAt.UTC())
	require.Equal(t, DefaultSelector, items[0].Metadata["selector"])

	require.Equal(t, "https://other.example.com/second", items[1].URL)
	require.Equal(t, 2024, items[1].PublishedAt.Year())
	require.Contains(t, items[1].Content, "Second post")
}

func TestHTMLProvider_Fallback(t *testing.T) {
	t.Parallel()

	pageURL := "https://static.example.com"
	page := `<html><head><title>Landing</title><meta name="description" content="The landing page"></head>
<body><div><span>nothing matches</span></div></body></html>`
	p := NewHTMLProvider(newFakeHTTP(map[string]string{pageURL: page}))

	items, err := p.Scrape(context.Background(), Options{URL: pageURL, Selector: ".does-not-exist"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Landing", items[0].Title)
	require.Equal(t, "The landing page", items[0].Content)
	require.Equal(t, pageURL, items[0].URL)
	require.Equal(t, true, items[0].Metadata["fallback"])
}

type stubRenderer struct {
	html  string
	err   error
	calls int
}

func (s *stubRenderer) Render(context.Context, string) (string, error) {
	s.calls++
	return s.html, s.err
}

type stubDetector bool

func (s stubDetector) NeedsRender(string) bool { return bool(s) }

func TestHTMLProvider_RendersShells(t *testing.T) {
	t.Parallel()

	pageURL := "https://spa.example.com"
	client := newFakeHTTP(map[string]string{pageURL: `<div id="__next"></div>`})
	renderer := &stubRenderer{html: `<main><h1>Rendered</h1><p>Body</p></main>`}
	p := NewHTMLProvider(client, WithRenderer(renderer, stubDetector(true)))

	items, err := p.Scrape(context.Background(), Options{URL: pageURL})
	require.NoError(t, err)
	require.Equal(t, 1, renderer.calls)
	require.Equal(t, "Rendered", items[0].Title)

	failing := &stubRenderer{err: errors.New("no chrome")}
	p = NewHTMLProvider(client, WithRenderer(failing, stubDetector(true)))
	items, err = p.Scrape(context.Background(), Options{URL: pageURL})
	require.NoError(t, err)
	require.Equal(t, true, items[0].Metadata["fallback"])
}

func TestParseLooseDate(t *testing.T) {
	t.Parallel()

	_, ok := parseLooseDate("yesterday-ish")
	require.False(t, ok)
	d, ok := parseLooseDate("2024-02-29")
	require.True(t, ok)
	require.Equal(t, time.February, d.Month())
}

func TestItemComparable(t *testing.T) {
	t.Parallel()

	c := Item{Title: "t", URL: "https://a.com/x", Content: "body"}.Comparable()
	require.Equal(t, "https://a.com/x", c.ID)
	require.Equal(t, "body", *c.Content)
	require.Nil(t, c.Author)

	c = Item{ID: "guid", URL: "https://a.com"}.Comparable()
	require.Equal(t, "guid", c.ID)
	require.Nil(t, c.Content)
}
