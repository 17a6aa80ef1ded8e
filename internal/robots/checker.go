// Package robots decides whether a URL may be fetched according to the
// origin's robots.txt.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/JakeFAU/pulseflow/internal/logging"
	"github.com/JakeFAU/pulseflow/internal/metrics"
)

const (
	// DefaultTimeout bounds a robots.txt fetch.
	DefaultTimeout = 5 * time.Second
	// DefaultTTL is how long a fetched robots.txt stays cached.
	DefaultTTL = time.Hour

	maxRobotsBytes = 1 << 20
)

// Options configures a Checker.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	TTL       time.Duration
	Cache     Cache
	Client    *http.Client
	Logger    *zap.Logger
}

// Checker enforces robots.txt directives per origin. Failures to fetch or
// parse a robots.txt allow the request.
type Checker struct {
	userAgent string
	ttl       time.Duration
	cache     Cache
	client    *http.Client
	logger    *zap.Logger
}

// NewChecker builds a Checker, filling defaults for zero options.
func NewChecker(opts Options) *Checker {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cache := opts.Cache
	if cache == nil {
		cache = NewMemoryCache()
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	client = &http.Client{
		Transport:     client.Transport,
		CheckRedirect: client.CheckRedirect,
		Jar:           client.Jar,
		Timeout:       timeout,
	}
	return &Checker{
		userAgent: opts.UserAgent,
		ttl:       ttl,
		cache:     cache,
		client:    client,
		logger:    logging.OrNop(opts.Logger).Named("robots"),
	}
}

// IsAllowed reports whether rawURL may be fetched by this service's user agent.
func (c *Checker) IsAllowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return true
	}
	origin := parsed.Scheme + "://" + strings.ToLower(parsed.Host)

	body, err := c.load(ctx, origin)
	if err != nil {
		c.logger.Warn("robots check failed; allowing access", zap.String("origin", origin), zap.Error(err))
		metrics.ObserveRobotsDecision("error")
		return true
	}
	data, err := robotstxt.FromString(body)
	if err != nil {
		c.logger.Warn("robots parse failed; allowing access", zap.String("origin", origin), zap.Error(err))
		metrics.ObserveRobotsDecision("error")
		return true
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	if parsed.RawQuery != "" {
		path += "?" + parsed.RawQuery
	}
	group := data.FindGroup(c.userAgent)
	if group == nil || group.Test(path) {
		metrics.ObserveRobotsDecision("allowed")
		return true
	}
	c.logger.Debug("robots disallowed", zap.String("url", rawURL))
	metrics.ObserveRobotsDecision("disallowed")
	return false
}

func (c *Checker) load(ctx context.Context, origin string) (string, error) {
	body, ok, err := c.cache.Get(ctx, origin)
	if err != nil {
		c.logger.Warn("robots cache read failed", zap.String("origin", origin), zap.Error(err))
	} else if ok {
		return body, nil
	}

	body, err = c.fetch(ctx, origin)
	if err != nil {
		return "", err
	}
	if _, err := robotstxt.FromString(body); err != nil {
		return "", fmt.Errorf("parse robots: %w", err)
	}
	if err := c.cache.Set(ctx, origin, body, c.ttl); err != nil {
		c.logger.Warn("robots cache write failed", zap.String("origin", origin), zap.Error(err))
	}
	return body, nil
}

func (c *Checker) fetch(ctx context.Context, origin string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return "", fmt.Errorf("new robots request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("failed to close robots response body", zap.Error(cerr))
		}
	}()
	// Anything but 200 means the origin has no rules for us.
	if resp.StatusCode != http.StatusOK {
		return "", nil
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return "", fmt.Errorf("read robots body: %w", err)
	}
	return string(raw), nil
}
