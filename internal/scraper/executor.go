package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pulseflow/internal/apperr"
	"github.com/JakeFAU/pulseflow/internal/logging"
	"github.com/JakeFAU/pulseflow/internal/metrics"
	"github.com/JakeFAU/pulseflow/internal/retry"
)

// DefaultDelay is the minimum spacing between requests to one domain.
const DefaultDelay = 2 * time.Second

// Executor applies the cross-cutting scrape policy around a Provider:
// dry run, blocked domains, robots.txt, per-domain rate limiting and retry.
type Executor struct {
	robots     RobotsChecker
	limiter    RateLimiter
	blocklist  *Blocklist
	delay      time.Duration
	maxRetries int
	sleep      retry.SleepFunc
	now        func() time.Time
	logger     *zap.Logger
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithBlockedDomains replaces the default blocked domain list.
func WithBlockedDomains(domains []string) ExecutorOption {
	return func(e *Executor) { e.blocklist = NewBlocklist(domains) }
}

// WithDefaultDelay sets the rate limit delay used when Options.Delay is zero.
func WithDefaultDelay(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.delay = d
		}
	}
}

// WithMaxRetries sets the attempt ceiling used when Options.MaxRetries is zero.
func WithMaxRetries(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(sleep retry.SleepFunc) ExecutorOption {
	return func(e *Executor) { e.sleep = sleep }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logging.OrNop(logger).Named("scraper") }
}

// NewExecutor builds an Executor around a robots checker and rate limiter.
func NewExecutor(robots RobotsChecker, limiter RateLimiter, opts ...ExecutorOption) *Executor {
	e := &Executor{
		robots:     robots,
		limiter:    limiter,
		blocklist:  NewBlocklist(DefaultBlockedDomains),
		delay:      DefaultDelay,
		maxRetries: retry.DefaultAttempts,
		sleep:      retry.Pause,
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute scrapes opts.URL with p.
func (e *Executor) Execute(ctx context.Context, p Provider, opts Options) (Result, error) {
	strategy := p.Strategy()
	logger := e.logger.With(zap.String("url", opts.URL), zap.String("strategy", string(strategy)))

	if opts.DryRun {
		logger.Info("dry run; skipping scrape")
		return Result{Items: []Item{}, ScrapedAt: e.now(), URL: opts.URL, Provider: strategy, DryRun: true}, nil
	}

	if domain, blocked := e.blocklist.Match(opts.URL); blocked {
		metrics.ObserveScrape(string(strategy), "blocked", 0)
		return Result{}, apperr.New(apperr.KindBlockedDomain, "Domain is blocked: %s", domain)
	}

	if !p.SkipRobots() && e.robots != nil && !e.robots.IsAllowed(ctx, opts.URL) {
		metrics.ObserveScrape(string(strategy), "robots_disallowed", 0)
		return Result{}, apperr.New(apperr.KindRobotsDisallowed, "URL disallowed by robots.txt: %s", opts.URL)
	}

	delay := opts.Delay
	if delay <= 0 {
		delay = e.delay
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, opts.URL, delay); err != nil {
			return Result{}, fmt.Errorf("wait for %s: %w", opts.URL, err)
		}
	}

	attempts := opts.MaxRetries
	if attempts <= 0 {
		attempts = e.maxRetries
	}
	policy := retry.Policy{
		Attempts: attempts,
		Sleep:    e.sleep,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			logger.Warn("scrape attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", attempts),
				zap.Duration("backoff", wait),
				zap.Error(err),
			)
		},
	}

	start := time.Now()
	items, err := retry.Do(ctx, policy, func(ctx context.Context, _ int) ([]Item, error) {
		return p.Scrape(ctx, opts)
	})
	if err != nil {
		metrics.ObserveScrape(string(strategy), "failed", time.Since(start))
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			return Result{}, apperr.Wrap(apperr.KindScrapeFailed, exhausted.Last,
				"Scrape failed after %d retries: %v", exhausted.Attempts, exhausted.Last)
		}
		return Result{}, fmt.Errorf("scrape %s: %w", opts.URL, err)
	}
	if items == nil {
		items = []Item{}
	}
	metrics.ObserveScrape(string(strategy), "success", time.Since(start))
	logger.Debug("scrape succeeded", zap.Int("items", len(items)))

	return Result{Items: items, ScrapedAt: e.now(), URL: opts.URL, Provider: strategy}, nil
}
