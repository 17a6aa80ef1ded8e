// Package ratelimit enforces a minimum delay between requests to the same domain.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/pulseflow/internal/metrics"
)

// Limiter manages per-domain rate limits. Each domain gets its own token
// bucket with a burst of one, so the first request to a domain is immediate
// and later requests are spaced by the caller's minimum delay.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a new Limiter.
func New() *Limiter {
	return &Limiter{limiters: make(map[string]*rate.Limiter)}
}

// Wait blocks until minDelay has elapsed since the previous request to the
// hostname of rawURL. The slot is reserved before sleeping, so concurrent
// callers for one domain queue behind each other.
func (l *Limiter) Wait(ctx context.Context, rawURL string, minDelay time.Duration) error {
	domain := Domain(rawURL)

	l.mu.Lock()
	limiter, exists := l.limiters[domain]
	if !exists {
		limiter = rate.NewLimiter(rate.Every(minDelay), 1)
		l.limiters[domain] = limiter
	}
	now := time.Now()
	limiter.SetLimitAt(now, rate.Every(minDelay))
	reservation := limiter.ReserveN(now, 1)
	l.mu.Unlock()

	delay := reservation.DelayFrom(now)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		reservation.Cancel()
		return fmt.Errorf("rate limit wait: %w", ctx.Err())
	case <-timer.C:
	}
	metrics.ObserveRateLimitDelay(domain, delay)
	return nil
}

// Reset forgets every domain.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiters = make(map[string]*rate.Limiter)
}

// Domain returns the lowercase hostname of rawURL, or "unknown" when it
// cannot be parsed.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
