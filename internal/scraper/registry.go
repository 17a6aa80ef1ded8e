package scraper

import (
	"fmt"
	"regexp"
	"sync"
)

// Rule maps URLs matching Pattern to Strategy.
type Rule struct {
	Pattern  *regexp.Regexp
	Strategy Strategy
}

// DefaultRules returns the built-in resolution table in priority order.
// URLs matching none of them resolve to HTML.
func DefaultRules() []Rule {
	return []Rule{
		{regexp.MustCompile(`(?i)reddit\.com`), StrategyReddit},
		{regexp.MustCompile(`(?i)news\.ycombinator\.com`), StrategyHackerNews},
		{regexp.MustCompile(`(?i)hn\.algolia\.com`), StrategyHackerNews},
		{regexp.MustCompile(`(?i)/feed/?$`), StrategyRSS},
		{regexp.MustCompile(`(?i)/rss/?$`), StrategyRSS},
		{regexp.MustCompile(`(?i)\.xml$`), StrategyRSS},
		{regexp.MustCompile(`(?i)/atom/?$`), StrategyRSS},
	}
}

// Registry resolves strategies from URLs and hands out providers.
type Registry struct {
	mu        sync.RWMutex
	rules     []Rule
	providers map[Strategy]Provider
}

// NewRegistry builds a registry with the default rules and the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{
		rules:     DefaultRules(),
		providers: make(map[Strategy]Provider, len(providers)),
	}
	for _, p := range providers {
		r.providers[p.Strategy()] = p
	}
	return r
}

// Register adds a rule ahead of every existing rule. The pattern is
// matched case-insensitively.
func (r *Registry) Register(pattern string, strategy Strategy) error {
	if strategy == StrategyAuto {
		return fmt.Errorf("cannot register a rule resolving to %s", StrategyAuto)
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("compile rule %q: %w", pattern, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append([]Rule{{Pattern: re, Strategy: strategy}}, r.rules...)
	return nil
}

// Resolve returns the strategy of the first matching rule, or HTML.
func (r *Registry) Resolve(rawURL string) Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return resolve(r.rules, rawURL)
}

func resolve(rules []Rule, rawURL string) Strategy {
	for _, rule := range rules {
		if rule.Pattern.MatchString(rawURL) {
			return rule.Strategy
		}
	}
	return StrategyHTML
}

// ForStrategy returns the provider registered for s. AUTO must be resolved
// with ForURL instead.
func (r *Registry) ForStrategy(s Strategy) (Provider, error) {
	if s == StrategyAuto {
		return nil, fmt.Errorf("strategy %s must be resolved from a URL", StrategyAuto)
	}
	r.mu.RLock()
	p, ok := r.providers[s]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no provider registered for strategy %s", s)
	}
	return p, nil
}

// ForURL resolves rawURL and returns the matching provider.
func (r *Registry) ForURL(rawURL string) (Provider, error) {
	return r.ForStrategy(r.Resolve(rawURL))
}

// ForSignal picks the provider for a stored strategy, resolving AUTO by URL.
func (r *Registry) ForSignal(strategy Strategy, rawURL string) (Provider, error) {
	if strategy == StrategyAuto || strategy == "" {
		return r.ForURL(rawURL)
	}
	return r.ForStrategy(strategy)
}
