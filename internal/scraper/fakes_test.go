package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type fakeHTTP struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func newFakeHTTP(pages map[string]string) *fakeHTTP {
	return &fakeHTTP{pages: pages}
}

func (f *fakeHTTP) record(url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	body, ok := f.pages[url]
	if !ok {
		return "", fmt.Errorf("HTTP 404: Not Found (%s)", url)
	}
	return body, nil
}

func (f *fakeHTTP) GetText(_ context.Context, url string) (string, error) {
	return f.record(url)
}

func (f *fakeHTTP) GetJSON(_ context.Context, url string, out any) error {
	body, err := f.record(url)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(body), out)
}

func (f *fakeHTTP) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeRobots struct {
	allowed bool
	checked []string
}

func (f *fakeRobots) IsAllowed(_ context.Context, rawURL string) bool {
	f.checked = append(f.checked, rawURL)
	return f.allowed
}

type fakeLimiter struct {
	waits []time.Duration
}

func (f *fakeLimiter) Wait(_ context.Context, _ string, d time.Duration) error {
	f.waits = append(f.waits, d)
	return nil
}

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

type scriptedProvider struct {
	strategy   Strategy
	skipRobots bool
	errs       []error
	items      []Item
	calls      int
}

func (p *scriptedProvider) Strategy() Strategy    { return p.strategy }
func (p *scriptedProvider) CanHandle(string) bool { return true }
func (p *scriptedProvider) SkipRobots() bool      { return p.skipRobots }

func (p *scriptedProvider) Scrape(context.Context, Options) ([]Item, error) {
	p.calls++
	if p.calls <= len(p.errs) {
		return nil, p.errs[p.calls-1]
	}
	return p.items, nil
}
