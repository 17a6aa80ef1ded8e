package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pulseflow/internal/apperr"
	"github.com/JakeFAU/pulseflow/internal/config"
	"github.com/JakeFAU/pulseflow/internal/dispatcher"
	"github.com/JakeFAU/pulseflow/internal/pipeline"
	queuemem "github.com/JakeFAU/pulseflow/internal/queue/memory"
	"github.com/JakeFAU/pulseflow/internal/scraper"
	"github.com/JakeFAU/pulseflow/internal/storage/memory"
	"github.com/JakeFAU/pulseflow/internal/store"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type idleRunner struct{}

func (idleRunner) Run(context.Context, pipeline.Request) (pipeline.Outcome, error) {
	return pipeline.Outcome{}, nil
}

type stubProvider struct{ strategy scraper.Strategy }

func (p stubProvider) Strategy() scraper.Strategy { return p.strategy }
func (stubProvider) CanHandle(string) bool         { return true }
func (stubProvider) SkipRobots() bool              { return false }
func (stubProvider) Scrape(context.Context, scraper.Options) ([]scraper.Item, error) {
	return nil, nil
}

type stubResolver struct{}

func (stubResolver) ForSignal(strategy scraper.Strategy, _ string) (scraper.Provider, error) {
	if strategy == scraper.StrategyAuto {
		strategy = scraper.StrategyHTML
	}
	return stubProvider{strategy: strategy}, nil
}

type stubExecutor struct {
	err  error
	seen []scraper.Options
}

func (e *stubExecutor) Execute(_ context.Context, p scraper.Provider, opts scraper.Options) (scraper.Result, error) {
	e.seen = append(e.seen, opts)
	if e.err != nil {
		return scraper.Result{}, e.err
	}
	return scraper.Result{
		Items:    []scraper.Item{{ID: "1", Title: "Hello", URL: opts.URL}},
		URL:      opts.URL,
		Provider: p.Strategy(),
		DryRun:   opts.DryRun,
	}, nil
}

type stubSweeper struct {
	n   int
	err error
}

func (s stubSweeper) Sweep(context.Context) (int, error) { return s.n, s.err }

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type seqIDs struct{ n int }

func (g *seqIDs) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

type harness struct {
	repo     *memory.Repository
	queue    *queuemem.Queue
	dispatch *dispatcher.Dispatcher
	exec     *stubExecutor
	server   *Server
}

func newHarness(t *testing.T, mutate func(*Deps, *config.Config)) *harness {
	t.Helper()
	h := &harness{
		repo:  memory.NewRepository(),
		queue: queuemem.NewQueue(10),
		exec:  &stubExecutor{},
	}
	h.dispatch = dispatcher.New(h.queue, idleRunner{}, 1, zap.NewNop())
	require.NoError(t, h.repo.CreateSignal(context.Background(), store.Signal{
		ID:              "sig-1",
		Name:            "Example",
		URL:             "https://example.com/feed",
		Strategy:        scraper.StrategyRSS,
		IntervalMinutes: 60,
		IsActive:        true,
	}))
	deps := Deps{
		Records:  h.repo,
		IDs:      &seqIDs{},
		Enqueuer: h.dispatch,
		Resolver: stubResolver{},
		Executor: h.exec,
		Sweeper:  stubSweeper{n: 3},
		Clock:    fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	cfg := config.Config{}
	if mutate != nil {
		mutate(&deps, &cfg)
	}
	h.server = NewServer(deps, cfg, zap.NewNop())
	return h
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	rec := h.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = h.do(http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReportsDependencyFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(d *Deps, _ *config.Config) {
		d.Ready = stubPinger{err: errors.New("connection refused")}
	})

	rec := h.do(http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTriggerScrapeQueuesRequest(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	rec := h.do(http.MethodPost, "/v1/signals/sig-1/scrape", `{"dryRun":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"signalId":"sig-1","status":"queued","dryRun":true}`, rec.Body.String())

	req, err := h.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sig-1", req.SignalID)
	require.True(t, req.DryRun)
	require.True(t, h.dispatch.InFlight("sig-1"))
}

func TestTriggerScrapeWithoutBody(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	rec := h.do(http.MethodPost, "/v1/signals/sig-1/scrape", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, 1, h.queue.Len())
}

func TestTriggerScrapeUnknownSignal(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	rec := h.do(http.MethodPost, "/v1/signals/missing/scrape", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, 0, h.queue.Len())
}

func TestTriggerScrapeConflictsWhileInFlight(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	require.Equal(t, http.StatusAccepted, h.do(http.MethodPost, "/v1/signals/sig-1/scrape", "").Code)
	rec := h.do(http.MethodPost, "/v1/signals/sig-1/scrape", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, 1, h.queue.Len())
}

func TestPreviewScrapeReturnsItems(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	rec := h.do(http.MethodPost, "/v1/scrape", `{"url":"https://example.com/page","selector":"article"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result scraper.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, scraper.StrategyHTML, result.Provider)
	require.Len(t, result.Items, 1)
	require.Equal(t, "article", h.exec.seen[0].Selector)
}

func TestPreviewScrapeValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	cases := map[string]string{
		"invalid json":     `{`,
		"missing url":      `{}`,
		"relative url":     `{"url":"/feed"}`,
		"ftp url":          `{"url":"ftp://example.com"}`,
		"unknown strategy": `{"url":"https://example.com","strategy":"GOPHER"}`,
	}
	for name, body := range cases {
		rec := h.do(http.MethodPost, "/v1/scrape", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
	require.Empty(t, h.exec.seen)
}

func TestPreviewScrapeMapsErrorKinds(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.exec.err = apperr.New(apperr.KindRobotsDisallowed, "Scraping disallowed by robots.txt: https://example.com/private")

	rec := h.do(http.MethodPost, "/v1/scrape", `{"url":"https://example.com/private"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.JSONEq(t,
		`{"error":"Scraping disallowed by robots.txt: https://example.com/private","code":"ROBOTS_DISALLOWED"}`,
		rec.Body.String())
}

func TestSweepReportsDispatched(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	rec := h.do(http.MethodPost, "/v1/sweep", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"dispatched":3}`, rec.Body.String())
}

func TestSweepUnavailable(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(d *Deps, _ *config.Config) { d.Sweeper = nil })

	rec := h.do(http.MethodPost, "/v1/sweep", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetSignal(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	rec := h.do(http.MethodGet, "/v1/signals/sig-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"id":"sig-1"`)

	rec = h.do(http.MethodGet, "/v1/signals/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAlerts(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	require.NoError(t, h.repo.CreateAlert(context.Background(), store.Alert{
		ID:            "alert-1",
		PulseID:       "pulse-1",
		DestinationID: "dest-1",
		Channel:       store.ChannelWebhook,
		ChangeType:    "NEW_ITEMS",
		Status:        store.AlertSent,
	}))

	rec := h.do(http.MethodGet, "/v1/pulses/pulse-1/alerts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Alerts []store.Alert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Alerts, 1)

	rec = h.do(http.MethodGet, "/v1/pulses/other/alerts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"alerts":[]}`, rec.Body.String())
}

func TestAPIKeyRequiredWhenEnabled(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(_ *Deps, c *config.Config) {
		c.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	})

	rec := h.do(http.MethodGet, "/v1/signals/sig-1", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/signals/sig-1", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/healthz", "").Code)
}
