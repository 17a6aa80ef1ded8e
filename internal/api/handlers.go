package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/pulseflow/internal/dispatcher"
	"github.com/JakeFAU/pulseflow/internal/queue"
	"github.com/JakeFAU/pulseflow/internal/scraper"
	"github.com/JakeFAU/pulseflow/internal/store"
)

const (
	readTimeout    = 3 * time.Second
	enqueueTimeout = 5 * time.Second
)

type triggerRequest struct {
	DryRun bool `json:"dryRun"`
}

type previewRequest struct {
	URL      string `json:"url"`
	Strategy string `json:"strategy"`
	Selector string `json:"selector"`
	DryRun   bool   `json:"dryRun"`
}

// triggerScrape handles POST /v1/signals/{signal_id}/scrape. The body is
// optional. It returns 202 once queued, 404 for unknown signals and 409 when
// the signal already has a run in flight.
func (s *Server) triggerScrape(w http.ResponseWriter, r *http.Request) {
	signalID := chi.URLParam(r, "signal_id")
	var body triggerRequest
	if err := decodeOptional(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()
	if _, err := s.deps.Records.FindSignal(ctx, signalID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "signal not found")
			return
		}
		s.logger.Error("find signal failed", zap.String("signal_id", signalID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load signal")
		return
	}

	queueCtx, cancelQueue := context.WithTimeout(r.Context(), enqueueTimeout)
	defer cancelQueue()
	req := queue.Request{SignalID: signalID, DryRun: body.DryRun, RequestedAt: s.deps.Clock.Now()}
	if err := s.deps.Enqueuer.Enqueue(queueCtx, req); err != nil {
		if errors.Is(err, dispatcher.ErrInFlight) {
			writeError(w, http.StatusConflict, "signal already in flight")
			return
		}
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"signalId": signalID,
		"status":   "queued",
		"dryRun":   body.DryRun,
	})
}

// previewScrape handles POST /v1/scrape. It runs a provider through the
// executor and returns the items without storing a pulse.
func (s *Server) previewScrape(w http.ResponseWriter, r *http.Request) {
	var body previewRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !validHTTPURL(body.URL) {
		writeError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
		return
	}
	strategy := scraper.StrategyAuto
	if body.Strategy != "" {
		parsed, err := scraper.ParseStrategy(body.Strategy)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		strategy = parsed
	}
	provider, err := s.deps.Resolver.ForSignal(strategy, body.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.deps.Executor.Execute(r.Context(), provider, scraper.Options{
		URL:      body.URL,
		DryRun:   body.DryRun,
		Selector: body.Selector,
	})
	if err != nil {
		s.logger.Warn("preview scrape failed", zap.String("url", body.URL), zap.Error(err))
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// sweep handles POST /v1/sweep and reports how many signals were queued.
func (s *Server) sweep(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sweeper == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}
	n, err := s.deps.Sweeper.Sweep(r.Context())
	if err != nil {
		s.logger.Error("manual sweep failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"dispatched": n, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"dispatched": n})
}

func decodeOptional(r *http.Request, out any) error {
	err := json.NewDecoder(r.Body).Decode(out)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
