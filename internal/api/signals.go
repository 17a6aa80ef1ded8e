package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/pulseflow/internal/alerts"
	"github.com/JakeFAU/pulseflow/internal/apperr"
	"github.com/JakeFAU/pulseflow/internal/scraper"
	"github.com/JakeFAU/pulseflow/internal/store"
)

const (
	defaultIntervalMinutes = 60
	defaultPulseLimit      = 20
)

// signalRequest carries the fields of a create or a partial update. Absent
// fields keep their current value; an empty selector clears it.
type signalRequest struct {
	Name            *string `json:"name"`
	URL             *string `json:"url"`
	Selector        *string `json:"selector"`
	Strategy        *string `json:"strategy"`
	IntervalMinutes *int    `json:"intervalMinutes"`
	IsActive        *bool   `json:"isActive"`
}

func (req signalRequest) apply(sig *store.Signal) error {
	if req.Name != nil {
		sig.Name = strings.TrimSpace(*req.Name)
	}
	if req.URL != nil {
		sig.URL = strings.TrimSpace(*req.URL)
	}
	if req.Selector != nil {
		sig.Selector = nil
		if sel := strings.TrimSpace(*req.Selector); sel != "" {
			sig.Selector = &sel
		}
	}
	if req.Strategy != nil {
		strategy, err := scraper.ParseStrategy(*req.Strategy)
		if err != nil {
			return err
		}
		sig.Strategy = strategy
	}
	if req.IntervalMinutes != nil {
		sig.IntervalMinutes = *req.IntervalMinutes
	}
	if req.IsActive != nil {
		sig.IsActive = *req.IsActive
	}
	switch {
	case sig.Name == "":
		return errors.New("name is required")
	case !validHTTPURL(sig.URL):
		return errors.New("url must be an absolute http(s) URL")
	case sig.IntervalMinutes < 1:
		return errors.New("intervalMinutes must be >= 1")
	}
	return nil
}

// listSignals handles GET /v1/signals?search=&status=&page=&limit=.
func (s *Server) listSignals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SignalFilter{Search: q.Get("search"), Status: store.SignalStatus(q.Get("status"))}
	switch filter.Status {
	case "", store.SignalStatusAll, store.SignalStatusActive, store.SignalStatusInactive:
	default:
		writeError(w, http.StatusBadRequest, "status must be all, active or inactive")
		return
	}
	var err error
	if filter.Page, err = intParam(q.Get("page")); err != nil {
		writeError(w, http.StatusBadRequest, "page must be an integer")
		return
	}
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()
	page, err := s.deps.Records.ListSignals(ctx, filter)
	if err != nil {
		s.logger.Error("list signals failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list signals")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// createSignal handles POST /v1/signals. New signals are active, use the
// AUTO strategy and a 60 minute interval unless the body says otherwise.
func (s *Server) createSignal(w http.ResponseWriter, r *http.Request) {
	var body signalRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	sig := store.Signal{
		Strategy:        scraper.StrategyAuto,
		IntervalMinutes: defaultIntervalMinutes,
		IsActive:        true,
		CreatedAt:       s.deps.Clock.Now(),
	}
	if err := body.apply(&sig); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.deps.IDs.NewID()
	if err != nil {
		s.logger.Error("generate signal id failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create signal")
		return
	}
	sig.ID = id

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()
	if err := s.deps.Records.CreateSignal(ctx, sig); err != nil {
		s.logger.Error("create signal failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create signal")
		return
	}
	s.logger.Info("signal created", zap.String("signal_id", sig.ID), zap.String("url", sig.URL))
	writeJSON(w, http.StatusCreated, map[string]any{"signal": sig})
}

// updateSignal handles PATCH /v1/signals/{signal_id}.
func (s *Server) updateSignal(w http.ResponseWriter, r *http.Request) {
	var body signalRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	sig, ok := s.lookupSignal(ctx, w, chi.URLParam(r, "signal_id"))
	if !ok {
		return
	}
	if err := body.apply(&sig); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Records.UpdateSignal(ctx, sig); err != nil {
		s.writeRecordError(w, "update signal", "signal not found", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"signal": sig})
}

// setSignalActive handles PUT /v1/signals/{signal_id}/active with
// {"isActive": bool}.
func (s *Server) setSignalActive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IsActive *bool `json:"isActive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.IsActive == nil {
		writeError(w, http.StatusBadRequest, "isActive is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	sig, err := s.deps.Records.SetSignalActive(ctx, chi.URLParam(r, "signal_id"), *body.IsActive)
	if err != nil {
		s.writeRecordError(w, "toggle signal", "signal not found", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"signal": sig})
}

// deleteSignal handles DELETE /v1/signals/{signal_id}. Pulses, alerts and
// destinations are removed with it.
func (s *Server) deleteSignal(w http.ResponseWriter, r *http.Request) {
	signalID := chi.URLParam(r, "signal_id")
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	if err := s.deps.Records.DeleteSignal(ctx, signalID); err != nil {
		s.writeRecordError(w, "delete signal", "signal not found", err)
		return
	}
	s.logger.Info("signal deleted", zap.String("signal_id", signalID))
	w.WriteHeader(http.StatusNoContent)
}

// listPulses handles GET /v1/signals/{signal_id}/pulses?limit=.
func (s *Server) listPulses(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	if limit < 1 {
		limit = defaultPulseLimit
	}
	limit = min(limit, store.MaxPageSize)

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()
	sig, ok := s.lookupSignal(ctx, w, chi.URLParam(r, "signal_id"))
	if !ok {
		return
	}
	pulses, err := s.deps.Records.ListPulses(ctx, sig.ID, limit)
	if err != nil {
		s.writeRecordError(w, "list pulses", "signal not found", err)
		return
	}
	if pulses == nil {
		pulses = []store.Pulse{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"pulses": pulses})
}

// getPulse handles GET /v1/pulses/{pulse_id}. The response carries the
// owning signal's id, name and URL next to the pulse.
func (s *Server) getPulse(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	pulse, err := s.deps.Records.FindPulse(ctx, chi.URLParam(r, "pulse_id"))
	if err != nil {
		s.writeRecordError(w, "get pulse", "pulse not found", err)
		return
	}
	sig, ok := s.lookupSignal(ctx, w, pulse.SignalID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pulse": pulse,
		"signal": map[string]string{
			"id":   sig.ID,
			"name": sig.Name,
			"url":  sig.URL,
		},
	})
}

// listDestinations handles GET /v1/signals/{signal_id}/destinations.
func (s *Server) listDestinations(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()
	sig, ok := s.lookupSignal(ctx, w, chi.URLParam(r, "signal_id"))
	if !ok {
		return
	}
	dests, err := s.deps.Records.ListDestinations(ctx, sig.ID)
	if err != nil {
		s.writeRecordError(w, "list destinations", "signal not found", err)
		return
	}
	if dests == nil {
		dests = []store.AlertDestination{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"destinations": dests})
}

// createDestination handles POST /v1/signals/{signal_id}/destinations with
// {"channel": "EMAIL"|"WEBHOOK", "destination": "...", "isActive": bool}.
func (s *Server) createDestination(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Channel     string `json:"channel"`
		Destination string `json:"destination"`
		IsActive    *bool  `json:"isActive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	dest := store.AlertDestination{
		Channel:     store.Channel(strings.ToUpper(strings.TrimSpace(body.Channel))),
		Destination: strings.TrimSpace(body.Destination),
		IsActive:    body.IsActive == nil || *body.IsActive,
	}
	if err := validateDestination(dest); err != nil {
		writeAppError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()
	sig, ok := s.lookupSignal(ctx, w, chi.URLParam(r, "signal_id"))
	if !ok {
		return
	}
	id, err := s.deps.IDs.NewID()
	if err != nil {
		s.logger.Error("generate destination id failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create destination")
		return
	}
	dest.ID = id
	dest.SignalID = sig.ID
	if err := s.deps.Records.CreateDestination(ctx, dest); err != nil {
		s.writeRecordError(w, "create destination", "signal not found", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"destination": dest})
}

// deleteDestination handles DELETE
// /v1/signals/{signal_id}/destinations/{destination_id}.
func (s *Server) deleteDestination(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()
	err := s.deps.Records.DeleteDestination(ctx, chi.URLParam(r, "signal_id"), chi.URLParam(r, "destination_id"))
	if err != nil {
		s.writeRecordError(w, "delete destination", "destination not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func validateDestination(dest store.AlertDestination) error {
	switch dest.Channel {
	case store.ChannelEmail:
		if !alerts.ValidEmail(dest.Destination) {
			return apperr.New(apperr.KindInvalidDestination, "Invalid email address: %s", dest.Destination)
		}
	case store.ChannelWebhook:
		if !alerts.ValidWebhookURL(dest.Destination) {
			return apperr.New(apperr.KindInvalidDestination, "Invalid webhook URL: %s", dest.Destination)
		}
	default:
		return apperr.New(apperr.KindInvalidDestination, "Unknown channel %q", string(dest.Channel))
	}
	return nil
}

// lookupSignal loads a signal or writes the 404/500 response itself.
func (s *Server) lookupSignal(ctx context.Context, w http.ResponseWriter, id string) (store.Signal, bool) {
	sig, err := s.deps.Records.FindSignal(ctx, id)
	if err != nil {
		s.writeRecordError(w, "find signal", "signal not found", err)
		return store.Signal{}, false
	}
	return sig, true
}

func (s *Server) writeRecordError(w http.ResponseWriter, op, notFound string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFound)
		return
	}
	s.logger.Error(op+" failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to %s", op))
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", raw, err)
	}
	return n, nil
}
