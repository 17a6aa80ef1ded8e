package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/pulseflow/internal/store"
)

// getSignal handles GET /v1/signals/{signal_id}. It returns {"signal": {...}}
// or 404 when the repository reports store.ErrNotFound.
func (s *Server) getSignal(w http.ResponseWriter, r *http.Request) {
	signalID := chi.URLParam(r, "signal_id")
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	signal, err := s.deps.Records.FindSignal(ctx, signalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "signal not found")
			return
		}
		s.logger.Error("get signal failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load signal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"signal": signal})
}

// listAlerts handles GET /v1/pulses/{pulse_id}/alerts.
func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	pulseID := chi.URLParam(r, "pulse_id")
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	alerts, err := s.deps.Records.ListAlerts(ctx, pulseID)
	if err != nil {
		s.logger.Error("list alerts failed", zap.String("pulse_id", pulseID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []store.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}
