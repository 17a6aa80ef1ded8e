package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/pulseflow/internal/apperr"
	"github.com/JakeFAU/pulseflow/internal/config"
	"github.com/JakeFAU/pulseflow/internal/logging"
	"github.com/JakeFAU/pulseflow/internal/metrics"
	"github.com/JakeFAU/pulseflow/internal/pipeline"
	"github.com/JakeFAU/pulseflow/internal/queue"
	"github.com/JakeFAU/pulseflow/internal/store"
)

const requestTimeout = 60 * time.Second

// Records is the part of the repository the API reads and manages.
type Records interface {
	FindSignal(ctx context.Context, id string) (store.Signal, error)
	ListSignals(ctx context.Context, filter store.SignalFilter) (store.SignalPage, error)
	CreateSignal(ctx context.Context, signal store.Signal) error
	UpdateSignal(ctx context.Context, signal store.Signal) error
	SetSignalActive(ctx context.Context, id string, active bool) (store.Signal, error)
	DeleteSignal(ctx context.Context, id string) error
	FindPulse(ctx context.Context, id string) (store.Pulse, error)
	ListPulses(ctx context.Context, signalID string, limit int) ([]store.Pulse, error)
	ListDestinations(ctx context.Context, signalID string) ([]store.AlertDestination, error)
	CreateDestination(ctx context.Context, dest store.AlertDestination) error
	DeleteDestination(ctx context.Context, signalID, id string) error
	ListAlerts(ctx context.Context, pulseID string) ([]store.Alert, error)
}

// Enqueuer accepts scrape requests.
type Enqueuer interface {
	Enqueue(ctx context.Context, req queue.Request) error
}

// Sweeper enqueues due signals.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// ReadyChecker reports whether a downstream dependency is reachable.
type ReadyChecker interface {
	Ping(ctx context.Context) error
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Deps are the collaborators of a Server. Sweeper and Ready are optional.
type Deps struct {
	Records  Records
	IDs      pipeline.IDGenerator
	Enqueuer Enqueuer
	Resolver pipeline.ProviderResolver
	Executor pipeline.ScrapeExecutor
	Sweeper  Sweeper
	Ready    ReadyChecker
	Clock    Clock
}

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router chi.Router
	deps   Deps
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logging.OrNop(logger).Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/scrape", s.previewScrape)
		r.Post("/sweep", s.sweep)
		r.Route("/signals", func(r chi.Router) {
			r.Get("/", s.listSignals)
			r.Post("/", s.createSignal)
			r.Route("/{signal_id}", func(r chi.Router) {
				r.Get("/", s.getSignal)
				r.Patch("/", s.updateSignal)
				r.Delete("/", s.deleteSignal)
				r.Put("/active", s.setSignalActive)
				r.Post("/scrape", s.triggerScrape)
				r.Get("/pulses", s.listPulses)
				r.Get("/destinations", s.listDestinations)
				r.Post("/destinations", s.createDestination)
				r.Delete("/destinations/{destination_id}", s.deleteDestination)
			})
		})
		r.Get("/pulses/{pulse_id}", s.getPulse)
		r.Get("/pulses/{pulse_id}/alerts", s.listAlerts)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", requestID(r.Context())),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload) //nolint:errchkjson
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError reports err with the status of its apperr kind, or 500.
func writeAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	if kind == "" {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, kind.HTTPStatus(), map[string]string{"error": err.Error(), "code": string(kind)})
}
