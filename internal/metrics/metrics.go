// Package metrics exposes Prometheus collectors for the PulseFlow service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scrapesTotal               *prometheus.CounterVec
	scrapeDurationSeconds      *prometheus.HistogramVec
	robotsChecksTotal          *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	alertsTotal                *prometheus.CounterVec
	summariesTotal             *prometheus.CounterVec
	pipelineRunsTotal          *prometheus.CounterVec
	schedulerDispatchedTotal   prometheus.Counter
	activeWorkers              prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulseflow_scrapes_total",
				Help: "Total number of scrape executions, labeled by strategy and status.",
			},
			[]string{"strategy", "status"},
		)

		scrapeDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pulseflow_scrape_duration_seconds",
				Help:    "Histogram of scrape durations including retries, labeled by strategy.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"strategy"},
		)

		robotsChecksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulseflow_robots_checks_total",
				Help: "Total robots.txt decisions, labeled by outcome.",
			},
			[]string{"decision"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pulseflow_rate_limit_delay_seconds",
				Help:    "Histogram of per-domain rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		alertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulseflow_alerts_total",
				Help: "Total alert deliveries, labeled by channel and status.",
			},
			[]string{"channel", "status"},
		)

		summariesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulseflow_summaries_total",
				Help: "Total summarization attempts, labeled by status.",
			},
			[]string{"status"},
		)

		pipelineRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulseflow_pipeline_runs_total",
				Help: "Total pipeline runs, labeled by final status.",
			},
			[]string{"status"},
		)

		schedulerDispatchedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pulseflow_scheduler_dispatched_total",
				Help: "Total scrape requests enqueued by the interval sweep.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pulseflow_active_workers",
				Help: "Number of workers currently running a pipeline.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveScrape records one scrape execution.
func ObserveScrape(strategy, status string, duration time.Duration) {
	Init()
	scrapesTotal.WithLabelValues(strategy, status).Inc()
	scrapeDurationSeconds.WithLabelValues(strategy).Observe(duration.Seconds())
}

// ObserveRobotsDecision counts a robots.txt outcome (allowed, disallowed, error).
func ObserveRobotsDecision(decision string) {
	Init()
	robotsChecksTotal.WithLabelValues(decision).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveAlert counts one alert delivery.
func ObserveAlert(channel, status string) {
	Init()
	alertsTotal.WithLabelValues(channel, status).Inc()
}

// ObserveSummary counts one summarization attempt.
func ObserveSummary(status string) {
	Init()
	summariesTotal.WithLabelValues(status).Inc()
}

// ObservePipelineRun counts a finished pipeline run.
func ObservePipelineRun(status string) {
	Init()
	pipelineRunsTotal.WithLabelValues(status).Inc()
}

// ObserveDispatched counts scrape requests enqueued by the scheduler.
func ObserveDispatched(n int) {
	Init()
	schedulerDispatchedTotal.Add(float64(n))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
