// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET, POST /v1/signals to page through and create signals.
//   - GET, PATCH, DELETE /v1/signals/{signal_id}; PUT .../active toggles it.
//   - GET, POST /v1/signals/{signal_id}/destinations and
//     DELETE .../destinations/{destination_id} for alert routing.
//   - GET /v1/signals/{signal_id}/pulses for recent snapshots.
//   - POST /v1/signals/{signal_id}/scrape to queue a pipeline run.
//   - POST /v1/scrape for an ad-hoc scrape preview that stores nothing.
//   - POST /v1/sweep to enqueue all due signals immediately.
//   - GET /v1/pulses/{pulse_id} and /v1/pulses/{pulse_id}/alerts.
package api
