// Package api hosts the optional status server for a running download.
// Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress for the latest progress snapshot of the current run.
package api
