// Package api hosts the observability HTTP server. Notable routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/stats for the live counters of the current run.
//   - GET /v1/runs, /v1/runs/{run_id} and /v1/runs/{run_id}/sites for stored
//     run history via the ProgressRepository interface.
package api
