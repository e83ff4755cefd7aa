// Package api exposes the HTTP control surface of the finder. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to start a run; GET /v1/runs[/{run_id}] to poll it;
//     POST /v1/runs/{run_id}/cancel to stop it after the current item.
//   - GET /v1/ledger?scope= to read the fetch ledger.
//   - GET and PUT /v1/blacklist to read or replace the URL blacklist.
//
// When auth is enabled every /v1 route requires the X-API-Key header.
package api
