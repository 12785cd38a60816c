// Package api hosts the optional status server that operators can poll
// while a crawl runs. Routes:
//   - GET /healthz and /readyz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress for the running tally as JSON.
package api
