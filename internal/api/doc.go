// Package api hosts the HTTP server, middleware, and handlers for operator
// access. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/admin/ingest to start a run in the background, and
//     GET /v1/admin/ingest for the running flag and the last report.
//   - POST /v1/parse to parse an uploaded page without persisting it.
//   - GET /v1/restaurants/{code}/meals for stored meals of one day.
package api
