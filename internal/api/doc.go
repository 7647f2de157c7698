// Package api hosts the HTTP server, middleware, and REST handlers over the
// notice orchestrator. Notable routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/legislation/{national|admin|all} for cache-aside reads.
//   - GET /api/legislation/search and /stats for read-only queries.
//   - POST /api/legislation/refresh to rebuild both sources.
package api
