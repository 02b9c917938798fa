// Package api hosts the HTTP server, middleware, and REST handlers of the
// tracker daemon. Notable routes:
//   - GET /healthz / readyz for Kubernetes health checks.
//   - GET /metrics for Prometheus scraping.
//   - GET/POST /v1/jobs to list tracked analyses or track (and optionally
//     start) one.
//   - GET/DELETE /v1/jobs/{job_id} to inspect or stop tracking one analysis.
package api
