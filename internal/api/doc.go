// Package api hosts the read-only HTTP surface over stored posts. Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/posts/sample?n=15 for a random sample of titles.
//   - GET /v1/posts?title=... for a single post with its comments.
package api
