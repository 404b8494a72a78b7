/*
Package metrics defines and registers strata's Prometheus metrics: backend
version/snapshot gauges, JMT node-write and proof-latency histograms, commit
counters, overlay fork/write counters, watch fan-out counters, and RPC
request metrics. Metrics are registered at package init and exposed via
Handler() for scraping.

A companion HealthChecker (health.go) tracks per-component readiness
(backend, commit, rpc) for /health, /ready, and /live HTTP endpoints.
*/
package metrics
