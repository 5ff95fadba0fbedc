/*
Package metrics provides Prometheus instrumentation for SNAS, following the
same package-level registration style as the teacher's pkg/metrics: every
metric is a package variable registered with prometheus.MustRegister in
init(), and Handler() exposes them at /metrics for scraping.

# Metrics catalog

snas_verify_total{result}:
  - Counter. Every Verify call, labeled "valid", "invalid_credentials",
    "reset_expired", or "error".

snas_credstore_cache_size:
  - Gauge. Number of user records currently held in the CredStore read
    cache, sampled every 15s by metrics.Collector.

snas_bus_requests_total{prefix,action,result}:
  - Counter. Every pub/sub request dispatched by either bus server.

snas_bus_request_duration_seconds{prefix,action}:
  - Histogram. Dispatch handling latency.

snas_socket_connections_active:
  - Gauge. Live connections currently held open by the user socket server.

snas_socket_requests_total{method,result}:
  - Counter. Requests served over the socket server.

snas_socket_bad_requests_total:
  - Counter. Malformed frames the socket server rejected and resynchronized
    past, tracked separately from requests that failed the underlying
    operation.

# Usage

	timer := metrics.NewTimer()
	resp, err := h.Verify(ctx, req)
	timer.ObserveDurationVec(metrics.BusRequestDuration, prefix, "verify")

# See also

  - pkg/metrics/health.go for the /health, /ready, and /live HTTP handlers
    consulted by cmd/snas-server.
  - Prometheus client library: https://github.com/prometheus/client_golang
*/
package metrics
