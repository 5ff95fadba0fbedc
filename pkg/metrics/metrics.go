package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// VerifyTotal counts every Verify call by result: "valid",
	// "invalid_credentials", "reset_expired", or "error".
	VerifyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snas_verify_total",
			Help: "Total number of verify calls by result",
		},
		[]string{"result"},
	)

	// CredStoreCacheSize tracks the number of user records currently held
	// in the in-process CredStore cache.
	CredStoreCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "snas_credstore_cache_size",
			Help: "Number of user records held in the CredStore read cache",
		},
	)

	// BusRequestsTotal counts dispatched pub/sub requests by subject
	// prefix, action, and outcome.
	BusRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snas_bus_requests_total",
			Help: "Total number of bus requests dispatched by prefix, action, and result",
		},
		[]string{"prefix", "action", "result"},
	)

	// BusRequestDuration measures dispatch latency by prefix and action.
	BusRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snas_bus_request_duration_seconds",
			Help:    "Bus request handling duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"prefix", "action"},
	)

	// SocketConnectionsActive tracks the number of live Unix-socket
	// connections the socket server currently holds open.
	SocketConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "snas_socket_connections_active",
			Help: "Number of currently open connections to the user socket server",
		},
	)

	// SocketRequestsTotal counts requests served over the socket server by
	// method and result.
	SocketRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snas_socket_requests_total",
			Help: "Total number of socket requests handled by method and result",
		},
		[]string{"method", "result"},
	)

	// SocketBadRequestsTotal counts frames the socket server rejected as
	// malformed, separate from successful requests that failed the
	// underlying operation.
	SocketBadRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snas_socket_bad_requests_total",
			Help: "Total number of malformed frames rejected by the socket server",
		},
	)
)

func init() {
	prometheus.MustRegister(VerifyTotal)
	prometheus.MustRegister(CredStoreCacheSize)
	prometheus.MustRegister(BusRequestsTotal)
	prometheus.MustRegister(BusRequestDuration)
	prometheus.MustRegister(SocketConnectionsActive)
	prometheus.MustRegister(SocketRequestsTotal)
	prometheus.MustRegister(SocketBadRequestsTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
