package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		backendRequestsTotal,
		backendRequestDuration,
	)
}

var (
	// result: ok|http_4xx|http_5xx|transport
	backendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_requests_total",
			Help: "Ledger backend calls by endpoint and result.",
		},
		[]string{"endpoint", "result"},
	)

	backendRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_request_duration_seconds",
			Help:    "Ledger backend call latency in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"endpoint"},
	)
)

func ObserveBackend(endpoint, result string, d time.Duration) {
	backendRequestsTotal.WithLabelValues(norm(endpoint), norm(result)).Inc()
	backendRequestDuration.WithLabelValues(norm(endpoint)).Observe(d.Seconds())
}
