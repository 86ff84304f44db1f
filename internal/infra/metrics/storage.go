package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		cacheRequestsTotal,
		dbPoolStats,
		receiptWritesTotal,
	)
}

var (
	cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Tracks cache hits and misses for various caches.",
		},
		[]string{"cache", "result"}, // e.g., cache="coupons", result="hit"
	)

	dbPoolStats = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_stats",
			Help: "Current state of the database connection pool.",
		},
		[]string{"state"}, // 'total', 'idle', 'in_use'
	)

	receiptWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receipt_writes_total",
			Help: "Receipt journal writes by result.",
		},
		[]string{"result"},
	)
)

func IncCacheRequest(cacheName, result string) {
	cacheRequestsTotal.WithLabelValues(norm(cacheName), norm(result)).Inc()
}

func SetDBPoolStats(total, idle, inUse int32) {
	dbPoolStats.WithLabelValues("total").Set(float64(total))
	dbPoolStats.WithLabelValues("idle").Set(float64(idle))
	dbPoolStats.WithLabelValues("in_use").Set(float64(inUse))
}

func IncReceiptWrite(result string) {
	receiptWritesTotal.WithLabelValues(norm(result)).Inc()
}
