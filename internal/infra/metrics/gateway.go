package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		gatewayCallbacksTotal,
		gatewayPending,
	)
}

var (
	// result: success|failure|unknown_order|bad_request|timeout
	gatewayCallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_callbacks_total",
			Help: "Gateway outcomes by gateway and result.",
		},
		[]string{"gateway", "result"},
	)

	gatewayPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_pending_orders",
			Help: "Orders handed to the gateway and awaiting a callback.",
		},
	)
)

func IncGatewayCallback(gateway, result string) {
	gatewayCallbacksTotal.WithLabelValues(norm(gateway), norm(result)).Inc()
}

func SetGatewayPending(n int) {
	gatewayPending.Set(float64(n))
}
