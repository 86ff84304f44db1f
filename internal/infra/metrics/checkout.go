package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		checkoutTransitionsTotal,
		checkoutFlowsTotal,
		checkoutChargedTotal,
		checkoutSessionsActive,
	)
}

var (
	checkoutTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_transitions_total",
			Help: "Checkout state machine transitions.",
		},
		[]string{"from", "to"},
	)

	// outcome: settled|rejected|order_failed|effect_failed
	checkoutFlowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_flows_total",
			Help: "Finished checkout submissions by outcome and purpose.",
		},
		[]string{"outcome", "purpose"},
	)

	checkoutChargedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_charged_amount_total",
			Help: "Sum of settled payment amounts, labeled by currency.",
		},
		[]string{"currency"},
	)

	checkoutSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "checkout_sessions_active",
			Help: "Checkout sessions currently held in memory.",
		},
	)
)

func IncTransition(from, to string) {
	checkoutTransitionsTotal.WithLabelValues(norm(from), norm(to)).Inc()
}

func IncFlow(outcome, purpose string) {
	checkoutFlowsTotal.WithLabelValues(norm(outcome), norm(purpose)).Inc()
}

func AddCharged(currency string, amount float64) {
	checkoutChargedTotal.WithLabelValues(norm(currency)).Add(amount)
}

func SetActiveSessions(n int) {
	checkoutSessionsActive.Set(float64(n))
}
