package resilience

import "github.com/prometheus/client_golang/prometheus"

var (
	// BreakerState exposes the current breaker state: 0=closed, 1=open, 2=half-open.
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "breaker_state",
			Help: "Current breaker state: 0=closed,1=open,2=half-open",
		},
		[]string{"target"},
	)
	// BreakerTransitions counts state changes.
	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breaker_transition_total",
			Help: "Count of breaker state transitions",
		},
		[]string{"target", "from", "to"},
	)
	// BreakerOpenedTotal counts how often a breaker tripped.
	BreakerOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breaker_open_total",
			Help: "Number of times a breaker transitioned into open state",
		},
		[]string{"target"},
	)
	// UpstreamRequests counts outbound attempts by target, method and outcome.
	UpstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Outbound HTTP attempts by target and outcome",
		},
		[]string{"target", "method", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal, UpstreamRequests)
}
