package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// RedemptionTotal counts rewards redemption outcomes.
	RedemptionTotal *prometheus.CounterVec
	// OrderSubmitTotal counts order submission outcomes.
	OrderSubmitTotal *prometheus.CounterVec
	// PointsDiscountApplied observes the currency discount granted through points.
	PointsDiscountApplied prometheus.Histogram
	// BalanceRefreshTotal counts balance refetches by trigger and outcome.
	BalanceRefreshTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers the storefront collectors.
// Calling it more than once is harmless.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		RedemptionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redemption_total",
			Help:      "Count of rewards redemption attempts by outcome.",
		}, []string{"result"})
		OrderSubmitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_submit_total",
			Help:      "Count of order submissions by account class and outcome.",
		}, []string{"class", "result"})
		PointsDiscountApplied = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "points_discount_applied",
			Help:      "Currency discount granted through loyalty points per order.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		})
		BalanceRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "balance_refresh_total",
			Help:      "Count of points balance refetches by trigger and outcome.",
		}, []string{"source", "result"})

		RedemptionTotal = registerOrReuse(reg, RedemptionTotal)
		OrderSubmitTotal = registerOrReuse(reg, OrderSubmitTotal)
		PointsDiscountApplied = registerOrReuse(reg, PointsDiscountApplied)
		BalanceRefreshTotal = registerOrReuse(reg, BalanceRefreshTotal)
	})
}

// CountRedemption increments the redemption counter when metrics are registered.
func CountRedemption(result string) {
	if RedemptionTotal != nil {
		RedemptionTotal.WithLabelValues(result).Inc()
	}
}

// CountOrderSubmit increments the order submission counter when metrics are registered.
func CountOrderSubmit(class, result string) {
	if OrderSubmitTotal != nil {
		OrderSubmitTotal.WithLabelValues(class, result).Inc()
	}
}

// ObservePointsDiscount records a granted discount when metrics are registered.
func ObservePointsDiscount(amount float64) {
	if PointsDiscountApplied != nil && amount > 0 {
		PointsDiscountApplied.Observe(amount)
	}
}

// CountBalanceRefresh increments the balance refresh counter when metrics are registered.
func CountBalanceRefresh(source, result string) {
	if BalanceRefreshTotal != nil {
		BalanceRefreshTotal.WithLabelValues(source, result).Inc()
	}
}

// registerOrReuse registers c, returning the already registered collector of
// the same type when one exists.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
	return c
}
