package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// OrdersPlacedTotal counts order placement outcomes.
	OrdersPlacedTotal *prometheus.CounterVec
	// FulfillmentNotificationsTotal tracks fulfillment sheet notification outcomes.
	FulfillmentNotificationsTotal *prometheus.CounterVec
	// FulfillmentAttemptLatency records sheet notification latency in milliseconds.
	FulfillmentAttemptLatency *prometheus.HistogramVec
	// LoyaltyPointsTotal sums points moved through the ledger by entry type.
	LoyaltyPointsTotal *prometheus.CounterVec
	// CouponApplyTotal counts coupon apply attempts by outcome.
	CouponApplyTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		OrdersPlacedTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_placed_total",
			Help:      "Count of order placement outcomes.",
		}, []string{"result"}))
		FulfillmentNotificationsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fulfillment_notifications_total",
			Help:      "Count of fulfillment sheet notification outcomes.",
		}, []string{"result"}))
		FulfillmentAttemptLatency = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fulfillment_attempt_duration_ms",
			Help:      "Latency for fulfillment notification attempts in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"}))
		LoyaltyPointsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loyalty_points_total",
			Help:      "Loyalty points applied to the ledger by entry type.",
		}, []string{"type"}))
		CouponApplyTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_apply_total",
			Help:      "Count of coupon apply attempts by result.",
		}, []string{"result"}))
	})
}
