package obs

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMustRegisterDomainMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	MustRegisterDomainMetrics("blinds", registry)
	MustRegisterDomainMetrics("blinds", registry)

	require.NotNil(t, OrdersPlacedTotal)
	OrdersPlacedTotal.WithLabelValues("placed").Inc()
	LoyaltyPointsTotal.WithLabelValues("earned").Add(49.6)
	FulfillmentAttemptLatency.WithLabelValues("delivered").Observe(12)

	require.Equal(t, 1.0, testutil.ToFloat64(OrdersPlacedTotal.WithLabelValues("placed")))
	require.Equal(t, 49.6, testutil.ToFloat64(LoyaltyPointsTotal.WithLabelValues("earned")))

	families, err := registry.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["blinds_orders_placed_total"])
	require.True(t, names["blinds_loyalty_points_total"])
	require.True(t, names["blinds_fulfillment_attempt_duration_ms"])
}
