package loyalty

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPointsEarnedTruncates(t *testing.T) {
	require.Equal(t, 9.9, PointsEarned(99.96))
	require.Equal(t, 49.6, PointsEarned(496))
	require.Equal(t, 0.0, PointsEarned(0))
	require.Equal(t, 0.0, PointsEarned(-10))
}

func TestPointsDiscount(t *testing.T) {
	require.Equal(t, 5.0, PointsDiscount(10))
	require.Equal(t, 0.05, PointsDiscount(0.1))
	require.Equal(t, 0.0, PointsDiscount(-3))
}

func TestMaxRedeemable(t *testing.T) {
	r := DefaultRates()
	require.Equal(t, "20", r.MaxRedeemable(decimal.NewFromInt(20), decimal.NewFromInt(506)).String())
	require.Equal(t, "60", r.MaxRedeemable(decimal.NewFromInt(500), decimal.NewFromInt(30)).String())
	require.Equal(t, "20.1", r.MaxRedeemable(decimal.NewFromInt(500), decimal.RequireFromString("10.09")).String())
	require.True(t, r.MaxRedeemable(decimal.Zero, decimal.NewFromInt(30)).IsZero())
}

func TestRatesFallBackToDefaults(t *testing.T) {
	r := Rates{}
	require.Equal(t, "9.9", r.Earned(decimal.RequireFromString("99.96")).String())
	custom := Rates{EarnRate: 1, PointValue: 1}
	require.Equal(t, "99.9", custom.Earned(decimal.RequireFromString("99.96")).String())
}
