package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-blinds/internal/resilience"
)

func TestBreakerOpensAndRecovers(t *testing.T) {
	b := resilience.NewBreaker(resilience.BreakerConfig{
		Target:       "sheet-recover",
		MinRequests:  2,
		FailureRatio: 0.5,
		OpenFor:      30 * time.Millisecond,
	}, zerolog.Nop())
	ctx := context.Background()

	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)

	require.Equal(t, resilience.Open, b.State())
	require.False(t, b.Allow(ctx))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerState.WithLabelValues("sheet-recover")))

	require.Eventually(t, func() bool { return b.Allow(ctx) }, time.Second, 5*time.Millisecond)
	require.Equal(t, resilience.HalfOpen, b.State())
	require.False(t, b.Allow(ctx), "only one probe in half-open")

	b.Report(ctx, true)
	require.Equal(t, resilience.Closed, b.State())
	require.True(t, b.Allow(ctx))

	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues("sheet-recover", "closed", "open")))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues("sheet-recover", "open", "half_open")))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues("sheet-recover", "half_open", "closed")))
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b := resilience.NewBreaker(resilience.BreakerConfig{Target: "sheet-reopen", MinRequests: 1, OpenFor: 10 * time.Millisecond}, zerolog.Nop())
	ctx := context.Background()

	b.Report(ctx, false)
	require.Equal(t, resilience.Open, b.State())
	require.Eventually(t, func() bool { return b.Allow(ctx) }, time.Second, 2*time.Millisecond)
	b.Report(ctx, false)
	require.Equal(t, resilience.Open, b.State())
}

func TestBreakerStaysClosedBelowRatio(t *testing.T) {
	b := resilience.NewBreaker(resilience.BreakerConfig{Target: "sheet-ratio", MinRequests: 4, FailureRatio: 0.5}, zerolog.Nop())
	ctx := context.Background()
	for _, ok := range []bool{true, true, false, true, true, false, true} {
		b.Report(ctx, ok)
	}
	require.Equal(t, resilience.Closed, b.State())
}

func TestBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	require.Equal(t, base, resilience.Backoff(base, 1, 0))
	require.Equal(t, base*4, resilience.Backoff(base, 3, 0))
	require.Equal(t, resilience.MaxBackoff, resilience.Backoff(base, 80, 0))

	d := resilience.Backoff(base, 2, 0.2)
	require.GreaterOrEqual(t, d, base*2-base*2/5)
	require.LessOrEqual(t, d, base*2+base*2/5)
}
