package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-blinds/internal/auth"
	"github.com/noah-isme/backend-blinds/internal/config"
	"github.com/noah-isme/backend-blinds/internal/events"
)

func newComponents(t *testing.T) *Components {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg, err := config.LoadForTests(map[string]string{
		"DATABASE_URL": "postgres://localhost/blinds",
		"REDIS_URL":    "redis://" + mr.Addr(),
		"COUPONS":      "WELCOME10:percent:10,SAVE5:amount:5",
	})
	require.NoError(t, err)

	c, err := Build(cfg, nil, rdb, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func do(h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBuildRejectsMissingDependencies(t *testing.T) {
	_, err := Build(nil, nil, nil, zerolog.Nop())
	require.Error(t, err)

	cfg := &config.Config{JWTSecret: "0123456789abcdef"}
	_, err = Build(cfg, nil, nil, zerolog.Nop())
	require.ErrorContains(t, err, "redis")
}

func TestPricingConfigUsesConfiguredRates(t *testing.T) {
	pc := PricingConfig(&config.Config{PricePerSqIn: 0.09, MinBilledAreaSqIn: 500})
	require.Equal(t, 0.09, pc.PricePerSquareInch)
	require.Equal(t, 500.0, pc.MinimumBilledAreaSqIn)
	require.Equal(t, 2.54, pc.InchToCm)
}

func TestRouterHealthAndHeaders(t *testing.T) {
	h := NewRouter(newComponents(t), RouterOptions{})

	rec := do(h, http.MethodGet, "/health/live", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRouterCartLifecycle(t *testing.T) {
	h := NewRouter(newComponents(t), RouterOptions{})

	rec := do(h, http.MethodPost, "/api/v1/carts/", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Data struct {
			Cart struct {
				ID string `json:"id"`
			} `json:"cart"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.Cart.ID)

	rec = do(h, http.MethodGet, "/api/v1/carts/"+created.Data.Cart.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterAdminRequiresRole(t *testing.T) {
	c := newComponents(t)
	h := NewRouter(c, RouterOptions{})

	customer, err := c.Tokens.Issue("user-1", auth.RoleCustomer, time.Minute)
	require.NoError(t, err)
	admin, err := c.Tokens.Issue("ops-1", auth.RoleAdmin, time.Minute)
	require.NoError(t, err)

	require.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/v1/admin/queue/dlq", "").Code)
	require.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/v1/admin/queue/dlq", "garbage").Code)
	require.Equal(t, http.StatusForbidden, do(h, http.MethodGet, "/api/v1/admin/queue/dlq", customer).Code)
	// no Postgres behind this router, so the DLQ store is absent
	require.Equal(t, http.StatusServiceUnavailable, do(h, http.MethodGet, "/api/v1/admin/queue/dlq", admin).Code)
}

func TestRouterLoyaltyNeedsUser(t *testing.T) {
	c := newComponents(t)
	h := NewRouter(c, RouterOptions{})

	require.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/v1/loyalty/me", "").Code)

	token, err := c.Tokens.Issue("user-1", auth.RoleCustomer, time.Minute)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/v1/loyalty/me", token).Code)
}

func TestWorkersCoverRoutedKinds(t *testing.T) {
	c := newComponents(t)
	workers := c.Workers(c.FulfillmentTasks().Handlers())

	kinds := make([]string, 0, len(workers))
	for _, w := range workers {
		require.NotNil(t, w.Handler)
		require.Equal(t, c.Config.QueueRedisPrefix, w.Prefix)
		kinds = append(kinds, w.Kind)
	}
	require.Equal(t, []string{events.TaskFulfillmentNotify, events.TaskPointsAward, events.TaskPointsRefund}, kinds)

	for _, routed := range events.DefaultRoutes() {
		for _, kind := range routed {
			require.Contains(t, kinds, kind)
		}
	}
}

func TestRelayUsesConfiguredTiming(t *testing.T) {
	c := newComponents(t)
	relay := c.Relay()
	require.Same(t, c.Bus, relay.Bus)
	require.Equal(t, c.Config.RelayInterval, relay.Interval)
	require.Equal(t, 30*time.Second, relay.Grace)
}

func TestRouterAuditsAdminMutations(t *testing.T) {
	c := newComponents(t)
	h := NewRouter(c, RouterOptions{})
	admin, err := c.Tokens.Issue("ops-1", auth.RoleAdmin, time.Minute)
	require.NoError(t, err)

	require.Equal(t, http.StatusServiceUnavailable, do(h, http.MethodPost, "/api/v1/admin/queue/dlq/replay", admin).Code)

	rec := do(h, http.MethodGet, "/api/v1/admin/audit", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"action":"queue.dlq.replay"`)
	require.Contains(t, rec.Body.String(), `"actorId":"ops-1"`)
	require.Contains(t, rec.Body.String(), `"status":503`)
}
