package order_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-blinds/internal/cart"
	"github.com/noah-isme/backend-blinds/internal/common"
	"github.com/noah-isme/backend-blinds/internal/coupon"
	"github.com/noah-isme/backend-blinds/internal/events"
	"github.com/noah-isme/backend-blinds/internal/order"
	"github.com/noah-isme/backend-blinds/internal/pricing"
)

type captureDispatcher struct {
	events []events.Event
}

func (c *captureDispatcher) Dispatch(_ context.Context, ev events.Event) error {
	c.events = append(c.events, ev)
	return nil
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to order.Status
		ok       bool
	}{
		{order.StatusPending, order.StatusInProduction, true},
		{order.StatusPending, order.StatusCancelled, true},
		{order.StatusInProduction, order.StatusShipped, true},
		{order.StatusInProduction, order.StatusCancelled, true},
		{order.StatusShipped, order.StatusDelivered, true},
		{order.StatusPending, order.StatusShipped, false},
		{order.StatusShipped, order.StatusCancelled, false},
		{order.StatusDelivered, order.StatusPending, false},
		{order.StatusCancelled, order.StatusInProduction, false},
		{order.StatusInProduction, order.StatusPending, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.ok, order.CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestParseStatus(t *testing.T) {
	s, err := order.ParseStatus(" In_Production ")
	require.NoError(t, err)
	require.Equal(t, order.StatusInProduction, s)

	_, err = order.ParseStatus("paid")
	require.ErrorIs(t, err, order.ErrInvalidStatus)
}

func sampleCart(t *testing.T) cart.Cart {
	t.Helper()
	c := cart.Cart{ID: uuid.NewString(), UserID: "user-1", Coupon: &coupon.Coupon{Code: "WELCOME10", Kind: coupon.KindPercent, Value: 10}}
	sel := cart.Selection{Specification: pricing.LineSpecification{FabricCode: "WHITE01", TotalPrice: 325}}
	var err error
	c, err = cart.AddLineItem(c, sampleProduct(), sel, 325, 2)
	require.NoError(t, err)
	return c
}

func TestFromCartSnapshotsLines(t *testing.T) {
	c := sampleCart(t)
	totals := pricing.ApplyPoints(c.Totals(pricing.DefaultRules()), 20, defaultRates())
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	o, err := order.FromCart("ord-1", c, totals, order.Customer{Name: "Ada"}, now)
	require.NoError(t, err)
	require.Equal(t, order.StatusPending, o.Status)
	require.Equal(t, "WELCOME10", o.CouponCode)
	require.Equal(t, "user-1", o.UserID)
	require.Len(t, o.Lines, 1)
	require.Equal(t, 650.0, o.Lines[0].LineTotal)
	require.Equal(t, 496.0, o.Totals.FinalTotal)

	_, err = order.FromCart("ord-2", cart.Cart{ID: "empty"}, totals, order.Customer{}, now)
	require.ErrorIs(t, err, order.ErrEmptyCart)
}

func seedOrder(t *testing.T, store order.Store, pointsUsed float64) order.Order {
	t.Helper()
	o, err := order.FromCart(uuid.NewString(), sampleCart(t), pricing.CheckoutTotals{PointsUsed: pointsUsed, FinalTotal: 100}, order.Customer{Name: "Ada"}, time.Now().UTC())
	require.NoError(t, err)
	ev, err := order.NewPlacedEvent(o)
	require.NoError(t, err)
	require.NoError(t, store.Create(context.Background(), o, ev))
	return o
}

func TestCreateWritesOutbox(t *testing.T) {
	outbox := events.NewMemoryStore()
	store := order.NewMemoryStore(outbox)
	o := seedOrder(t, store, 0)

	pending, err := outbox.ListPending(context.Background(), time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, events.TopicOrderCreated, pending[0].Topic)

	var payload order.PlacedEvent
	require.NoError(t, pending[0].Decode(&payload))
	require.Equal(t, o.ID, payload.OrderID)
	require.Equal(t, 100.0, payload.FinalTotal)
}

func TestCancelWithPointsEmitsRefundEvent(t *testing.T) {
	outbox := events.NewMemoryStore()
	store := order.NewMemoryStore(outbox)
	dispatcher := &captureDispatcher{}
	svc := &order.Service{Store: store, Events: dispatcher, Logger: zerolog.Nop()}

	withPoints := seedOrder(t, store, 20)
	updated, err := svc.Transition(context.Background(), withPoints.ID, order.StatusCancelled, order.Tracking{})
	require.NoError(t, err)
	require.Equal(t, order.StatusCancelled, updated.Status)
	require.Len(t, dispatcher.events, 1)
	require.Equal(t, events.TopicOrderCancelled, dispatcher.events[0].Topic)

	var payload order.CancelledEvent
	require.NoError(t, dispatcher.events[0].Decode(&payload))
	require.Equal(t, 20.0, payload.PointsUsed)

	withoutPoints := seedOrder(t, store, 0)
	_, err = svc.Transition(context.Background(), withoutPoints.ID, order.StatusCancelled, order.Tracking{})
	require.NoError(t, err)
	require.Len(t, dispatcher.events, 1)

	_, err = svc.Transition(context.Background(), withPoints.ID, order.StatusInProduction, order.Tracking{})
	require.ErrorIs(t, err, order.ErrInvalidTransition)
}

func patch(t *testing.T, h *order.AdminHandler, id, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/orders/"+id+"/status", bytes.NewBufferString(body))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rr := httptest.NewRecorder()
	h.PatchStatus(rr, req)
	return rr
}

func TestPatchStatusHandler(t *testing.T) {
	store := order.NewMemoryStore(events.NewMemoryStore())
	h := &order.AdminHandler{Svc: &order.Service{Store: store, Logger: zerolog.Nop()}}
	o := seedOrder(t, store, 0)

	rr := patch(t, h, o.ID, `{"status":"in_production"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = patch(t, h, o.ID, `{"status":"shipped"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = patch(t, h, o.ID, `{"status":"shipped","trackingNumber":"1Z999","carrier":"UPS"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Data order.Order `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Equal(t, "1Z999", resp.Data.Tracking.Number)

	rr = patch(t, h, o.ID, `{"status":"pending"}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = patch(t, h, o.ID, `{"status":"paid"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = patch(t, h, uuid.NewString(), `{"status":"delivered"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetHidesOtherUsersOrders(t *testing.T) {
	store := order.NewMemoryStore(events.NewMemoryStore())
	h := &order.Handler{Store: store}
	o := seedOrder(t, store, 0)

	get := func(userID string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+o.ID, nil)
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", o.ID)
		ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
		if userID != "" {
			ctx = common.WithUserID(ctx, userID)
		}
		rr := httptest.NewRecorder()
		h.Get(rr, req.WithContext(ctx))
		return rr.Code
	}
	require.Equal(t, http.StatusOK, get("user-1"))
	require.Equal(t, http.StatusNotFound, get("user-2"))
	require.Equal(t, http.StatusNotFound, get(""))
}
