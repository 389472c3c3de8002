package audit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-blinds/internal/common"
)

type failingStore struct{}

func (failingStore) Insert(context.Context, Entry) error { return errors.New("db down") }
func (failingStore) List(context.Context, int, int) ([]Entry, error) {
	return nil, errors.New("db down")
}

func adminRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	ctx := common.WithUserID(req.Context(), "ops-1")
	ctx = common.WithRole(ctx, "admin")
	return req.WithContext(ctx)
}

func TestRecorderCapturesRouteAndResource(t *testing.T) {
	store := &MemoryStore{}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := Recorder{Service: Service{Store: store, Enabled: true, Now: func() time.Time { return now }}, Logger: zerolog.Nop()}

	r := chi.NewRouter()
	r.With(rec.Middleware("order.status", "id")).Patch("/admin/orders/{id}/status", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, adminRequest(http.MethodPatch, "/admin/orders/o-42/status"))
	require.Equal(t, http.StatusConflict, w.Code)

	entries, err := store.List(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	require.Equal(t, "ops-1", e.ActorID)
	require.Equal(t, "admin", e.ActorRole)
	require.Equal(t, "order.status", e.Action)
	require.Equal(t, "o-42", e.ResourceID)
	require.Equal(t, "/admin/orders/{id}/status", e.Route)
	require.Equal(t, http.StatusConflict, e.Status)
	require.Equal(t, now, e.CreatedAt)
}

func TestRecorderDisabledAndFailingStore(t *testing.T) {
	store := &MemoryStore{}
	off := Recorder{Service: Service{Store: store}, Logger: zerolog.Nop()}
	h := off.Middleware("noop", "")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, adminRequest(http.MethodPost, "/x"))
	require.Equal(t, http.StatusNoContent, w.Code)
	entries, _ := store.List(context.Background(), 10, 0)
	require.Empty(t, entries)

	broken := Recorder{Service: Service{Store: failingStore{}, Enabled: true}, Logger: zerolog.Nop()}
	h = broken.Middleware("replay", "")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, adminRequest(http.MethodPost, "/x"))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestServiceDefaultsActionToMethodAndPath(t *testing.T) {
	store := &MemoryStore{}
	svc := Service{Store: store, Enabled: true}
	require.NoError(t, svc.Record(context.Background(), adminRequest(http.MethodPost, "/admin/queue/dlq/replay"), "", "", 0))

	entries, err := store.List(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Equal(t, "POST /admin/queue/dlq/replay", entries[0].Action)
	require.Equal(t, http.StatusOK, entries[0].Status)
}

func TestHandlerList(t *testing.T) {
	store := &MemoryStore{}
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := range 3 {
		require.NoError(t, store.Insert(context.Background(), Entry{Action: "a", CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	w := httptest.NewRecorder()
	Handler{Store: store}.List(w, httptest.NewRequest(http.MethodGet, "/admin/audit?limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), base.Add(2*time.Minute).Format(time.RFC3339))
	require.NotContains(t, w.Body.String(), base.Format(time.RFC3339))

	w = httptest.NewRecorder()
	Handler{Store: failingStore{}}.List(w, httptest.NewRequest(http.MethodGet, "/admin/audit", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)

	w = httptest.NewRecorder()
	Handler{}.List(w, httptest.NewRequest(http.MethodGet, "/admin/audit", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
