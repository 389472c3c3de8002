// Package audit keeps a trail of admin mutations.
package audit

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-blinds/internal/common"
)

// Entry is one recorded admin action.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	ActorID    string    `json:"actorId"`
	ActorRole  string    `json:"actorRole,omitempty"`
	Action     string    `json:"action"`
	ResourceID string    `json:"resourceId,omitempty"`
	Method     string    `json:"method"`
	Route      string    `json:"route"`
	Status     int       `json:"status"`
	RequestID  string    `json:"requestId,omitempty"`
	IP         string    `json:"ip,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store persists audit entries.
type Store interface {
	Insert(ctx context.Context, e Entry) error
	List(ctx context.Context, limit, offset int) ([]Entry, error)
}

// Service builds entries from handled requests.
type Service struct {
	Store   Store
	Enabled bool
	Now     func() time.Time
}

// Record stores an entry for req. action defaults to "METHOD route".
func (s Service) Record(ctx context.Context, req *http.Request, action, resourceID string, status int) error {
	if !s.Enabled {
		return nil
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}
	if req == nil {
		return errors.New("audit: request is required")
	}

	route := strings.TrimSpace(req.URL.Path)
	if rctx := chi.RouteContext(req.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			route = pattern
		}
	}
	action = strings.TrimSpace(action)
	if action == "" {
		action = req.Method + " " + route
	}
	actor, _ := common.UserID(req.Context())
	if status == 0 {
		status = http.StatusOK
	}

	return s.Store.Insert(ctx, Entry{
		ID:         uuid.New(),
		ActorID:    actor,
		ActorRole:  common.Role(req.Context()),
		Action:     action,
		ResourceID: strings.TrimSpace(resourceID),
		Method:     req.Method,
		Route:      route,
		Status:     status,
		RequestID:  middleware.GetReqID(req.Context()),
		IP:         common.ClientIP(req),
		CreatedAt:  s.now(),
	})
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// PGStore writes to admin_audit_log.
type PGStore struct {
	Pool *pgxpool.Pool
}

func (s PGStore) Insert(ctx context.Context, e Entry) error {
	if s.Pool == nil {
		return errors.New("audit: pool not configured")
	}
	_, err := s.Pool.Exec(ctx, `INSERT INTO admin_audit_log (id, actor_id, actor_role, action, resource_id, method, route, status, request_id, ip, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.ActorID, e.ActorRole, e.Action, e.ResourceID, e.Method, e.Route, e.Status, e.RequestID, e.IP, e.CreatedAt)
	return err
}

func (s PGStore) List(ctx context.Context, limit, offset int) ([]Entry, error) {
	if s.Pool == nil {
		return nil, errors.New("audit: pool not configured")
	}
	rows, err := s.Pool.Query(ctx, `SELECT id, actor_id, actor_role, action, resource_id, method, route, status, request_id, ip, created_at
FROM admin_audit_log ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorRole, &e.Action, &e.ResourceID, &e.Method, &e.Route, &e.Status, &e.RequestID, &e.IP, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MemoryStore keeps entries in process. Used by tests and local runs
// without Postgres.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *MemoryStore) Insert(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *MemoryStore) List(_ context.Context, limit, offset int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]Entry(nil), m.entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return []Entry{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
