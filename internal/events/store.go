package events

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateEvent is returned when an event id is already recorded.
var ErrDuplicateEvent = errors.New("events: duplicate event")

// Store is the outbox.
type Store interface {
	InsertEvent(ctx context.Context, ev Event) error
	// ListPending returns undispatched events that occurred before the cutoff,
	// oldest first.
	ListPending(ctx context.Context, before time.Time, limit int) ([]Event, error)
	MarkDispatched(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Execer is satisfied by pgx.Tx, *pgxpool.Pool and *pgx.Conn.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Insert writes ev through db, typically the transaction that persists the
// aggregate the event describes.
func Insert(ctx context.Context, db Execer, ev Event) error {
	_, err := db.Exec(ctx, `INSERT INTO domain_events (id, topic, aggregate_id, payload, occurred_at)
VALUES ($1, $2, $3, $4, $5)`, ev.ID, ev.Topic, ev.AggregateID, []byte(ev.Payload), ev.OccurredAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateEvent
	}
	return err
}

// PGStore keeps the outbox in the domain_events table.
type PGStore struct {
	Pool *pgxpool.Pool
}

func (s *PGStore) InsertEvent(ctx context.Context, ev Event) error {
	return Insert(ctx, s.Pool, ev)
}

func (s *PGStore) ListPending(ctx context.Context, before time.Time, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.Pool.Query(ctx, `SELECT id, topic, aggregate_id, payload, occurred_at
FROM domain_events WHERE dispatched_at IS NULL AND occurred_at < $1
ORDER BY occurred_at LIMIT $2`, before, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Event, error) {
		var (
			ev      Event
			payload []byte
		)
		err := row.Scan(&ev.ID, &ev.Topic, &ev.AggregateID, &payload, &ev.OccurredAt)
		ev.Payload = payload
		return ev, err
	})
}

func (s *PGStore) MarkDispatched(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.Pool.Exec(ctx, `UPDATE domain_events SET dispatched_at = $2 WHERE id = $1 AND dispatched_at IS NULL`, id, at)
	return err
}

// MemoryStore is an in-process outbox.
type MemoryStore struct {
	mu     sync.Mutex
	events map[uuid.UUID]Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[uuid.UUID]Event)}
}

func (m *MemoryStore) InsertEvent(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[ev.ID]; ok {
		return ErrDuplicateEvent
	}
	m.events[ev.ID] = ev
	return nil
}

func (m *MemoryStore) ListPending(_ context.Context, before time.Time, limit int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, 0)
	for _, ev := range m.events {
		if ev.DispatchedAt == nil && ev.OccurredAt.Before(before) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) MarkDispatched(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok || ev.DispatchedAt != nil {
		return nil
	}
	ev.DispatchedAt = &at
	m.events[id] = ev
	return nil
}

// Get returns a recorded event.
func (m *MemoryStore) Get(id uuid.UUID) (Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	return ev, ok
}
