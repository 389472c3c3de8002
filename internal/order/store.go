package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-blinds/internal/events"
)

// EmitFunc builds the outbox events for a status change. It runs inside the
// store's transaction with the updated order.
type EmitFunc func(Order) ([]events.Event, error)

// Store persists orders. Create and UpdateStatus write the given outbox
// events atomically with the order row.
type Store interface {
	Create(ctx context.Context, o Order, outbox ...events.Event) error
	Get(ctx context.Context, id string) (Order, error)
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, to Status, tracking Tracking, emit EmitFunc) (Order, error)
}

// PGStore keeps orders in Postgres. Lines, totals and customer are JSONB.
type PGStore struct {
	Pool *pgxpool.Pool
	Now  func() time.Time
}

const orderColumns = `id, user_id, cart_id, status, lines, coupon_code, totals, customer, tracking_number, carrier, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, o Order, outbox ...events.Event) error {
	if _, err := uuid.Parse(o.ID); err != nil {
		return fmt.Errorf("order: invalid id %q: %w", o.ID, err)
	}
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return err
	}
	totals, err := json.Marshal(o.Totals)
	if err != nil {
		return err
	}
	customer, err := json.Marshal(o.Customer)
	if err != nil {
		return err
	}

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `INSERT INTO orders (`+orderColumns+`)
VALUES ($1, NULLIF($2, ''), $3, $4, $5, NULLIF($6, ''), $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11, $12)`,
		o.ID, o.UserID, o.CartID, string(o.Status), lines, o.CouponCode, totals, customer,
		o.Tracking.Number, o.Tracking.Carrier, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("order: insert: %w", err)
	}
	for _, ev := range outbox {
		if err := events.Insert(ctx, tx, ev); err != nil {
			return fmt.Errorf("order: outbox: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PGStore) Get(ctx context.Context, id string) (Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Order{}, ErrNotFound
	}
	o, err := scanOrder(s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return o, err
}

func (s *PGStore) ListForUser(ctx context.Context, userID string, limit, offset int) ([]Order, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1
ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Order, 0, limit)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PGStore) UpdateStatus(ctx context.Context, id string, to Status, tracking Tracking, emit EmitFunc) (Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Order{}, ErrNotFound
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	updated, err := applyTransition(o, to, tracking, s.now())
	if err != nil {
		return Order{}, err
	}
	_, err = tx.Exec(ctx, `UPDATE orders SET status = $2, tracking_number = NULLIF($3, ''), carrier = NULLIF($4, ''), updated_at = $5 WHERE id = $1`,
		id, string(updated.Status), updated.Tracking.Number, updated.Tracking.Carrier, updated.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	if emit != nil {
		evs, err := emit(updated)
		if err != nil {
			return Order{}, err
		}
		for _, ev := range evs {
			if err := events.Insert(ctx, tx, ev); err != nil {
				return Order{}, fmt.Errorf("order: outbox: %w", err)
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return updated, nil
}

func (s *PGStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o                                 Order
		userID, coupon, tracking, carrier *string
		status                            string
		lines, totals, customer           []byte
	)
	err := row.Scan(&o.ID, &userID, &o.CartID, &status, &lines, &coupon, &totals, &customer, &tracking, &carrier, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	o.UserID = deref(userID)
	o.CouponCode = deref(coupon)
	o.Tracking = Tracking{Number: deref(tracking), Carrier: deref(carrier)}
	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return Order{}, fmt.Errorf("order: decode lines: %w", err)
	}
	if err := json.Unmarshal(totals, &o.Totals); err != nil {
		return Order{}, fmt.Errorf("order: decode totals: %w", err)
	}
	if err := json.Unmarshal(customer, &o.Customer); err != nil {
		return Order{}, fmt.Errorf("order: decode customer: %w", err)
	}
	return o, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func applyTransition(o Order, to Status, tracking Tracking, now time.Time) (Order, error) {
	if !CanTransition(o.Status, to) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	if tracking.Number != "" {
		o.Tracking.Number = tracking.Number
	}
	if tracking.Carrier != "" {
		o.Tracking.Carrier = tracking.Carrier
	}
	o.UpdatedAt = now
	return o, nil
}

// MemoryStore keeps orders in process. Outbox events go to Outbox when set.
type MemoryStore struct {
	Outbox events.Store
	Now    func() time.Time

	mu     sync.Mutex
	orders map[string]Order
}

func NewMemoryStore(outbox events.Store) *MemoryStore {
	return &MemoryStore{Outbox: outbox, orders: make(map[string]Order)}
}

func (m *MemoryStore) Create(ctx context.Context, o Order, outbox ...events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return fmt.Errorf("order: duplicate id %s", o.ID)
	}
	if err := m.writeOutbox(ctx, outbox); err != nil {
		return err
	}
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *MemoryStore) ListForUser(_ context.Context, userID string, limit, offset int) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Order, 0)
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return []Order{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, id string, to Status, tracking Tracking, emit EmitFunc) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	now := time.Now().UTC()
	if m.Now != nil {
		now = m.Now()
	}
	updated, err := applyTransition(o, to, tracking, now)
	if err != nil {
		return Order{}, err
	}
	if emit != nil {
		evs, err := emit(updated)
		if err != nil {
			return Order{}, err
		}
		if err := m.writeOutbox(ctx, evs); err != nil {
			return Order{}, err
		}
	}
	m.orders[id] = updated
	return cloneOrder(updated), nil
}

func (m *MemoryStore) writeOutbox(ctx context.Context, evs []events.Event) error {
	if len(evs) == 0 {
		return nil
	}
	if m.Outbox == nil {
		return errors.New("order: outbox not configured")
	}
	for _, ev := range evs {
		if err := m.Outbox.InsertEvent(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func cloneOrder(o Order) Order {
	o.Lines = append([]Line(nil), o.Lines...)
	return o
}
