package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrStoreUnavailable indicates the DLQ store dependency is not configured.
	ErrStoreUnavailable = errors.New("queue: store unavailable")
	// ErrDLQNotFound is returned when a dead letter id does not exist.
	ErrDLQNotFound = errors.New("queue: dead letter not found")
)

// Store persists tasks that exhausted their retries.
type Store interface {
	InsertQueueDlq(ctx context.Context, entry DLQEntry) (uuid.UUID, error)
	DeleteQueueDlq(ctx context.Context, id uuid.UUID) error
	GetQueueDlq(ctx context.Context, id uuid.UUID) (DLQEntry, error)
	ListQueueDlq(ctx context.Context, kind string, limit, offset int) ([]DLQEntry, error)
	CountQueueDlq(ctx context.Context, kind string) (int64, error)
	QueueDlqSizeByKind(ctx context.Context) (map[string]int64, error)
}

// DLQEntry is one dead-lettered task. Payload holds the encoded queue
// message so a replay restores kind, key and attempt bookkeeping.
type DLQEntry struct {
	ID             uuid.UUID
	Kind           string
	IdempotencyKey string
	Payload        []byte
	Attempts       int
	LastError      *string
	CreatedAt      time.Time
}

// PGStore keeps dead letters in the queue_dlq table.
type PGStore struct {
	Pool *pgxpool.Pool
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{Pool: pool}
}

const dlqColumns = `id, kind, idem_key, payload, attempts, last_error, created_at`

func (s *PGStore) InsertQueueDlq(ctx context.Context, entry DLQEntry) (uuid.UUID, error) {
	if s == nil || s.Pool == nil {
		return uuid.Nil, ErrStoreUnavailable
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	_, err := s.Pool.Exec(ctx, `INSERT INTO queue_dlq (id, kind, idem_key, payload, attempts, last_error)
VALUES ($1, $2, $3, $4, $5, $6)`, entry.ID, entry.Kind, entry.IdempotencyKey, entry.Payload, entry.Attempts, entry.LastError)
	if err != nil {
		return uuid.Nil, err
	}
	return entry.ID, nil
}

func (s *PGStore) DeleteQueueDlq(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.Pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.Pool.Exec(ctx, `DELETE FROM queue_dlq WHERE id = $1`, id)
	return err
}

func (s *PGStore) GetQueueDlq(ctx context.Context, id uuid.UUID) (DLQEntry, error) {
	if s == nil || s.Pool == nil {
		return DLQEntry{}, ErrStoreUnavailable
	}
	entry, err := scanEntry(s.Pool.QueryRow(ctx, `SELECT `+dlqColumns+` FROM queue_dlq WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return DLQEntry{}, ErrDLQNotFound
	}
	return entry, err
}

// ListQueueDlq returns newest entries first, optionally filtered by kind.
func (s *PGStore) ListQueueDlq(ctx context.Context, kind string, limit, offset int) ([]DLQEntry, error) {
	if s == nil || s.Pool == nil {
		return nil, ErrStoreUnavailable
	}
	limit = clampPositive(limit, 1, 500)
	offset = max(offset, 0)
	rows, err := s.Pool.Query(ctx, `SELECT `+dlqColumns+` FROM queue_dlq
WHERE $1 = '' OR kind = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, strings.TrimSpace(kind), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]DLQEntry, 0, limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *PGStore) CountQueueDlq(ctx context.Context, kind string) (int64, error) {
	if s == nil || s.Pool == nil {
		return 0, ErrStoreUnavailable
	}
	var total int64
	err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM queue_dlq WHERE $1 = '' OR kind = $1`, strings.TrimSpace(kind)).Scan(&total)
	return total, err
}

func (s *PGStore) QueueDlqSizeByKind(ctx context.Context) (map[string]int64, error) {
	if s == nil || s.Pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.Pool.Query(ctx, `SELECT kind, COUNT(*) FROM queue_dlq GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var (
			kind  string
			total int64
		)
		if err := rows.Scan(&kind, &total); err != nil {
			return nil, err
		}
		result[kind] = total
	}
	return result, rows.Err()
}

func scanEntry(row pgx.Row) (DLQEntry, error) {
	var entry DLQEntry
	err := row.Scan(&entry.ID, &entry.Kind, &entry.IdempotencyKey, &entry.Payload, &entry.Attempts, &entry.LastError, &entry.CreatedAt)
	return entry, err
}

func clampPositive(value, lo, hi int) int {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
