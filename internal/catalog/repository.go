package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads active products.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id string) (Product, error)
}

// PGRepository loads products from Postgres. Motor options are stored as JSONB.
type PGRepository struct {
	Pool *pgxpool.Pool
}

const productColumns = `id, name, fabrics, min_width, max_width, min_height, max_height, motor_options, remote_surcharge`

// List implements Repository.
func (r PGRepository) List(ctx context.Context) ([]Product, error) {
	if r.Pool == nil {
		return nil, errors.New("catalog: pool not configured")
	}
	rows, err := r.Pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get implements Repository.
func (r PGRepository) Get(ctx context.Context, id string) (Product, error) {
	if r.Pool == nil {
		return Product{}, errors.New("catalog: pool not configured")
	}
	row := r.Pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 AND active`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p      Product
		motors []byte
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Fabrics, &p.Bounds.MinWidth, &p.Bounds.MaxWidth,
		&p.Bounds.MinHeight, &p.Bounds.MaxHeight, &motors, &p.RemoteSurcharge); err != nil {
		return Product{}, err
	}
	if len(motors) > 0 {
		if err := json.Unmarshal(motors, &p.MotorOptions); err != nil {
			return Product{}, fmt.Errorf("catalog: decode motor options for %s: %w", p.ID, err)
		}
	}
	return p, nil
}

// MemoryRepository serves a fixed product set.
type MemoryRepository struct {
	mu       sync.RWMutex
	products map[string]Product
}

// NewMemoryRepository builds a repository from products.
func NewMemoryRepository(products ...Product) *MemoryRepository {
	m := &MemoryRepository{products: make(map[string]Product, len(products))}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

// List implements Repository.
func (m *MemoryRepository) List(context.Context) ([]Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Get implements Repository.
func (m *MemoryRepository) Get(_ context.Context, id string) (Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}
