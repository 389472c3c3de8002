package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Store persists carts. Implementations return ErrNotFound for missing or
// expired carts.
type Store interface {
	Get(ctx context.Context, id string) (Cart, error)
	Save(ctx context.Context, c Cart, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// RedisStore keeps each cart as one JSON value with a sliding TTL.
type RedisStore struct {
	Client redis.UniversalClient
	Prefix string
}

func (s RedisStore) key(id string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "cart"
	}
	return fmt.Sprintf("%s:%s", prefix, id)
}

// Get implements Store.
func (s RedisStore) Get(ctx context.Context, id string) (Cart, error) {
	if s.Client == nil {
		return Cart{}, errors.New("cart: redis client not configured")
	}
	data, err := s.Client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Cart{}, ErrNotFound
		}
		return Cart{}, err
	}
	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return Cart{}, fmt.Errorf("cart: decode %s: %w", id, err)
	}
	return c, nil
}

// Save implements Store.
func (s RedisStore) Save(ctx context.Context, c Cart, ttl time.Duration) error {
	if s.Client == nil {
		return errors.New("cart: redis client not configured")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.Client.Set(ctx, s.key(c.ID), data, ttl).Err()
}

// Delete implements Store.
func (s RedisStore) Delete(ctx context.Context, id string) error {
	if s.Client == nil {
		return errors.New("cart: redis client not configured")
	}
	return s.Client.Del(ctx, s.key(id)).Err()
}

type memoryEntry struct {
	cart    Cart
	expires time.Time
}

// MemoryStore is an in-process Store for tests.
type MemoryStore struct {
	mu    sync.Mutex
	carts map[string]memoryEntry
	Now   func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: map[string]memoryEntry{}}
}

func (m *MemoryStore) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id string) (Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.carts[id]
	if !ok || (!e.expires.IsZero() && !m.now().Before(e.expires)) {
		return Cart{}, ErrNotFound
	}
	return e.cart.clone(), nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, c Cart, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.carts == nil {
		m.carts = map[string]memoryEntry{}
	}
	var expires time.Time
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}
	m.carts[c.ID] = memoryEntry{cart: c.clone(), expires: expires}
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, id)
	return nil
}
