package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
)

const listCacheKey = "products"

// Service serves products with a read-through cache.
type Service struct {
	repo   Repository
	cache  *Cache
	logger zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Repository Repository
	Cache      *Cache
	Logger     zerolog.Logger
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repository == nil {
		return nil, errors.New("catalog: repository is required")
	}
	return &Service{repo: cfg.Repository, cache: cfg.Cache, logger: cfg.Logger}, nil
}

// List returns all active products.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	var cached []Product
	if ok, err := s.cache.GetJSON(ctx, listCacheKey, &cached); err == nil && ok {
		return cached, nil
	} else if err != nil {
		s.logger.Warn().Err(err).Msg("catalog cache read failed")
	}
	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []Product{}
	}
	_ = s.cache.SetJSON(ctx, listCacheKey, products)
	return products, nil
}

// Get returns one product by id.
func (s *Service) Get(ctx context.Context, id string) (Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Product{}, ErrNotFound
	}
	key := productCacheKey(id)
	var cached Product
	if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	} else if err != nil {
		s.logger.Warn().Err(err).Str("product_id", id).Msg("catalog cache read failed")
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	_ = s.cache.SetJSON(ctx, key, p)
	return p, nil
}

// Invalidate drops cached copies of the given products and the list.
func (s *Service) Invalidate(ctx context.Context, ids ...string) error {
	keys := []string{listCacheKey}
	for _, id := range ids {
		keys = append(keys, productCacheKey(id))
	}
	return s.cache.Delete(ctx, keys...)
}

func productCacheKey(id string) string {
	return "product:" + id
}
