// Package app assembles the storefront from configuration. Both binaries
// share it so the API and the worker agree on keys, prefixes and routes.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-blinds/internal/config"
	"github.com/noah-isme/backend-blinds/internal/db"
	"github.com/noah-isme/backend-blinds/internal/obs"
)

const slowQuery = 250 * time.Millisecond

// Infra holds the connections every component shares.
type Infra struct {
	DB    *pgxpool.Pool
	Redis *redis.Client
}

// OpenInfra connects to Postgres and Redis, instrumenting both.
func OpenInfra(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Infra, error) {
	pool, err := db.Connect(ctx, cfg.DatabaseURL, obs.PGXTracer{SlowQuery: slowQuery, Logger: logger})
	if err != nil {
		return nil, err
	}

	rdb, err := OpenRedis(ctx, cfg.RedisURL, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &Infra{DB: pool, Redis: rdb}, nil
}

// OpenRedis parses url, adds tracing and metrics hooks and pings the server.
func OpenRedis(ctx context.Context, url string, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(rdb); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// Close releases both connections.
func (i *Infra) Close() error {
	if i == nil {
		return nil
	}
	if i.DB != nil {
		i.DB.Close()
	}
	if i.Redis != nil {
		return i.Redis.Close()
	}
	return nil
}
