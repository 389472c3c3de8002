package app

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-blinds/internal/audit"
	"github.com/noah-isme/backend-blinds/internal/auth"
	"github.com/noah-isme/backend-blinds/internal/cart"
	"github.com/noah-isme/backend-blinds/internal/catalog"
	"github.com/noah-isme/backend-blinds/internal/checkout"
	"github.com/noah-isme/backend-blinds/internal/common"
	"github.com/noah-isme/backend-blinds/internal/config"
	"github.com/noah-isme/backend-blinds/internal/coupon"
	"github.com/noah-isme/backend-blinds/internal/events"
	"github.com/noah-isme/backend-blinds/internal/fulfillment"
	"github.com/noah-isme/backend-blinds/internal/health"
	"github.com/noah-isme/backend-blinds/internal/lock"
	"github.com/noah-isme/backend-blinds/internal/loyalty"
	"github.com/noah-isme/backend-blinds/internal/order"
	"github.com/noah-isme/backend-blinds/internal/pricing"
	"github.com/noah-isme/backend-blinds/internal/queue"
	"github.com/noah-isme/backend-blinds/internal/ratelimit"
	"github.com/noah-isme/backend-blinds/internal/resilience"
)

// Redis key prefixes shared by the API and the worker.
const (
	cartPrefix          = "cart"
	loyaltyPrefix       = "loyalty"
	couponLimitPrefix   = "rl:coupon"
	checkoutLimitPrefix = "rl:checkout"
)

// Components is the fully wired storefront.
type Components struct {
	Config *config.Config
	Logger zerolog.Logger

	Tokens   *auth.Tokens
	Catalog  *catalog.Service
	Coupons  *coupon.Service
	Carts    *cart.Service
	Loyalty  *loyalty.Service
	Orders   order.Store
	OrderSvc *order.Service
	Checkout *checkout.Service

	Outbox events.Store
	Bus    *events.Bus
	Queue  queue.Enqueuer
	DLQ    queue.Store
	Locker lock.Locker

	Audit           audit.Service
	Idem            common.Idem
	CouponLimiter   ratelimit.Limiter
	CheckoutLimiter ratelimit.Limiter
	Health          health.Handler
}

// Build wires every component. pool may be nil, in which case coupons come
// from the static registry only, the audit trail stays in memory and the
// remaining Postgres backed stores fail on use.
func Build(cfg *config.Config, pool *pgxpool.Pool, rdb redis.UniversalClient, logger zerolog.Logger) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	if rdb == nil {
		return nil, errors.New("app: redis client required")
	}

	tokens, err := auth.NewTokens(auth.Config{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		return nil, fmt.Errorf("auth tokens: %w", err)
	}

	catalogSvc, err := catalog.NewService(catalog.ServiceConfig{
		Repository: catalog.PGRepository{Pool: pool},
		Cache:      catalog.NewCache(rdb, cfg.CatalogCacheTTL),
		Logger:     logger.With().Str("component", "catalog").Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	registry, err := coupon.ParseRegistry(cfg.Coupons)
	if err != nil {
		return nil, fmt.Errorf("coupons: %w", err)
	}
	repos := coupon.Chain{registry}
	if pool != nil {
		repos = append(repos, coupon.PGRepository{Pool: pool})
	}
	coupons := &coupon.Service{Repo: repos}

	rules := pricing.DefaultRules()
	rules.TaxRateBps = cfg.TaxRateBps
	rates := loyalty.Rates{EarnRate: cfg.PointsEarnRate, PointValue: cfg.PointValue}

	carts := &cart.Service{
		Store:    cart.RedisStore{Client: rdb, Prefix: cartPrefix},
		Products: catalogSvc,
		Coupons:  coupons,
		Pricing:  PricingConfig(cfg),
		Rules:    rules,
		TTL:      cfg.CartTTL,
	}
	ledger := &loyalty.Service{
		Store: loyalty.RedisStore{Client: rdb, Prefix: loyaltyPrefix},
		Rates: rates,
	}

	tasks := queue.Enqueuer{
		R:           rdb,
		Prefix:      cfg.QueueRedisPrefix,
		DedupTTL:    cfg.IdempotencyTTL,
		MaxAttempts: cfg.QueueMaxAttempts,
	}
	outbox := &events.PGStore{Pool: pool}
	bus := &events.Bus{
		Store:     outbox,
		Scheduler: events.TaskScheduler{Queue: tasks, Routes: events.DefaultRoutes()},
	}

	orders := &order.PGStore{Pool: pool}
	checkoutLog := logger.With().Str("component", "checkout").Logger()
	placer := &checkout.Service{
		Carts:   carts,
		Coupons: coupons,
		Orders:  orders,
		Loyalty: ledger,
		Events:  bus,
		Rules:   rules,
		Rates:   rates,
		Logger:  checkoutLog,
	}

	couponLimiter, err := ratelimit.NewFixed(rdb, couponLimitPrefix, cfg.CouponRateLimitMax, cfg.CouponRateLimitWindow)
	if err != nil {
		return nil, fmt.Errorf("coupon rate limiter: %w", err)
	}

	var (
		dlq        queue.Store
		auditStore audit.Store = &audit.MemoryStore{}
	)
	if pool != nil {
		dlq = queue.NewStore(pool)
		auditStore = audit.PGStore{Pool: pool}
	}

	return &Components{
		Config:   cfg,
		Logger:   logger,
		Tokens:   tokens,
		Catalog:  catalogSvc,
		Coupons:  coupons,
		Carts:    carts,
		Loyalty:  ledger,
		Orders:   orders,
		OrderSvc: &order.Service{Store: orders, Events: bus, Logger: logger.With().Str("component", "order").Logger()},
		Checkout: placer,
		Outbox:   outbox,
		Bus:      bus,
		Queue:    tasks,
		DLQ:      dlq,
		Locker:   lock.Locker{R: rdb, RetryBackoff: cfg.LockRetryBackoff},
		Idem:     common.Idem{R: rdb, TTL: cfg.IdempotencyTTL},
		Audit:    audit.Service{Store: auditStore, Enabled: cfg.AuditEnabled},

		CouponLimiter: couponLimiter,
		CheckoutLimiter: ratelimit.Sliding{
			Client: rdb,
			Prefix: checkoutLimitPrefix,
			Window: cfg.CheckoutRateLimitWindow,
			Max:    cfg.CheckoutRateLimitMax,
		},
		Health: health.Handler{
			Checker:      health.Probes{DB: pool, Redis: rdb},
			DBTimeout:    500 * time.Millisecond,
			RedisTimeout: 300 * time.Millisecond,
		},
	}, nil
}

// PricingConfig maps the pricing keys onto the engine's configuration.
func PricingConfig(cfg *config.Config) pricing.Config {
	pc := pricing.DefaultConfig()
	if cfg.PricePerSqIn > 0 {
		pc.PricePerSquareInch = cfg.PricePerSqIn
	}
	if cfg.MinBilledAreaSqIn > 0 {
		pc.MinimumBilledAreaSqIn = cfg.MinBilledAreaSqIn
	}
	return pc
}

// FulfillmentTasks builds the task handlers the worker runs. The sheet
// client sits behind a breaker so a dead endpoint fails fast.
func (c *Components) FulfillmentTasks() *fulfillment.Tasks {
	cfg := c.Config
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Target:       "fulfillment-sheet",
		MinRequests:  cfg.CircuitMinRequests,
		FailureRatio: cfg.CircuitFailureRatio,
		OpenFor:      cfg.CircuitOpenFor,
	}, c.Logger)

	return &fulfillment.Tasks{
		Orders: c.Orders,
		Sheet: fulfillment.SheetClient{
			URL:    cfg.FulfillmentSheetURL,
			Secret: cfg.FulfillmentSheetSecret,
			HTTP:   fulfillment.NewHTTPClient(cfg.FulfillmentTimeout, cfg.RetryMaxAttempts, cfg.RetryBase, cfg.RetryJitterPercent, breaker),
		},
		Loyalty: c.Loyalty,
		Locker:  c.Locker,
		LockTTL: cfg.LockTTL,
		Logger:  c.Logger.With().Str("component", "fulfillment").Logger(),
	}
}

// Workers returns one queue worker per task kind, sorted by kind.
func (c *Components) Workers(handlers map[string]queue.Handler) []queue.Worker {
	cfg := c.Config
	kinds := make([]string, 0, len(handlers))
	for kind := range handlers {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	workers := make([]queue.Worker, 0, len(kinds))
	for _, kind := range kinds {
		log := c.Logger.With().Str("kind", kind).Logger()
		workers = append(workers, queue.Worker{
			R:                 c.Queue.R,
			Prefix:            cfg.QueueRedisPrefix,
			Kind:              kind,
			Concurrency:       cfg.QueueConcurrency,
			VisibilityTimeout: cfg.QueueVisibilityTimeout,
			HeartbeatInterval: cfg.QueueVisibilityTimeout / 3,
			Handler:           handlers[kind],
			RetryBase:         cfg.QueueBackoffBase,
			RetryJitter:       cfg.QueueBackoffJitter,
			Store:             c.DLQ,
			Logger:            &log,
		})
	}
	return workers
}

// Relay returns the outbox sweeper for events whose inline dispatch failed.
func (c *Components) Relay() events.Relay {
	log := c.Logger.With().Str("component", "relay").Logger()
	return events.Relay{
		Bus:      c.Bus,
		Interval: c.Config.RelayInterval,
		Grace:    c.Config.RelayGrace,
		Batch:    100,
		Logger:   &log,
	}
}
