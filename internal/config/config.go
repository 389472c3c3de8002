package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// devJWTSecret signs tokens outside production when JWT_SECRET is unset.
const devJWTSecret = "development-only-secret"

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	CORSAllowedOrigins []string

	// pricing and loyalty
	PricePerSqIn      float64
	MinBilledAreaSqIn float64
	TaxRateBps        int
	PointsEarnRate    float64
	PointValue        float64
	Coupons           string
	CartTTL           time.Duration
	CatalogCacheTTL   time.Duration

	FulfillmentSheetURL    string
	FulfillmentSheetSecret string
	FulfillmentTimeout     time.Duration

	RetryBase           time.Duration
	RetryMaxAttempts    int
	RetryJitterPercent  float64
	CircuitMinRequests  int
	CircuitFailureRatio float64
	CircuitOpenFor      time.Duration

	QueueRedisPrefix       string
	QueueMaxAttempts       int
	QueueConcurrency       int
	QueueVisibilityTimeout time.Duration
	QueueBackoffBase       time.Duration
	QueueBackoffJitter     float64
	RelayInterval          time.Duration
	RelayGrace             time.Duration

	LockTTL          time.Duration
	LockRetryBackoff time.Duration
	IdempotencyTTL   time.Duration
	AuditEnabled     bool

	CouponRateLimitMax      int
	CouponRateLimitWindow   time.Duration
	CheckoutRateLimitMax    int
	CheckoutRateLimitWindow time.Duration

	LogFormat            string
	LogLevel             string
	MetricsNamespace     string
	EnableTracing        bool
	OTLPEndpoint         string
	TracingSamplingRatio float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	p := parser{k: k}

	cfg := &Config{
		AppEnv:             p.str("APP_ENV", "development"),
		Port:               p.str("PORT", "8080"),
		DatabaseURL:        p.str("DATABASE_URL", ""),
		RedisURL:           p.str("REDIS_URL", ""),
		JWTSecret:          p.str("JWT_SECRET", ""),
		JWTIssuer:          p.str("JWT_ISSUER", "backend-blinds"),
		JWTAudience:        p.str("JWT_AUDIENCE", ""),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		PricePerSqIn:      p.float("PRICE_PER_SQ_IN", 0.07),
		MinBilledAreaSqIn: p.float("MIN_BILLED_AREA_SQ_IN", 400),
		TaxRateBps:        p.int("TAX_RATE_BPS", 825),
		PointsEarnRate:    p.float("POINTS_EARN_RATE", 0.1),
		PointValue:        p.float("POINT_VALUE", 0.5),
		Coupons:           p.str("COUPONS", "WELCOME10:percent:10"),
		CartTTL:           p.duration("CART_TTL", 7*24*time.Hour),
		CatalogCacheTTL:   p.duration("CATALOG_CACHE_TTL", 5*time.Minute),

		FulfillmentSheetURL:    p.str("FULFILLMENT_SHEET_URL", ""),
		FulfillmentSheetSecret: p.str("FULFILLMENT_SHEET_SECRET", ""),
		FulfillmentTimeout:     p.duration("FULFILLMENT_TIMEOUT", 10*time.Second),

		RetryBase:           p.duration("RETRY_BASE", 200*time.Millisecond),
		RetryMaxAttempts:    p.int("RETRY_MAX_ATTEMPTS", 3),
		RetryJitterPercent:  p.float("RETRY_JITTER_PERCENT", 0.2),
		CircuitMinRequests:  p.int("CIRCUIT_MIN_REQUESTS", 5),
		CircuitFailureRatio: p.float("CIRCUIT_FAILURE_RATIO", 0.5),
		CircuitOpenFor:      p.duration("CIRCUIT_OPEN_FOR", 30*time.Second),

		QueueRedisPrefix:       p.str("QUEUE_REDIS_PREFIX", "queue"),
		QueueMaxAttempts:       p.int("QUEUE_MAX_ATTEMPTS", 8),
		QueueConcurrency:       p.int("QUEUE_CONCURRENCY", 4),
		QueueVisibilityTimeout: p.duration("QUEUE_VISIBILITY_TIMEOUT", 30*time.Second),
		QueueBackoffBase:       p.duration("QUEUE_BACKOFF_BASE", time.Second),
		QueueBackoffJitter:     p.float("QUEUE_BACKOFF_JITTER", 0.2),
		RelayInterval:          p.duration("RELAY_INTERVAL", 10*time.Second),
		RelayGrace:             p.duration("RELAY_GRACE", 30*time.Second),

		LockTTL:          p.duration("LOCK_TTL", 30*time.Second),
		LockRetryBackoff: p.duration("LOCK_RETRY_BACKOFF", 100*time.Millisecond),
		IdempotencyTTL:   p.duration("IDEMPOTENCY_TTL", 24*time.Hour),
		AuditEnabled:     p.bool("AUDIT_ENABLED", true),

		CouponRateLimitMax:      p.int("COUPON_RATE_LIMIT_MAX", 10),
		CouponRateLimitWindow:   p.duration("COUPON_RATE_LIMIT_WINDOW", time.Minute),
		CheckoutRateLimitMax:    p.int("CHECKOUT_RATE_LIMIT_MAX", 5),
		CheckoutRateLimitWindow: p.duration("CHECKOUT_RATE_LIMIT_WINDOW", time.Minute),

		LogFormat:            p.str("OBS_LOG_FORMAT", "json"),
		LogLevel:             p.str("OBS_LOG_LEVEL", "info"),
		MetricsNamespace:     p.str("OBS_METRICS_NAMESPACE", "blinds"),
		EnableTracing:        p.bool("OBS_ENABLE_TRACING", false),
		OTLPEndpoint:         p.str("OBS_OTLP_ENDPOINT", ""),
		TracingSamplingRatio: p.float("OBS_TRACING_SAMPLING_RATIO", 1),
	}
	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	if cfg.JWTSecret == "" && !cfg.IsProduction() {
		cfg.JWTSecret = devJWTSecret
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}
	if c.PricePerSqIn <= 0 {
		errs = append(errs, errors.New("PRICE_PER_SQ_IN must be positive"))
	}
	if c.MinBilledAreaSqIn <= 0 {
		errs = append(errs, errors.New("MIN_BILLED_AREA_SQ_IN must be positive"))
	}
	if c.TaxRateBps < 0 || c.TaxRateBps > 10000 {
		errs = append(errs, errors.New("TAX_RATE_BPS must be between 0 and 10000"))
	}
	if c.PointsEarnRate <= 0 {
		errs = append(errs, errors.New("POINTS_EARN_RATE must be positive"))
	}
	if c.PointValue <= 0 {
		errs = append(errs, errors.New("POINT_VALUE must be positive"))
	}
	if c.CircuitFailureRatio <= 0 || c.CircuitFailureRatio > 1 {
		errs = append(errs, errors.New("CIRCUIT_FAILURE_RATIO must be in (0, 1]"))
	}
	if c.IsProduction() && len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET of at least 16 characters is required in production"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(strings.TrimSpace(c.AppEnv)) {
	case "prod", "production":
		return true
	}
	return false
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// parser collects every malformed value instead of stopping at the first.
type parser struct {
	k    *koanf.Koanf
	errs []error
}

func (p *parser) raw(key string) string {
	return strings.TrimSpace(p.k.String(key))
}

func (p *parser) str(key, fallback string) string {
	if v := p.raw(key); v != "" {
		return v
	}
	return fallback
}

func (p *parser) int(key string, fallback int) int {
	v := p.raw(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (p *parser) float(key string, fallback float64) float64 {
	v := p.raw(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := p.raw(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func (p *parser) bool(key string, fallback bool) bool {
	switch strings.ToLower(p.raw(key)) {
	case "":
		return fallback
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		p.errs = append(p.errs, fmt.Errorf("%s: invalid boolean", key))
		return fallback
	}
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
