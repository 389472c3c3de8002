package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/backend-blinds/internal/audit"
	"github.com/noah-isme/backend-blinds/internal/auth"
	"github.com/noah-isme/backend-blinds/internal/cart"
	"github.com/noah-isme/backend-blinds/internal/catalog"
	"github.com/noah-isme/backend-blinds/internal/checkout"
	"github.com/noah-isme/backend-blinds/internal/fulfillment"
	"github.com/noah-isme/backend-blinds/internal/loyalty"
	"github.com/noah-isme/backend-blinds/internal/obs"
	"github.com/noah-isme/backend-blinds/internal/order"
	"github.com/noah-isme/backend-blinds/internal/queue"
	"github.com/noah-isme/backend-blinds/internal/ratelimit"
	"github.com/noah-isme/backend-blinds/internal/security"
)

// RouterOptions controls the optional outer layers of the router.
type RouterOptions struct {
	Metrics  *obs.HTTPMetrics
	Gatherer prometheus.Gatherer
	Tracing  bool
}

// NewRouter mounts every public and admin endpoint.
func NewRouter(c *Components, opts RouterOptions) http.Handler {
	cfg := c.Config
	authMW := auth.Middleware{Tokens: c.Tokens}

	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: c.Catalog})
	cartHandler := &cart.Handler{Svc: c.Carts}
	checkoutHandler := &checkout.Handler{Svc: c.Checkout}
	orderHandler := &order.Handler{Store: c.Orders}
	orderAdmin := &order.AdminHandler{Svc: c.OrderSvc}
	exportHandler := &fulfillment.ExportHandler{Orders: c.Orders}
	loyaltyHandler := &loyalty.Handler{Svc: c.Loyalty}
	queueAdmin := &queue.AdminHandler{
		Store:             c.DLQ,
		Queue:             c.Queue,
		Logger:            c.Logger.With().Str("component", "queue-admin").Logger(),
		VisibilityTimeout: cfg.QueueVisibilityTimeout,
	}

	auditLog := audit.Recorder{Service: c.Audit, Logger: c.Logger}
	auditHandler := audit.Handler{Store: c.Audit.Store}

	onLimitErr := func(err error) {
		c.Logger.Warn().Err(err).Msg("rate limiter unavailable")
	}
	couponLimit := ratelimit.Handler{
		Limiter: c.CouponLimiter,
		Key:     ratelimit.KeyByUserOrIP("coupon"),
		OnError: onLimitErr,
	}
	checkoutLimit := ratelimit.Handler{
		Limiter: c.CheckoutLimiter,
		Key:     ratelimit.KeyByUserOrIP("checkout"),
		OnError: onLimitErr,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if opts.Tracing {
		r.Use(obs.Tracing)
	}
	if opts.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: opts.Metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: c.Logger}.Middleware)
	r.Use(security.Headers{HSTS: cfg.IsProduction()}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/health/live", c.Health.Live)
	r.Get("/health/ready", c.Health.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.BodyLimit{}.Middleware)
		v.Use(authMW.Authenticate)

		v.Get("/products", catalogHandler.Products)
		v.Get("/products/{id}", catalogHandler.ProductDetail)
		v.Post("/quotes/line", cartHandler.Quote)

		v.Route("/carts", func(cr chi.Router) {
			cr.Get("/{id}", cartHandler.Get)
			cr.Group(func(g chi.Router) {
				g.Use(c.Idem.Middleware)
				g.Post("/", cartHandler.Create)
				g.Post("/{id}/items", cartHandler.AddItem)
				g.Patch("/{id}/items/{itemId}", cartHandler.UpdateItem)
				g.Delete("/{id}/items/{itemId}", cartHandler.RemoveItem)
				g.With(couponLimit.Middleware).Post("/{id}/coupon", cartHandler.ApplyCoupon)
				g.Delete("/{id}/coupon", cartHandler.RemoveCoupon)
			})
		})

		v.Post("/checkout/preview", checkoutHandler.Preview)
		v.With(checkoutLimit.Middleware, c.Idem.Middleware).Post("/checkout", checkoutHandler.Checkout)

		v.Get("/orders/{id}", orderHandler.Get)
		v.With(auth.RequireAuth).Get("/orders", orderHandler.List)
		v.With(auth.RequireAuth).Get("/loyalty/me", loyaltyHandler.Me)

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(auth.RequireAuth)
			admin.Use(auth.RequireRole(auth.RoleAdmin))
			admin.Get("/orders/{id}", orderAdmin.Get)
			admin.With(auditLog.Middleware("order.status", "id")).Patch("/orders/{id}/status", orderAdmin.PatchStatus)
			admin.Get("/orders/{id}/export.csv", exportHandler.ExportCSV)
			admin.Get("/queue/dlq", queueAdmin.ListDLQ)
			admin.With(auditLog.Middleware("queue.dlq.replay", "")).Post("/queue/dlq/replay", queueAdmin.ReplayDLQ)
			admin.Get("/queue/stats", queueAdmin.Stats)
			admin.Get("/audit", auditHandler.List)
		})
	})
	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
