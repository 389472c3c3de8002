package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/noah-isme/backend-blinds/internal/app"
	"github.com/noah-isme/backend-blinds/internal/config"
	"github.com/noah-isme/backend-blinds/internal/db"
	"github.com/noah-isme/backend-blinds/internal/health"
	"github.com/noah-isme/backend-blinds/internal/obs"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel, "blinds-api").With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		Enabled:       cfg.EnableTracing,
		ServiceName:   "blinds-api",
		Endpoint:      cfg.OTLPEndpoint,
		SamplingRatio: cfg.TracingSamplingRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
		cfg.EnableTracing = false
	}
	defer func() {
		if shutdownTracer == nil {
			return
		}
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown tracer")
		}
	}()

	infra, err := app.OpenInfra(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect stores")
	}
	defer func() {
		if err := infra.Close(); err != nil {
			logger.Error().Err(err).Msg("close stores")
		}
	}()

	if err := db.Migrate(infra.DB); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)
	components, err := app.Build(cfg, infra.DB, infra.Redis, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("wire components")
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr(),
		Handler: app.NewRouter(components, app.RouterOptions{
			Metrics:  obs.NewHTTPMetrics(cfg.MetricsNamespace, nil),
			Gatherer: prometheus.DefaultGatherer,
			Tracing:  cfg.EnableTracing,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
		return
	case <-ctx.Done():
	}

	// fail readiness before draining connections
	health.SetReady(false)
	logger.Info().Msg("draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("server stopped")
}
