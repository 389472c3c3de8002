package main

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"

	"github.com/noah-isme/backend-blinds/internal/app"
	"github.com/noah-isme/backend-blinds/internal/config"
	"github.com/noah-isme/backend-blinds/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel, "blinds-worker").With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		Enabled:       cfg.EnableTracing,
		ServiceName:   "blinds-worker",
		Endpoint:      cfg.OTLPEndpoint,
		SamplingRatio: cfg.TracingSamplingRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
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

	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)
	components, err := app.Build(cfg, infra.DB, infra.Redis, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("wire components")
	}

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Str("runner", name).Msg("runner stopped with error")
				stop()
			}
		}()
	}

	for _, w := range components.Workers(components.FulfillmentTasks().Handlers()) {
		run(w.Kind, w.Run)
	}
	run("relay", components.Relay().Run)

	logger.Info().Msg("worker starting")
	wg.Wait()
	logger.Info().Msg("worker shutdown complete")
}
