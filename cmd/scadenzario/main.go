package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"scadenzario/internal/cache"
	"scadenzario/internal/cli"
	"scadenzario/internal/config"
	apphttp "scadenzario/internal/http"
	"scadenzario/internal/log"
	"scadenzario/internal/services"
)

func main() {
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg, log.ComponentApp)
	cli.ValidateConfig(logger, cfg)

	pgURL, amqpURL := cfg.Redacted()
	logger.Info("Starting scadenzario",
		"port", cfg.Port,
		log.FieldBackend, cfg.DataBackend,
		"postgres_url", pgURL,
		"amqp_url", amqpURL)

	be := cli.InitBackend(context.Background(), logger, cfg)
	if be.Publisher == nil {
		logger.Info("Event publishing disabled")
	}

	cacheManager := cache.NewManager()
	cacheManager.StartCleanup(5 * time.Minute)

	series := services.NewSeriesService(be.Store, be.Refs, be.Publisher, nil)
	refs := services.NewReferenceService(be.Refs, cacheManager)

	srv := apphttp.NewServer(":"+cfg.Port, series, refs, be.Pinger, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger.WithComponent(log.ComponentHTTP),
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cacheManager.Stop()
		if err := be.Close(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		cacheManager.Stop()
		_ = be.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
