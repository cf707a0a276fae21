package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"scadenzario/internal/amqp"
	"scadenzario/internal/cli"
	"scadenzario/internal/config"
	"scadenzario/internal/log"
	"scadenzario/internal/services"
	"scadenzario/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	cli.ValidateConfig(logger, cfg)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the overdue worker")
		os.Exit(1)
	}
	if cfg.DataBackend == "memory" {
		logger.Warn("Memory backend is private to this process; no installments will be found")
	}

	be := cli.InitBackend(context.Background(), logger, cfg)
	defer be.Close()

	if be.Publisher == nil {
		logger.Error("AMQP broker unreachable")
		os.Exit(1)
	}

	logger.Info("Starting overdue worker",
		log.FieldBackend, cfg.DataBackend,
		"interval", cfg.OverdueInterval.String(),
		"batch_size", cfg.OverdueBatchSize)

	processor := services.NewOverdueProcessor(be.Store, be.Publisher, cfg.OverdueBatchSize)
	overdue := worker.NewOverdueWorker(processor, cfg.OverdueInterval, logger)

	ctx, done := cli.GracefulShutdown(logger, 15*time.Second, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return overdue.Run(gctx)
	})

	// The audit consumer only exists when the publisher is a live client.
	if client, ok := be.Publisher.(*amqp.Client); ok {
		audit := worker.NewAuditHandler(logger.WithComponent(log.ComponentAMQP))
		g.Go(func() error {
			return client.Consume(gctx, audit.HandleEvent)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped", log.FieldError, err)
		_ = be.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Overdue worker stopped")
}
