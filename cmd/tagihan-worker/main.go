package main

import (
	"context"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"tagihanair/internal/amqp"
	"tagihanair/internal/cli"
	"tagihanair/internal/log"
	"tagihanair/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting tagihan-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Worker configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	repo := cli.InitHistory(logger, cfg.HistoryDBPath)
	defer repo.Close()
	if err := repo.Ping(context.Background()); err != nil {
		logger.Error("History database unreachable", log.FieldError, err, "path", cfg.HistoryDBPath)
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.NewHistoryWorker(repo, logger).Run(gctx, client)
	})
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := repo.Ping(gctx); err != nil && gctx.Err() == nil {
					logger.Warn("History database ping failed", log.FieldError, err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("History worker stopped", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
