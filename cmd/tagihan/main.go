package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"tagihanair/internal/backend"
	"tagihanair/internal/cache"
	"tagihanair/internal/cli"
	apphttp "tagihanair/internal/http"
	"tagihanair/internal/log"
	"tagihanair/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	res, err := backend.NewFactory(logger).Create(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Warn("Backend cleanup failed", log.FieldError, err)
		}
	}()
	if res.Offline != nil {
		logger.Warn("Starting in read-only mode", log.FieldError, res.Offline)
	}

	loc := cfg.Location()
	prices := services.NewPriceAccessor(res.Workbook, cfg.ConfigSheetName, cfg.DefaultUnitPrice, cfg.PriceCacheTTL, logger)
	billing := services.NewBillingService(res.Workbook, prices, services.Options{
		LedgerSheet: cfg.LedgerSheetName,
		LedgerTTL:   cfg.LedgerCacheTTL,
		Location:    loc,
		Recorder:    res.Recorder,
		Logger:      logger,
	})

	var history *services.HistoryService
	if res.History != nil {
		history = services.NewHistoryService(res.History, cfg.HistoryCacheTTL, cfg.HistoryLimit, logger)
	}

	caches := cache.NewManager(logger.Logger.With(log.FieldComponent, log.ComponentCache))
	if history.Enabled() {
		caches.Register(history.Cache())
	}
	caches.StartCleanup(10 * time.Minute)
	defer caches.Stop()

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Billing:            billing,
		History:            history,
		Caches:             caches,
		Logger:             logger,
		Location:           loc,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
	})
	srv.MaxHeaderBytes = 1 << 16

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldOperation, log.OpShutdown, log.FieldError, err)
		}
	}()

	logger.Info("Starting tagihan server",
		log.FieldOperation, log.OpStartup,
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"writes_enabled", billing.WritesEnabled(),
		"history_enabled", history.Enabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		cancel()
		<-done
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
