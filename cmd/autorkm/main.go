package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"autorkm/internal/aggregator"
	"autorkm/internal/cache"
	"autorkm/internal/cli"
	apphttp "autorkm/internal/http"
	applog "autorkm/internal/log"
	"autorkm/internal/metrics"
	"autorkm/internal/services"
	"autorkm/internal/sheets/google"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()

	m := metrics.New()

	reportCache := cache.NewLRUCache[*services.Entry](cfg.CacheSize, cfg.CacheTTL)
	cacheManager := cache.NewManager(logger.WithComponent(applog.ComponentCache).Logger)
	cacheManager.Register(reportCache)
	cacheManager.StartCleanup(cfg.CacheTTL / 4)

	opts := []services.Option{
		services.WithMetrics(m),
		services.WithLogger(logger),
		services.WithReportOptions(aggregator.ReportOptions{
			CategoryAgencyPrefix: cfg.CategoryAgencyPrefix,
		}),
	}

	if cfg.SheetsEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		client, err := google.New(ctx, google.Options{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		cancel()
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client",
				applog.FieldError, err,
				applog.FieldOperation, applog.OpStartup)
			os.Exit(1)
		}
		opts = append(opts, services.WithSheets(client))
		logger.Info("Google Sheets import enabled", "sheet", client.SheetName())
	}

	reports := services.NewReportService(reportCache, opts...)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		Reports:            reports,
		Metrics:            m,
		Logger:             logger,
		MaxUploadBytes:     cfg.MaxUploadBytes(),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
	})

	// Uploads can take a while on slow links; reports render quickly.
	srv.ReadTimeout = 2 * time.Minute
	srv.WriteTimeout = time.Minute
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		cacheManager.Stop()
	})

	logger.Info("Starting AUTO-RKM server",
		"port", cfg.Port,
		"max_upload_mb", cfg.MaxUploadMB,
		"cache_size", cfg.CacheSize,
		"cache_ttl", cfg.CacheTTL.String(),
		"sheets_enabled", cfg.SheetsEnabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
