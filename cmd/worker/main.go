package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/framefold/framefold/internal/config"
	"github.com/framefold/framefold/internal/engine"
	"github.com/framefold/framefold/internal/storage"
	"github.com/framefold/framefold/internal/store"
	"github.com/framefold/framefold/internal/telemetry"
	"github.com/framefold/framefold/internal/webhook"
	"github.com/framefold/framefold/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[worker] ", log.LstdFlags|log.Lmsgprefix)

	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "framefold-worker",
		Exporter:     cfg.Trace.Exporter,
		OTLPEndpoint: cfg.Trace.OTLPEndpoint,
		OTLPInsecure: cfg.Trace.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Printf("tracing shutdown error: %v", err)
		}
	}()

	if err := engine.Startup(); err != nil {
		logger.Printf("engine startup failed, runs will fail until restart: %v", err)
	}
	defer engine.Shutdown()

	storageClient, err := storage.NewClient(storage.Config{
		Endpoint: cfg.Storage.Endpoint,
		Access:   cfg.Storage.AccessKey,
		Secret:   cfg.Storage.SecretKey,
		Bucket:   cfg.Storage.Bucket,
		UseSSL:   cfg.Storage.UseSSL,
	})
	if err != nil {
		logger.Fatalf("storage client setup failed: %v", err)
	}
	ensureCtx, cancelEnsure := context.WithTimeout(ctx, 10*time.Second)
	if err := storageClient.EnsureBucket(ensureCtx); err != nil {
		logger.Printf("bucket check failed, results may not persist: %v", err)
	}
	cancelEnsure()

	runStore, closeStore := newRunStore(ctx, logger, cfg.Database)
	defer closeStore()

	webhookClient := webhook.NewClient(webhook.Config{
		SigningSecret:  cfg.Webhook.SigningSecret,
		Timeout:        cfg.Webhook.Timeout,
		MaxAttempts:    cfg.Webhook.MaxAttempts,
		InitialBackoff: cfg.Webhook.InitialBackoff,
		MaxBackoff:     cfg.Webhook.MaxBackoff,
	})

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, storageClient, webhookClient, runStore, nil)
	if err != nil {
		logger.Fatalf("worker setup failed: %v", err)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", srv.MetricsHandler())
		logger.Printf("metrics listening on %s", cfg.Worker.MetricsAddr)
		if err := http.ListenAndServe(cfg.Worker.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server failed: %v", err)
		}
	}()

	logger.Printf(
		"starting worker concurrency=%d max_active_runs=%d queue=%s redis=%s",
		cfg.Worker.Concurrency,
		cfg.Worker.MaxActiveRuns,
		cfg.Queue.Name,
		cfg.Queue.RedisAddr,
	)

	if err := srv.Run(); err != nil {
		logger.Fatalf("worker failed: %v", err)
	}
}

func newRunStore(ctx context.Context, logger *log.Logger, cfg config.DatabaseConfig) (store.RunStore, func()) {
	if cfg.DSN == "" {
		logger.Printf("no postgres DSN configured, runs are held in memory")
		return store.NewMemoryRunStore(), func() {}
	}

	pg, err := store.NewPostgresRunStore(ctx, cfg.DSN)
	if err != nil {
		logger.Fatalf("postgres run store setup failed: %v", err)
	}
	schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pg.EnsureSchema(schemaCtx); err != nil {
		logger.Fatalf("postgres schema setup failed: %v", err)
	}
	return pg, func() {
		if err := pg.Close(); err != nil {
			logger.Printf("postgres close error: %v", err)
		}
	}
}
