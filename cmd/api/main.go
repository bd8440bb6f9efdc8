package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/framefold/framefold/internal/api"
	"github.com/framefold/framefold/internal/config"
	"github.com/framefold/framefold/internal/queue"
	"github.com/framefold/framefold/internal/ratelimit"
	"github.com/framefold/framefold/internal/storage"
	"github.com/framefold/framefold/internal/store"
	"github.com/framefold/framefold/internal/telemetry"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmsgprefix)

	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "framefold-api",
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
		logger.Printf("bucket check failed, uploads may not persist: %v", err)
	}
	cancelEnsure()

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Printf("queue client close error: %v", err)
		}
	}()

	runStore, closeStore := newRunStore(ctx, logger, cfg.Database)
	defer closeStore()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.RedisAddr,
		Password: cfg.Queue.RedisPassword,
		DB:       cfg.Queue.RedisDB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Printf("redis client close error: %v", err)
		}
	}()

	rateLimiter, err := ratelimit.NewRedisTokenBucket(
		redisClient,
		cfg.API.RateLimitCapacity,
		cfg.API.RateLimitWindow,
		"framefold:ratelimit",
	)
	if err != nil {
		logger.Fatalf("rate limiter setup failed: %v", err)
	}

	app := api.NewServer(logger, queueClient, runStore, storageClient, api.Options{
		RateLimiter:         rateLimiter,
		RateLimitUserHeader: cfg.API.RateLimitUserHeader,
		Tracer:              otel.Tracer("framefold/api"),
		MaxUploadBytes:      cfg.API.MaxUploadBytes,
	})

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.API.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

// newRunStore picks postgres when a DSN is configured, memory otherwise.
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
