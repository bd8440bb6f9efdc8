package config

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
)

type Config struct {
	API      APIConfig
	Queue    QueueConfig
	Worker   WorkerConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Webhook  WebhookConfig
	Trace    TraceConfig
}

type APIConfig struct {
	Addr                string
	MaxUploadBytes      int64
	RateLimitCapacity   int
	RateLimitWindow     time.Duration
	RateLimitUserHeader string
}

type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Name          string
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency   int
	MaxActiveRuns int
	MetricsAddr   string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type DatabaseConfig struct {
	DSN string
}

type WebhookConfig struct {
	SigningSecret  string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type TraceConfig struct {
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

func Load() Config {
	defaultRunSlots := max(1, runtime.NumCPU()/2)

	return Config{
		API: APIConfig{
			Addr:                env("FRAMEFOLD_API_ADDR", ":8080"),
			MaxUploadBytes:      int64(envInt("FRAMEFOLD_MAX_UPLOAD_MB", 256)) << 20,
			RateLimitCapacity:   envInt("FRAMEFOLD_RATE_LIMIT_CAPACITY", 30),
			RateLimitWindow:     envDuration("FRAMEFOLD_RATE_LIMIT_WINDOW", time.Minute),
			RateLimitUserHeader: env("FRAMEFOLD_RATE_LIMIT_USER_HEADER", "X-Framefold-User"),
		},
		Queue: QueueConfig{
			RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
			RedisPassword: env("REDIS_PASSWORD", ""),
			RedisDB:       envInt("REDIS_DB", 0),
			Name:          env("FRAMEFOLD_QUEUE", "default"),
		},
		Worker: WorkerConfig{
			Concurrency:   envInt("FRAMEFOLD_WORKER_CONCURRENCY", max(2, runtime.NumCPU())),
			MaxActiveRuns: envInt("FRAMEFOLD_WORKER_MAX_ACTIVE_RUNS", defaultRunSlots),
			MetricsAddr:   env("FRAMEFOLD_WORKER_METRICS_ADDR", ":9090"),
		},
		Storage: StorageConfig{
			Endpoint:  env("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    env("MINIO_BUCKET", "framefold-runs"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
		},
		Database: DatabaseConfig{
			// Empty means runs live in memory only.
			DSN: env("FRAMEFOLD_POSTGRES_DSN", ""),
		},
		Webhook: WebhookConfig{
			SigningSecret:  env("FRAMEFOLD_WEBHOOK_SECRET", ""),
			Timeout:        envDuration("FRAMEFOLD_WEBHOOK_TIMEOUT", 10*time.Second),
			MaxAttempts:    envInt("FRAMEFOLD_WEBHOOK_MAX_ATTEMPTS", 3),
			InitialBackoff: envDuration("FRAMEFOLD_WEBHOOK_INITIAL_BACKOFF", time.Second),
			MaxBackoff:     envDuration("FRAMEFOLD_WEBHOOK_MAX_BACKOFF", 30*time.Second),
		},
		Trace: TraceConfig{
			Exporter:     env("FRAMEFOLD_TRACE_EXPORTER", "none"),
			OTLPEndpoint: env("FRAMEFOLD_TRACE_OTLP_ENDPOINT", ""),
			OTLPInsecure: envBool("FRAMEFOLD_TRACE_OTLP_INSECURE", false),
		},
	}
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
