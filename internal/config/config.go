package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the typed process configuration, read from the environment.
type Config struct {
	Port     string
	RunLocal bool

	OrdersTable      string
	IdempotencyTable string
	CatalogTable     string
	CRMQueueURL      string
	MetricsNamespace string

	RedisAddr       string
	CatalogCacheTTL time.Duration

	IdempotencyTTL     time.Duration // record retention
	InFlightStaleAfter time.Duration // abandoned-claim takeover window

	BootstrapMaxAttempts int
	BootstrapDelay       time.Duration

	DispatcherWorkers   int
	DispatcherQueueSize int

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string

	CRMWebhookURL string
}

// Load reads .env when present, then the environment, applying defaults.
func Load() Config {
	// .env is a local development convenience; absence is not an error
	_ = godotenv.Load()

	return Config{
		Port:     getEnv("PORT", "8080"),
		RunLocal: os.Getenv("RUN_LOCAL") == "true",

		OrdersTable:      getEnv("ORDERS_TABLE", "orders"),
		IdempotencyTable: getEnv("IDEMPOTENCY_TABLE", "idempotency"),
		CatalogTable:     getEnv("CATALOG_TABLE", "catalog"),
		CRMQueueURL:      os.Getenv("CRM_QUEUE_URL"),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "Storefront/Orderflow"),

		RedisAddr:       os.Getenv("REDIS_ADDR"),
		CatalogCacheTTL: getDuration("CATALOG_CACHE_TTL", 10*time.Minute),

		IdempotencyTTL:     getDuration("IDEMPOTENCY_TTL", 48*time.Hour),
		InFlightStaleAfter: getDuration("IN_FLIGHT_STALE_AFTER", 15*time.Minute),

		BootstrapMaxAttempts: getInt("BOOTSTRAP_MAX_ATTEMPTS", 5),
		BootstrapDelay:       getDuration("BOOTSTRAP_DELAY", 5*time.Second),

		DispatcherWorkers:   getInt("DISPATCHER_WORKERS", 4),
		DispatcherQueueSize: getInt("DISPATCHER_QUEUE_SIZE", 256),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getInt("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		MailFrom:     getEnv("MAIL_FROM", "noreply@storefront.local"),

		CRMWebhookURL: os.Getenv("CRM_WEBHOOK_URL"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
