package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Env  string
	Port int

	DBURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret           string
	JWTAccessTTLMinutes int
	JWTRefreshTTLDays   int

	AdminEmail    string
	AdminPassword string
	AdminName     string
	AdminRole     string

	// CacheKind/IdempotencyKind select "redis" or "memory" backends;
	// everything falls back to memory so the service runs without
	// Redis configured.
	CacheKind       string
	IdempotencyKind string
	IdempotencyTTL  time.Duration

	EventCacheTTL time.Duration
	ListCacheTTL  time.Duration

	MaxCapacity       int
	MaxTitleLen       int
	MaxDescriptionLen int
	MaxLocationLen    int

	OutboxBatchSize   int
	OutboxMaxTries    int
	OutboxBaseBackoff time.Duration
	OutboxMaxBackoff  time.Duration
	OutboxPollEvery   time.Duration
	OutboxClaimTTL    time.Duration

	OTelEndpoint string
}

func Load() Config {
	env := getEnv("APP_ENV", "dev")
	port := getEnvInt("PORT", 8080)
	dbURL := buildDBURL()

	return Config{
		Env:   env,
		Port:  port,
		DBURL: dbURL,

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret:           getEnv("JWT_SECRET", "dev-secret-change-me"),
		JWTAccessTTLMinutes: getEnvInt("JWT_ACCESS_TTL_MINUTES", 60),
		JWTRefreshTTLDays:   getEnvInt("JWT_REFRESH_TTL_DAYS", 30),

		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		AdminName:     getEnv("ADMIN_NAME", "Admin"),
		AdminRole:     getEnv("ADMIN_ROLE", "admin"),

		CacheKind:       getEnv("CACHE_KIND", "memory"),
		IdempotencyKind: getEnv("IDEMPOTENCY_KIND", "memory"),
		IdempotencyTTL:  getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),

		EventCacheTTL: getEnvDuration("EVENT_CACHE_TTL", 30*time.Second),
		ListCacheTTL:  getEnvDuration("LIST_CACHE_TTL", 10*time.Second),

		MaxCapacity:       getEnvInt("MAX_EVENT_CAPACITY", 10000),
		MaxTitleLen:       getEnvInt("MAX_TITLE_LEN", 200),
		MaxDescriptionLen: getEnvInt("MAX_DESCRIPTION_LEN", 4000),
		MaxLocationLen:    getEnvInt("MAX_LOCATION_LEN", 500),

		OutboxBatchSize:   getEnvInt("OUTBOX_BATCH_SIZE", 20),
		OutboxMaxTries:    getEnvInt("OUTBOX_MAX_TRIES", 10),
		OutboxBaseBackoff: getEnvDuration("OUTBOX_BASE_BACKOFF", 2*time.Second),
		OutboxMaxBackoff:  getEnvDuration("OUTBOX_MAX_BACKOFF", 5*time.Minute),
		OutboxPollEvery:   getEnvDuration("OUTBOX_POLL_EVERY", 500*time.Millisecond),
		OutboxClaimTTL:    getEnvDuration("OUTBOX_CLAIM_TTL", 2*time.Minute),

		OTelEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "eventhub")
	pass := getEnv("DB_PASSWORD", "eventhub")
	name := getEnv("DB_NAME", "eventhub")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			fmt.Println(err)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			fmt.Println(err)
			return fallback
		}
		return d
	}
	return fallback
}
