// Package config assembles runtime configuration from the environment so main
// stays lean. Every knob has a development-friendly default.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full runtime configuration.
type Config struct {
	Addr        string
	DatabaseURL string
	Redis       Redis
	Kafka       Kafka
	Providers   Providers
	Lookup      Lookup
}

// Redis configures the optional read-through cache layer.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the audit outbox relay. Empty brokers disable the relay.
type Kafka struct {
	Brokers       []string
	AuditTopic    string
	RelayInterval time.Duration
}

// Provider holds one adapter's connection settings.
type Provider struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Providers selects and configures the adapter chain.
type Providers struct {
	Primary         string
	Fallback        string
	FallbackEnabled bool
	BatchData       Provider
	SkipEngine      Provider

	// Early-stop thresholds for the sequential adapter.
	MinEmails int
	MinPhones int
}

// Lookup holds the orchestration knobs.
type Lookup struct {
	FreshnessWindowDays int
	MaxPhones           int
	MaxEmails           int
	RetryCount          int
	RetryDelay          time.Duration
	Concurrency         int
}

// FromEnv builds the configuration from environment variables.
func FromEnv() Config {
	return Config{
		Addr:        envString("SKIPTRACE_ADDR", ":8080"),
		DatabaseURL: envString("DATABASE_URL", "postgres://localhost:5432/skiptrace?sslmode=disable"),
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:       envList("KAFKA_BROKERS"),
			AuditTopic:    envString("KAFKA_AUDIT_TOPIC", "skiptrace.audit"),
			RelayInterval: envDuration("AUDIT_RELAY_INTERVAL", 5*time.Second),
		},
		Providers: Providers{
			Primary:         envString("SKIPTRACE_PRIMARY_PROVIDER", "batchdata"),
			Fallback:        envString("SKIPTRACE_FALLBACK_PROVIDER", "skipengine"),
			FallbackEnabled: envBool("SKIPTRACE_FALLBACK_ENABLED", true),
			BatchData: Provider{
				APIKey:  os.Getenv("BATCHDATA_API_KEY"),
				BaseURL: envString("BATCHDATA_BASE_URL", "https://api.batchdata.com/api/v1"),
				Timeout: envDuration("BATCHDATA_TIMEOUT", 30*time.Second),
			},
			SkipEngine: Provider{
				APIKey:  os.Getenv("SKIPENGINE_API_KEY"),
				BaseURL: envString("SKIPENGINE_BASE_URL", "https://api.skipengine.com/v2"),
				Timeout: envDuration("SKIPENGINE_TIMEOUT", 45*time.Second),
			},
			MinEmails: envInt("SKIPTRACE_MIN_EMAILS", 1),
			MinPhones: envInt("SKIPTRACE_MIN_PHONES", 2),
		},
		Lookup: Lookup{
			FreshnessWindowDays: envInt("SKIPTRACE_CACHE_WINDOW_DAYS", 90),
			MaxPhones:           envInt("SKIPTRACE_MAX_PHONES", 5),
			MaxEmails:           envInt("SKIPTRACE_MAX_EMAILS", 5),
			RetryCount:          envInt("SKIPTRACE_RETRY_COUNT", 2),
			RetryDelay:          envDuration("SKIPTRACE_RETRY_DELAY", 2*time.Second),
			Concurrency:         envInt("SKIPTRACE_CONCURRENCY", 4),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
