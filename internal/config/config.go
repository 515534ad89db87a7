package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds dispatcher configuration loaded from the environment.
type Config struct {
	AppName  string
	LogLevel string
	HTTPPort string

	DBDriver    string
	DatabaseURL string
	RedisURL    string

	GatewayURL             string
	GatewayKey             string
	GatewayTimeout         time.Duration
	GatewayBreakerFailures int
	GatewayBreakerCooldown time.Duration

	MaxRetries       int
	RetryBaseBackoff time.Duration
	RetryMaxBackoff  time.Duration

	DefaultDailyLimit int
	LimitsCacheTTL    time.Duration
	QuotaPolicy       string
	QuotaTimezone     string
	QuotaDeferJitter  time.Duration
	StaleAfter        time.Duration

	TriggerToken     string
	TriggerRateLimit int
	DispatchInterval time.Duration
	BatchSize        int
	MaxBatchSize     int

	RabbitURL         string
	EventsExchange    string
	EventsAuditQueue  string
	TriggerExchange   string
	TriggerQueue      string
	TriggerRoutingKey string
	TriggerDLQ        string
	TriggerWorkers    int

	StartupAttempts int
}

// Load loads configuration and performs basic validation.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppName:  getEnv("APP_NAME", "whatsapp_dispatcher"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTPPort: getEnv("HTTP_PORT", "8083"),

		DBDriver:    getEnv("DB_DRIVER", "postgres"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		GatewayURL:             getEnv("WHATSAPP_GATEWAY_URL", ""),
		GatewayKey:             getEnv("WHATSAPP_GATEWAY_KEY", ""),
		GatewayTimeout:         getEnvAsDuration("GATEWAY_TIMEOUT", 15*time.Second),
		GatewayBreakerFailures: getEnvAsInt("GATEWAY_BREAKER_FAILURES", 5),
		GatewayBreakerCooldown: getEnvAsDuration("GATEWAY_BREAKER_COOLDOWN", 30*time.Second),

		MaxRetries:       getEnvAsInt("MAX_RETRIES", 5),
		RetryBaseBackoff: getEnvAsDuration("RETRY_BASE_BACKOFF", 5*time.Minute),
		RetryMaxBackoff:  getEnvAsDuration("RETRY_MAX_BACKOFF", 30*time.Minute),

		DefaultDailyLimit: getEnvAsInt("DEFAULT_DAILY_LIMIT", 50),
		LimitsCacheTTL:    getEnvAsDuration("LIMITS_CACHE_TTL", time.Minute),
		QuotaPolicy:       strings.ToLower(getEnv("QUOTA_POLICY", "drop")),
		QuotaTimezone:     getEnv("QUOTA_TIMEZONE", "UTC"),
		QuotaDeferJitter:  getEnvAsDuration("QUOTA_DEFER_JITTER", 5*time.Minute),
		StaleAfter:        getEnvAsDuration("STALE_PROCESSING_AFTER", 10*time.Minute),

		TriggerToken:     getEnv("DISPATCH_TRIGGER_TOKEN", ""),
		TriggerRateLimit: getEnvAsInt("DISPATCH_RATE_LIMIT", 120),
		DispatchInterval: getEnvAsDuration("DISPATCH_INTERVAL", 0),
		BatchSize:        getEnvAsInt("DISPATCH_BATCH_SIZE", 1),
		MaxBatchSize:     getEnvAsInt("DISPATCH_MAX_BATCH_SIZE", 100),

		RabbitURL:         getEnv("RABBITMQ_URL", ""),
		EventsExchange:    getEnv("EVENTS_EXCHANGE", "whatsapp.dispatch"),
		EventsAuditQueue:  getEnv("EVENTS_AUDIT_QUEUE", ""),
		TriggerExchange:   getEnv("TRIGGER_EXCHANGE", "whatsapp.triggers"),
		TriggerQueue:      getEnv("TRIGGER_QUEUE", ""),
		TriggerRoutingKey: getEnv("TRIGGER_ROUTING_KEY", "dispatch"),
		TriggerDLQ:        getEnv("TRIGGER_DLQ", "whatsapp.triggers.dlq"),
		TriggerWorkers:    getEnvAsInt("TRIGGER_WORKERS", 1),

		StartupAttempts: getEnvAsInt("STARTUP_ATTEMPTS", 5),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// QuotaLocation resolves QuotaTimezone. validate has already checked it parses.
func (c *Config) QuotaLocation() *time.Location {
	loc, err := time.LoadLocation(c.QuotaTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.GatewayURL == "" {
		missing = append(missing, "WHATSAPP_GATEWAY_URL")
	}
	if c.GatewayKey == "" {
		missing = append(missing, "WHATSAPP_GATEWAY_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}

	if c.QuotaPolicy != "drop" && c.QuotaPolicy != "defer" {
		return fmt.Errorf("QUOTA_POLICY must be drop or defer, got %q", c.QuotaPolicy)
	}
	if _, err := time.LoadLocation(c.QuotaTimezone); err != nil {
		return fmt.Errorf("invalid QUOTA_TIMEZONE %q: %w", c.QuotaTimezone, err)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("MAX_RETRIES must be positive, got %d", c.MaxRetries)
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1
	}
	if c.MaxBatchSize < c.BatchSize {
		c.MaxBatchSize = c.BatchSize
	}
	return nil
}

func getEnv(key, def string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return value
}

func getEnvAsInt(key string, def int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid int for %s, using default %d: %v", key, def, err)
			return def
		}
		return i
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			log.Printf("invalid duration for %s, using default %s: %v", key, def, err)
			return def
		}
		return d
	}
	return def
}
