// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
)

type Config struct {
	HTTPPort        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string

	StorageBackend string
	RedisAddr      string
	RedisPassword  string
	MongoURI       string
	MongoDBName    string

	ShopifyStoreDomain     string
	ShopifyStorefrontToken string
	ShopifyAPIVersion      string
	ShopifyTimeout         time.Duration

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	SyncDebounce       time.Duration
	SyncMaxRetries     int
	SyncRetryBaseDelay time.Duration

	GuaranteeTTL  time.Duration
	GuaranteeTick time.Duration

	CleanupInterval     time.Duration
	CleanupInitialDelay time.Duration

	DefaultCurrency string
	SessionIdleTTL  time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		LogLevel:        getEnv("LOG_LEVEL", "info"),

		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", BackendMemory)),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		MongoURI:       getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:    getEnv("MONGO_DB_NAME", "cartdb"),

		ShopifyStoreDomain:     getEnv("SHOPIFY_STORE_DOMAIN", ""),
		ShopifyStorefrontToken: getEnv("SHOPIFY_STOREFRONT_TOKEN", ""),
		ShopifyAPIVersion:      getEnv("SHOPIFY_API_VERSION", "2024-10"),
		ShopifyTimeout:         getEnvDuration("SHOPIFY_TIMEOUT", 10*time.Second),

		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "orders-paid"),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "storefront-cart"),

		SyncDebounce:       getEnvDuration("SYNC_DEBOUNCE", 500*time.Millisecond),
		SyncMaxRetries:     getEnvInt("SYNC_MAX_RETRIES", 3),
		SyncRetryBaseDelay: getEnvDuration("SYNC_RETRY_BASE_DELAY", time.Second),

		GuaranteeTTL:  getEnvDuration("GUARANTEE_TTL", 15*time.Minute),
		GuaranteeTick: getEnvDuration("GUARANTEE_TICK", time.Second),

		CleanupInterval:     getEnvDuration("CLEANUP_INTERVAL", 3*time.Second),
		CleanupInitialDelay: getEnvDuration("CLEANUP_INITIAL_DELAY", time.Second),

		DefaultCurrency: strings.ToUpper(getEnv("DEFAULT_CURRENCY", "JPY")),
		SessionIdleTTL:  getEnvDuration("SESSION_IDLE_TTL", 30*time.Minute),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case BackendMemory, BackendRedis, BackendMongo:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.SyncMaxRetries < 0 {
		return fmt.Errorf("SYNC_MAX_RETRIES must not be negative, got %d", c.SyncMaxRetries)
	}
	if c.CleanupInterval <= 0 || c.GuaranteeTTL <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL and GUARANTEE_TTL must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
