package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the portal backend.
type Config struct {
	HTTPPort   string
	Database   DatabaseConfig
	Cache      CacheConfig
	Redis      RedisConfig
	Provider   ProviderConfig
	Queue      QueueConfig
	ImageStore ImageStoreConfig

	// RunMigrations applies embedded schema migrations at startup.
	RunMigrations bool
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// CacheConfig holds cache settings
type CacheConfig struct {
	ModelCacheSize int
	ModelCacheTTL  time.Duration
}

// RedisConfig holds Redis connection settings. An empty Address means
// the in-memory queue backend is used instead.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// ProviderConfig holds vendor-call settings
type ProviderConfig struct {
	RequestTimeout time.Duration // default timeout for vendor HTTP calls
}

// QueueConfig holds interaction queue settings
type QueueConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// ImageStoreConfig holds configuration for archiving generated images
// to object storage. Disabled by default; when disabled the vendor URL
// is stored on the interaction instead of an object key.
type ImageStoreConfig struct {
	Enabled  bool
	S3Bucket string
	S3Region string
	S3Prefix string
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		HTTPPort: getEnvString("HTTP_PORT", "8080"),
		Database: DatabaseConfig{
			URL:             dbURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},
		Cache: CacheConfig{
			ModelCacheSize: getEnvInt("CACHE_MODEL_SIZE", 500),
			ModelCacheTTL:  getEnvDuration("CACHE_MODEL_TTL", 5*time.Minute),
		},
		Redis: RedisConfig{
			Address:  getEnvString("REDIS_ADDRESS", ""),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Provider: ProviderConfig{
			RequestTimeout: getEnvDuration("PROVIDER_REQUEST_TIMEOUT", 60*time.Second),
		},
		Queue: QueueConfig{
			BatchSize:    getEnvInt("INTERACTION_QUEUE_BATCH_SIZE", 100),
			BatchTimeout: getEnvDuration("INTERACTION_QUEUE_BATCH_TIMEOUT", 5*time.Second),
			MaxRetries:   getEnvInt("INTERACTION_QUEUE_MAX_RETRIES", 3),
			RetryBackoff: getEnvDuration("INTERACTION_QUEUE_RETRY_BACKOFF", 1*time.Second),
		},
		ImageStore: ImageStoreConfig{
			Enabled:  getEnvString("IMAGE_STORE_ENABLED", "false") == "true",
			S3Bucket: getEnvString("IMAGE_STORE_S3_BUCKET", ""),
			S3Region: getEnvString("IMAGE_STORE_S3_REGION", "us-east-1"),
			S3Prefix: getEnvString("IMAGE_STORE_S3_PREFIX", "images/"),
		},
		RunMigrations: getEnvString("RUN_MIGRATIONS", "true") == "true",
	}

	if cfg.ImageStore.Enabled && cfg.ImageStore.S3Bucket == "" {
		return nil, fmt.Errorf("IMAGE_STORE_S3_BUCKET is required when the image store is enabled")
	}

	return cfg, nil
}
