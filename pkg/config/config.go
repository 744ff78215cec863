package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkgpulse/pkgpulse/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Provider (npm registry) configuration
	Registry RegistryConfig

	// Collector configuration
	Collector CollectorConfig

	// HTTP server configuration
	Server ServerConfig

	// Trending cache configuration
	Cache CacheConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL         string
	ReplicaURLs string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// RegistryConfig holds npm provider endpoints and the per-call timeout
type RegistryConfig struct {
	RegistryURL  string
	DownloadsURL string
	Timeout      time.Duration
}

// CollectorConfig holds backfill and daily-update settings
type CollectorConfig struct {
	// WeeksBack is the number of historical weekly buckets a backfill walks.
	WeeksBack int
	// PublicationDelay is how far behind "now" the provider's published
	// download data is assumed to be.
	PublicationDelay time.Duration
	// BucketDelay throttles consecutive provider calls within one package.
	BucketDelay time.Duration
	// PackageDelay separates work on distinct packages.
	PackageDelay time.Duration
	// RetentionDays bounds download-point age; 0 disables cleanup.
	RetentionDays int

	DailySchedule     string
	RollupSchedule    string
	RetentionSchedule string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// CacheConfig holds trending result cache settings
type CacheConfig struct {
	Enabled       bool
	RedisURL      string
	RedisPassword string
	RedisDB       int
	L1Size        int
	TTL           time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			URL:         getEnv("PULSE_DATABASE_URL", "postgres://localhost/pkgpulse?sslmode=disable"),
			ReplicaURLs: getEnv("PULSE_DATABASE_REPLICA_URLS", ""),
			MaxConns:    getEnvInt("PULSE_DATABASE_MAX_CONNS", 10),
			MinConns:    getEnvInt("PULSE_DATABASE_MIN_CONNS", 2),
			Timeout:     getEnvDuration("PULSE_DATABASE_TIMEOUT", 5*time.Second),
			MaxLifetime: getEnvDuration("PULSE_DATABASE_MAX_LIFETIME", 30*time.Minute),
			MaxIdleTime: getEnvDuration("PULSE_DATABASE_MAX_IDLE_TIME", 5*time.Minute),
		},
		Registry: RegistryConfig{
			RegistryURL:  getEnv("PULSE_REGISTRY_URL", "https://registry.npmjs.org"),
			DownloadsURL: getEnv("PULSE_DOWNLOADS_URL", "https://api.npmjs.org"),
			Timeout:      getEnvDuration("PULSE_REGISTRY_TIMEOUT", 10*time.Second),
		},
		Collector: CollectorConfig{
			WeeksBack:         getEnvInt("PULSE_WEEKS_BACK", 52),
			PublicationDelay:  getEnvDuration("PULSE_PUBLICATION_DELAY", 72*time.Hour),
			BucketDelay:       getEnvDuration("PULSE_BUCKET_DELAY", 200*time.Millisecond),
			PackageDelay:      getEnvDuration("PULSE_PACKAGE_DELAY", 400*time.Millisecond),
			RetentionDays:     getEnvInt("PULSE_RETENTION_DAYS", 730),
			DailySchedule:     getEnv("PULSE_DAILY_SCHEDULE", "30 6 * * *"),
			RollupSchedule:    getEnv("PULSE_ROLLUP_SCHEDULE", "45 6 * * 0"),
			RetentionSchedule: getEnv("PULSE_RETENTION_SCHEDULE", "0 5 * * *"),
		},
		Server: ServerConfig{
			Host:            getEnv("PULSE_HOST", "0.0.0.0"),
			Port:            getEnv("PULSE_PORT", "8080"),
			ReadTimeout:     getEnvDuration("PULSE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("PULSE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("PULSE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("PULSE_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Cache: CacheConfig{
			Enabled:       getEnvBool("PULSE_CACHE_ENABLED", true),
			RedisURL:      getEnv("PULSE_REDIS_URL", ""),
			RedisPassword: getEnv("PULSE_REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("PULSE_REDIS_DB", 0),
			L1Size:        getEnvInt("PULSE_L1_CACHE_SIZE", 256),
			TTL:           getEnvDuration("PULSE_CACHE_TTL", 5*time.Minute),
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.ParseLogLevel(strings.ToLower(getEnv("PULSE_LOG_LEVEL", "info"))),
			MetricsEnabled: getEnvBool("PULSE_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Registry.RegistryURL == "" || c.Registry.DownloadsURL == "" {
		return fmt.Errorf("registry and downloads URLs are required")
	}
	if c.Registry.Timeout <= 0 {
		return fmt.Errorf("registry timeout must be positive")
	}
	if c.Collector.WeeksBack <= 0 {
		return fmt.Errorf("weeks back must be positive")
	}
	if c.Collector.PublicationDelay < 0 {
		return fmt.Errorf("publication delay must not be negative")
	}
	if c.Collector.BucketDelay < 0 || c.Collector.PackageDelay < 0 {
		return fmt.Errorf("throttle delays must not be negative")
	}
	if c.Collector.RetentionDays < 0 {
		return fmt.Errorf("retention days must not be negative")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Cache.Enabled && c.Cache.L1Size <= 0 {
		return fmt.Errorf("L1 cache size must be positive when the cache is enabled")
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
