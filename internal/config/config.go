package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the reading service.
// Environment variables are parsed from the CHANDRAHORO_ prefix.
type Config struct {
	// Build target selects high-level environment: local, cloud
	BuildTarget string `envconfig:"BUILD_TARGET" default:"cloud"`

	// Derived or override drivers
	DBDriver    string `envconfig:"DB_DRIVER" default:"auto"`
	CacheDriver string `envconfig:"CACHE_DRIVER" default:"auto"`

	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Postgres Configuration
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// SQLite Configuration (local target)
	SQLitePath string `envconfig:"SQLITE_PATH" default:"./data/readings.db"`

	// Redis Configuration
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// External generation service (ephemeris + AI content)
	GenerationURL            string `envconfig:"GENERATION_URL" default:"http://localhost:8000"`
	GenerationTimeoutSeconds int    `envconfig:"GENERATION_TIMEOUT_SECONDS" default:"30"`

	// Health monitoring
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`

	// Bulk invalidation backpressure
	InvalidationBatchSize    int `envconfig:"INVALIDATION_BATCH_SIZE" default:"100"`
	InvalidationBatchDelayMs int `envconfig:"INVALIDATION_BATCH_DELAY_MS" default:"50"`

	// Scheduled jobs
	CleanupMaxAgeDays      int `envconfig:"CLEANUP_MAX_AGE_DAYS" default:"30"`
	JobIntervalSeconds     int `envconfig:"JOB_INTERVAL_SECONDS" default:"300"`
	JobPerUserDelayMs      int `envconfig:"JOB_PER_USER_DELAY_MS" default:"100"`
	GenerationLockSeconds  int `envconfig:"GENERATION_LOCK_SECONDS" default:"60"`
}

// ResolveDefaults validates BuildTarget and derives DBDriver and CacheDriver
// when set to "auto" or empty.
func (c *Config) ResolveDefaults() error {
	var defaultDB, defaultCache string

	switch c.BuildTarget {
	case "cloud":
		defaultDB = "postgres"
		defaultCache = "redis"
	case "local":
		defaultDB = "sqlite"
		defaultCache = "memory"
	default:
		return fmt.Errorf("unsupported BUILD_TARGET: %s", c.BuildTarget)
	}

	if c.DBDriver == "" || c.DBDriver == "auto" {
		c.DBDriver = defaultDB
	}
	if c.CacheDriver == "" || c.CacheDriver == "auto" {
		c.CacheDriver = defaultCache
	}

	allowedDB := map[string]bool{"postgres": true, "sqlite": true}
	if !allowedDB[c.DBDriver] {
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	allowedCache := map[string]bool{"redis": true, "memory": true}
	if !allowedCache[c.CacheDriver] {
		return fmt.Errorf("unsupported CACHE_DRIVER: %s", c.CacheDriver)
	}
	return nil
}

// New creates a new Config by parsing environment variables.
// Environment variables should be prefixed with CHANDRAHORO_
// Example: CHANDRAHORO_HTTP_PORT, CHANDRAHORO_REDIS_ADDR
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("CHANDRAHORO", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Str("cache_driver", cfg.CacheDriver).
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Str("redis_addr", cfg.RedisAddr).
		Str("generation_url", cfg.GenerationURL).
		Bool("postgres_dsn_present", cfg.PostgresDSN != "").
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing.
func NewForTesting() *Config {
	cfg := &Config{
		Environment: EnvTesting,
		BuildTarget: "local",
		DBDriver:    "auto",
		CacheDriver: "auto",
		HTTPPort:    8080,

		RedisAddr:     "localhost:6379",
		GenerationURL: "http://localhost:8000",

		GenerationTimeoutSeconds:  5,
		HealthIntervalSeconds:     1,
		HealthProbeTimeoutSeconds: 1,
		InvalidationBatchSize:     100,
		InvalidationBatchDelayMs:  0,
		CleanupMaxAgeDays:         30,
		JobIntervalSeconds:        60,
		GenerationLockSeconds:     60,
	}
	_ = cfg.ResolveDefaults()
	return cfg
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
