package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Graph backend (FalkorDB)
	GraphAddr     string
	GraphPassword string

	// Connection pool
	PoolMaxSize        int
	PoolAcquireTimeout time.Duration
	PoolPollInterval   time.Duration
	PoolIdleThreshold  time.Duration
	PoolReapInterval   time.Duration
	DialMaxAttempts    int
	DialBackoffBase    time.Duration
	DialBackoffCap     time.Duration

	// Sync pipeline
	SyncDeadline     time.Duration
	BatchChunkSize   int
	EntityConfidence float64
	MergeConfidence  float64

	// Cache store (Redis)
	CacheAddr            string
	CachePassword        string
	QueryCacheTTL        time.Duration
	SearchCacheTTL       time.Duration
	NeighborhoodCacheTTL time.Duration
	StatsCacheTTL        time.Duration

	// Inference
	InferenceURL    string
	InferenceAPIKey string
	InferenceModel  string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		GraphAddr:     getEnv("GRAPH_ADDR", "localhost:6379"),
		GraphPassword: getEnv("GRAPH_PASSWORD", ""),

		PoolMaxSize:        getEnvInt("POOL_MAX_SIZE", 5),
		PoolAcquireTimeout: getEnvDuration("POOL_ACQUIRE_TIMEOUT", 10*time.Second),
		PoolPollInterval:   getEnvDuration("POOL_POLL_INTERVAL", 100*time.Millisecond),
		PoolIdleThreshold:  getEnvDuration("POOL_IDLE_THRESHOLD", 5*time.Minute),
		PoolReapInterval:   getEnvDuration("POOL_REAP_INTERVAL", time.Minute),
		DialMaxAttempts:    getEnvInt("DIAL_MAX_ATTEMPTS", 5),
		DialBackoffBase:    getEnvDuration("DIAL_BACKOFF_BASE", 100*time.Millisecond),
		DialBackoffCap:     getEnvDuration("DIAL_BACKOFF_CAP", 3*time.Second),

		SyncDeadline:     getEnvDuration("SYNC_DEADLINE", 60*time.Second),
		BatchChunkSize:   getEnvInt("BATCH_CHUNK_SIZE", 10),
		EntityConfidence: getEnvFloat("ENTITY_CONFIDENCE", 0.7),
		MergeConfidence:  getEnvFloat("MERGE_CONFIDENCE", 0.85),

		CacheAddr:            getEnv("CACHE_ADDR", "localhost:6380"),
		CachePassword:        getEnv("CACHE_PASSWORD", ""),
		QueryCacheTTL:        getEnvDuration("QUERY_CACHE_TTL", time.Hour),
		SearchCacheTTL:       getEnvDuration("SEARCH_CACHE_TTL", 30*time.Minute),
		NeighborhoodCacheTTL: getEnvDuration("NEIGHBORHOOD_CACHE_TTL", 30*time.Minute),
		StatsCacheTTL:        getEnvDuration("STATS_CACHE_TTL", 5*time.Minute),

		InferenceURL:    getEnv("INFERENCE_URL", "http://localhost:4000"),
		InferenceAPIKey: getEnv("INFERENCE_API_KEY", ""),
		InferenceModel:  getEnv("INFERENCE_MODEL", "gpt-4o-mini"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.GraphAddr == "" {
		return fmt.Errorf("GRAPH_ADDR is required")
	}
	if c.CacheAddr == "" {
		return fmt.Errorf("CACHE_ADDR is required")
	}
	if c.PoolMaxSize < 1 {
		return fmt.Errorf("POOL_MAX_SIZE must be at least 1")
	}
	if c.BatchChunkSize < 1 {
		return fmt.Errorf("BATCH_CHUNK_SIZE must be at least 1")
	}
	if c.EntityConfidence < 0 || c.EntityConfidence > 1 {
		return fmt.Errorf("ENTITY_CONFIDENCE must be between 0 and 1")
	}
	if c.MergeConfidence < 0 || c.MergeConfidence > 1 {
		return fmt.Errorf("MERGE_CONFIDENCE must be between 0 and 1")
	}
	// Inference API key is optional for development
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%f", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
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
