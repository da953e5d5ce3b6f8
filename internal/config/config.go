package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the publication pipeline
type Config struct {
	// Server configuration (ops API)
	Port            string        `json:"port"`
	Env             string        `json:"env"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	HTTPTimeout     time.Duration `json:"http_timeout"`

	// Site
	BaseURL string `json:"base_url"`

	// Document store (Sanity-compatible HTTP API)
	SanityProjectID  string        `json:"sanity_project_id"`
	SanityDataset    string        `json:"sanity_dataset"`
	SanityToken      string        `json:"sanity_token"`
	SanityAPIVersion string        `json:"sanity_api_version"`
	StoreTimeout     time.Duration `json:"store_timeout"`

	// Content providers
	GeminiAPIKey  string        `json:"gemini_api_key"`
	GeminiModel   string        `json:"gemini_model"`
	GeminiBudget  int           `json:"gemini_budget"`
	CohereAPIKey  string        `json:"cohere_api_key"`
	CohereBudget  int           `json:"cohere_budget"`
	SynthTimeout  time.Duration `json:"synth_timeout"`
	MaxTags       int           `json:"max_tags"`
	ExcerptLength int           `json:"excerpt_length"`

	// Poster lookup
	TMDBAPIKey    string        `json:"tmdb_api_key"`
	PosterTimeout time.Duration `json:"poster_timeout"`

	// Search push
	BaiduPushToken string `json:"baidu_push_token"`
	BaiduBatchSize int    `json:"baidu_batch_size"`

	// Ledger
	LedgerBackend string `json:"ledger_backend"` // "file" or "redis"
	LedgerPath    string `json:"ledger_path"`
	RedisURL      string `json:"redis_url"`
	RedisPrefix   string `json:"redis_prefix"`

	// Resource feed
	FeedSource string `json:"feed_source"`

	// Pipeline
	MaxConcurrency int `json:"max_concurrency"`

	// CloudFlare R2 (poster mirror)
	R2Endpoint  string `json:"r2_endpoint"`
	R2AccessKey string `json:"r2_access_key"`
	R2SecretKey string `json:"r2_secret_key"`
	R2Bucket    string `json:"r2_bucket"`
	R2PublicURL string `json:"r2_public_url"`

	// Logging
	LogLevel string `json:"log_level"`

	// Security
	AdminAPIKey string `json:"admin_api_key"`
}

// Load loads configuration from environment variables and validates it
func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	cfg := &Config{
		// Server configuration
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("APP_ENV", "development"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		HTTPTimeout:     getEnvAsDuration("HTTP_TIMEOUT", 30*time.Second),

		// Site
		BaseURL: getEnv("BASE_URL", "https://www.sswl.top"),

		// Document store
		SanityProjectID:  getEnv("SANITY_PROJECT_ID", ""),
		SanityDataset:    getEnv("SANITY_DATASET", "production"),
		SanityToken:      getEnv("SANITY_API_TOKEN", ""),
		SanityAPIVersion: getEnv("SANITY_API_VERSION", "2024-01-01"),
		StoreTimeout:     getEnvAsDuration("STORE_TIMEOUT", 30*time.Second),

		// Content providers
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-pro"),
		GeminiBudget:  getEnvAsInt("GEMINI_BUDGET", 50),
		CohereAPIKey:  getEnv("COHERE_API_KEY", ""),
		CohereBudget:  getEnvAsInt("COHERE_BUDGET", 90),
		SynthTimeout:  getEnvAsDuration("SYNTH_TIMEOUT", 60*time.Second),
		MaxTags:       getEnvAsInt("MAX_TAGS", 8),
		ExcerptLength: getEnvAsInt("EXCERPT_LENGTH", 200),

		// Poster lookup
		TMDBAPIKey:    getEnv("TMDB_API_KEY", ""),
		PosterTimeout: getEnvAsDuration("POSTER_TIMEOUT", 10*time.Second),

		// Search push
		BaiduPushToken: getEnv("BAIDU_PUSH_TOKEN", ""),
		BaiduBatchSize: getEnvAsInt("BAIDU_BATCH_SIZE", 100),

		// Ledger
		LedgerBackend: getEnv("LEDGER_BACKEND", "file"),
		LedgerPath:    getEnv("LEDGER_PATH", "./data/published-titles.log"),
		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisPrefix:   getEnv("REDIS_PREFIX", "panpub:"),

		// Resource feed
		FeedSource: getEnv("FEED_SOURCE", "./resources.json"),

		// Pipeline
		MaxConcurrency: getEnvAsInt("MAX_CONCURRENCY", 4),

		// CloudFlare R2
		R2Endpoint:  getEnv("R2_ENDPOINT", ""),
		R2AccessKey: getEnv("R2_ACCESS_KEY", ""),
		R2SecretKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2Bucket:    getEnv("R2_BUCKET", "panpub-assets"),
		R2PublicURL: getEnv("R2_PUBLIC_URL", ""),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Security
		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	return cfg
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("MAX_CONCURRENCY must be at least 1, got %d", c.MaxConcurrency)
	}
	if c.LedgerBackend != "file" && c.LedgerBackend != "redis" {
		return fmt.Errorf("LEDGER_BACKEND must be \"file\" or \"redis\", got %q", c.LedgerBackend)
	}
	return nil
}

// Helper functions for environment variable handling
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultVal int) int {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %d", name, err, defaultVal)
		return defaultVal
	}
	return value
}

func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %v", name, err, defaultVal)
		return defaultVal
	}
	return value
}
