package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// API Configuration
	APIPort        string
	APIHost        string
	APIEnvironment string

	// Database. Empty DatabaseURL runs the API against the in-memory store
	// (development and tests only).
	DatabaseURL string

	// Redis. Empty RedisURL disables score caching.
	RedisURL string

	// JWT & Security
	JWTSecret string

	// Rate Limiting
	RateLimitRequestsPerMinute int
	RateLimitBurst             int

	// Sentry
	SentryDSN         string
	SentryEnvironment string

	// Email
	SendGridAPIKey string
	EmailFrom      string
	EmailFromName  string

	// Scheduler
	SchedulerPollInterval time.Duration
	SchedulerWorkers      int
	SchedulerBatchSize    int
	SchedulerClaimTimeout time.Duration

	// Scoring
	ScoringBatchConcurrency int

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		// API
		APIPort:        getEnv("API_PORT", "8080"),
		APIHost:        getEnv("API_HOST", "0.0.0.0"),
		APIEnvironment: getEnv("API_ENVIRONMENT", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),

		// Redis
		RedisURL: getEnv("REDIS_URL", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "change-this-in-production"),

		// Rate Limiting
		RateLimitRequestsPerMinute: getEnvAsInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 60),
		RateLimitBurst:             getEnvAsInt("RATE_LIMIT_BURST", 10),

		// Sentry
		SentryDSN:         getEnv("SENTRY_DSN", ""),
		SentryEnvironment: getEnv("SENTRY_ENVIRONMENT", "development"),

		// Email
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:      getEnv("EMAIL_FROM", "noreply@salespilot.io"),
		EmailFromName:  getEnv("EMAIL_FROM_NAME", "SalesPilot"),

		// Scheduler
		SchedulerPollInterval: getEnvAsDuration("SCHEDULER_POLL_INTERVAL", 15*time.Second),
		SchedulerWorkers:      getEnvAsInt("SCHEDULER_WORKERS", 4),
		SchedulerBatchSize:    getEnvAsInt("SCHEDULER_BATCH_SIZE", 25),
		SchedulerClaimTimeout: getEnvAsDuration("SCHEDULER_CLAIM_TIMEOUT", 10*time.Minute),

		// Scoring
		ScoringBatchConcurrency: getEnvAsInt("SCORING_BATCH_CONCURRENCY", 8),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
