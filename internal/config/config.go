package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the karma engine
type Config struct {
	// Database configuration
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string

	// Redis configuration (sync queue)
	RedisURL string

	// HTTP API configuration
	HTTPPort  string
	JWTSecret string

	// Worker configuration
	MinWorkers int
	MaxWorkers int

	// Content scraping provider
	ContentAPIHost string
	ContentAPIKey  string

	// Sentiment scorer (LLM)
	SentimentAPIKey string
	SentimentModel  string

	// Chain configuration. The RPC URL is only recorded; all transfers go
	// through the simulator until a real sender is wired in.
	ChainRPCURL string

	// Redemption configuration
	RedeemRate float64 // karma points per token

	// Logging configuration
	LogLevel string

	// Metrics configuration
	MetricsPort string
}

// Load reads configuration from environment variables and validates it
func Load() (Config, error) {
	cfg := Config{
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBUser:          getEnv("DB_USER", ""),
		DBPassword:      getEnv("DB_PASSWORD", ""),
		DBName:          getEnv("DB_NAME", ""),
		DBPort:          getEnv("DB_PORT", "5432"),
		DBSSLMode:       getEnv("DB_SSL_MODE", "disable"),
		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379"),
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		ContentAPIHost:  getEnv("CONTENT_API_HOST", ""),
		ContentAPIKey:   getEnv("CONTENT_API_KEY", ""),
		SentimentAPIKey: getEnv("SENTIMENT_API_KEY", ""),
		SentimentModel:  getEnv("SENTIMENT_MODEL", "gpt-4o-mini"),
		ChainRPCURL:     getEnv("CHAIN_RPC_URL", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		MetricsPort:     getEnv("METRICS_PORT", "9100"),
	}

	var err error
	cfg.MinWorkers, err = parseIntEnv("MIN_WORKERS", 2)
	if err != nil {
		return cfg, fmt.Errorf("invalid MIN_WORKERS: %w", err)
	}

	cfg.MaxWorkers, err = parseIntEnv("MAX_WORKERS", 10)
	if err != nil {
		return cfg, fmt.Errorf("invalid MAX_WORKERS: %w", err)
	}

	cfg.RedeemRate, err = parseFloatEnv("REDEEM_RATE", 100)
	if err != nil {
		return cfg, fmt.Errorf("invalid REDEEM_RATE: %w", err)
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks that the configuration is valid
func (c Config) validate() error {
	if c.DBName == "" {
		return fmt.Errorf("DB_NAME is required")
	}

	if c.DBUser == "" {
		return fmt.Errorf("DB_USER is required")
	}

	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.MinWorkers < 1 {
		return fmt.Errorf("MIN_WORKERS must be at least 1")
	}

	if c.MaxWorkers < c.MinWorkers {
		return fmt.Errorf("MAX_WORKERS must be greater than or equal to MIN_WORKERS")
	}

	if c.RedeemRate <= 0 {
		return fmt.Errorf("REDEEM_RATE must be positive")
	}

	validLogLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
		"panic": true,
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid LOG_LEVEL: %s (must be one of: trace, debug, info, warn, error, fatal, panic)", c.LogLevel)
	}

	return nil
}

// DSN builds the postgres connection string for gorm
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode,
	)
}

// getEnv retrieves an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv parses an integer environment variable with a default value
func parseIntEnv(key string, defaultValue int) (int, error) {
	str := os.Getenv(key)
	if str == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(str)
}

// parseFloatEnv parses a float environment variable with a default value
func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	str := os.Getenv(key)
	if str == "" {
		return defaultValue, nil
	}
	return strconv.ParseFloat(str, 64)
}
