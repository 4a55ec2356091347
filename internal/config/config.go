package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Security
	JWTSecret string

	// Application
	AppEnv   string
	AppPort  string
	LogLevel string

	// Rate Limiting
	RateLimitPerAccount int
	RateLimitPerIP      int

	// Payment gateway
	GatewayBaseURL        string
	GatewayToken          string
	GatewayTimeoutSeconds int

	// Payment reconciliation
	OrderExpiryMinutes   int
	SweepIntervalMinutes int

	// Settlement
	TxRetryAttempts int
	StatsQueueSize  int
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "credits"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "credits_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret: getEnv("JWT_SECRET_KEY", ""),

		AppEnv:   getEnv("APP_ENV", "development"),
		AppPort:  getEnv("APP_PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RateLimitPerAccount: getEnvInt("RATE_LIMIT_PER_ACCOUNT", 30),
		RateLimitPerIP:      getEnvInt("RATE_LIMIT_PER_IP", 100),

		GatewayBaseURL:        getEnv("GATEWAY_BASE_URL", ""),
		GatewayToken:          getEnv("GATEWAY_TOKEN", ""),
		GatewayTimeoutSeconds: getEnvInt("GATEWAY_TIMEOUT_SECONDS", 10),

		OrderExpiryMinutes:   getEnvInt("ORDER_EXPIRY_MINUTES", 30),
		SweepIntervalMinutes: getEnvInt("SWEEP_INTERVAL_MINUTES", 5),

		TxRetryAttempts: getEnvInt("TX_RETRY_ATTEMPTS", 3),
		StatsQueueSize:  getEnvInt("STATS_QUEUE_SIZE", 256),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 characters")
	}
	if c.GatewayBaseURL == "" {
		return fmt.Errorf("GATEWAY_BASE_URL is required")
	}
	if c.OrderExpiryMinutes <= 0 {
		return fmt.Errorf("ORDER_EXPIRY_MINUTES must be positive")
	}
	if c.SweepIntervalMinutes <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_MINUTES must be positive")
	}
	return nil
}

func (c *Config) ValidateProductionSecurity() error {
	if c.AppEnv != "production" {
		return nil
	}

	if c.DBSSLMode != "require" {
		return fmt.Errorf("DB_SSLMODE must be 'require' in production")
	}
	if c.JWTSecret == "your_jwt_secret_minimum_32_chars_here_change_this" {
		return fmt.Errorf("JWT_SECRET_KEY must be changed from default in production")
	}
	if c.GatewayToken == "" {
		return fmt.Errorf("GATEWAY_TOKEN must be set in production")
	}

	return nil
}

func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

func (c *Config) GetOrderExpiry() time.Duration {
	return time.Duration(c.OrderExpiryMinutes) * time.Minute
}

func (c *Config) GetSweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

func (c *Config) GetGatewayTimeout() time.Duration {
	return time.Duration(c.GatewayTimeoutSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
