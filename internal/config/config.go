// Package config provides configuration management for the tax ledger service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Store backends
const (
	BackendPostgres   = "postgres"
	BackendMemory     = "memory"
	BackendClickHouse = "clickhouse"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Store     StoreConfig
	Cache     CacheConfig
	Tax       TaxConfig
	RateLimit RateLimitConfig
	Chain     ChainConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ConnString renders a pgx connection string
func (c PostgresConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// StoreConfig selects backends and retry behaviour for the event store
type StoreConfig struct {
	EventBackend        string // postgres | memory
	FeeAnalyticsBackend string // postgres | clickhouse
	RetryAttempts       int
	RetryInitialDelay   time.Duration
}

// CacheConfig holds summary cache configuration
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// TaxConfig holds accounting parameters
type TaxConfig struct {
	LossHaircut        decimal.Decimal
	StrictInvariants   bool
	SummaryConcurrency int
}

// RateLimitConfig holds per-client request limits
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// ChainConfig holds the settlement chain RPC endpoint
type ChainConfig struct {
	RPCURL           string
	MinConfirmations uint64
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// DefaultLossHaircut is applied to realized losses when TAX_LOSS_HAIRCUT is unset
var DefaultLossHaircut = decimal.RequireFromString("0.7")

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env is optional; environment variables can be set directly
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	haircut, err := getEnvAsDecimal("TAX_LOSS_HAIRCUT", DefaultLossHaircut)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "tax_ledger"),
				User:           getEnv("POSTGRES_USER", "ledger"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 25),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "tax_ledger"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Store: StoreConfig{
			EventBackend:        strings.ToLower(getEnv("EVENT_STORE_BACKEND", BackendPostgres)),
			FeeAnalyticsBackend: strings.ToLower(getEnv("FEE_ANALYTICS_BACKEND", BackendPostgres)),
			RetryAttempts:       getEnvAsInt("STORE_RETRY_ATTEMPTS", 3),
			RetryInitialDelay:   getEnvAsDuration("STORE_RETRY_INITIAL_DELAY", 100*time.Millisecond),
		},
		Cache: CacheConfig{
			Enabled: getEnvAsBool("CACHE_ENABLED", true),
			TTL:     getEnvAsDuration("CACHE_TTL", 5*time.Minute),
		},
		Tax: TaxConfig{
			LossHaircut:        haircut,
			StrictInvariants:   getEnvAsBool("TAX_STRICT_INVARIANTS", false),
			SummaryConcurrency: getEnvAsInt("SUMMARY_CONCURRENCY", 8),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 20),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 40),
		},
		Chain: ChainConfig{
			RPCURL:           getEnv("CHAIN_RPC_URL", ""),
			MinConfirmations: uint64(getEnvAsInt("CHAIN_MIN_CONFIRMATIONS", 1)),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects out-of-range or unknown values
func (c *Config) Validate() error {
	switch c.Store.EventBackend {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("EVENT_STORE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, c.Store.EventBackend)
	}

	switch c.Store.FeeAnalyticsBackend {
	case BackendPostgres, BackendClickHouse:
	default:
		return fmt.Errorf("FEE_ANALYTICS_BACKEND must be %q or %q, got %q", BackendPostgres, BackendClickHouse, c.Store.FeeAnalyticsBackend)
	}

	if c.Tax.LossHaircut.IsNegative() || c.Tax.LossHaircut.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("TAX_LOSS_HAIRCUT must be within [0, 1], got %s", c.Tax.LossHaircut)
	}
	if c.Tax.SummaryConcurrency < 1 {
		return fmt.Errorf("SUMMARY_CONCURRENCY must be at least 1, got %d", c.Tax.SummaryConcurrency)
	}
	if c.Store.RetryAttempts < 1 {
		return fmt.Errorf("STORE_RETRY_ATTEMPTS must be at least 1, got %d", c.Store.RetryAttempts)
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst < 1 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("CACHE_TTL must not be negative")
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDecimal is strict: a malformed monetary parameter is a startup error
func getEnvAsDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := decimal.NewFromString(strings.TrimSpace(valueStr))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return value, nil
}
