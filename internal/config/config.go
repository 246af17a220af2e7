package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Gateway  GatewayConfig
	Pricing  PricingConfig
	Policy   PolicyConfig
	Logger   LoggerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int
	Host        string
	MetricsPort int
	// BaseURL is the externally reachable origin of this service,
	// used to build the gateway notify and return URLs.
	BaseURL string
	// LandingURL is where browsers are sent after the payment flow
	// finishes, with an outcome tag appended.
	LandingURL string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// RedisConfig holds the transaction ledger backend configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// GatewayConfig holds Netopia gateway configuration. API keys may be
// left empty here and resolved from a secrets backend at startup.
type GatewayConfig struct {
	APIKeySandbox string
	APIKeyLive    string
	Signature     string
	Sandbox       bool
	Currency      string
	Language      string
	Timeout       int // request timeout in seconds
	// SecretID names the secrets-manager entry holding the API keys
	// and signature; empty means env-only credentials.
	SecretID string
}

// PricingConfig holds listing prices. Membership package prices come
// from the package catalog table instead.
type PricingConfig struct {
	ListingPrice       decimal.Decimal
	FeaturedPrice      decimal.Decimal
	ListingTaxPercent  decimal.Decimal
	FeaturedTaxPercent decimal.Decimal
}

// PolicyConfig holds listing publication policy flags
type PolicyConfig struct {
	AdminApproval        bool
	PerListingSubmission bool
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnvAsInt("SERVER_PORT", 8080),
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			MetricsPort: getEnvAsInt("METRICS_PORT", 9090),
			BaseURL:     getEnv("PUBLIC_BASE_URL", ""),
			LandingURL:  getEnv("LANDING_URL", ""),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "payments"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Gateway: GatewayConfig{
			APIKeySandbox: getEnv("NETOPIA_API_KEY_SANDBOX", ""),
			APIKeyLive:    getEnv("NETOPIA_API_KEY_LIVE", ""),
			Signature:     getEnv("NETOPIA_SIGNATURE", ""),
			Sandbox:       getEnvAsBool("NETOPIA_SANDBOX", true),
			Currency:      getEnv("NETOPIA_CURRENCY", "RON"),
			Language:      getEnv("NETOPIA_LANGUAGE", "ro"),
			Timeout:       getEnvAsInt("NETOPIA_TIMEOUT", 30),
			SecretID:      getEnv("NETOPIA_SECRET_ID", ""),
		},
		Pricing: PricingConfig{
			ListingPrice:       getEnvAsDecimal("LISTING_PRICE", "0"),
			FeaturedPrice:      getEnvAsDecimal("FEATURED_PRICE", "0"),
			ListingTaxPercent:  getEnvAsDecimal("LISTING_TAX_PERCENT", "0"),
			FeaturedTaxPercent: getEnvAsDecimal("FEATURED_TAX_PERCENT", "0"),
		},
		Policy: PolicyConfig{
			AdminApproval:        getEnvAsBool("LISTING_ADMIN_APPROVAL", false),
			PerListingSubmission: getEnvAsBool("LISTING_PAID_SUBMISSION", true),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	// Validate required fields
	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if cfg.Server.BaseURL == "" {
		return nil, fmt.Errorf("PUBLIC_BASE_URL is required")
	}
	if cfg.Server.LandingURL == "" {
		return nil, fmt.Errorf("LANDING_URL is required")
	}

	return cfg, nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
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

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDecimal(key, defaultValue string) decimal.Decimal {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return decimal.Zero
	}
	return value
}
