// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// IP intelligence provider
	IntelAPIURL  string
	IntelAPIKey  string
	IntelTimeout time.Duration

	// Geography reference data
	GeoDataPath string // Path to geodata.json (optional, sanctions list works without it)

	// Security
	AdminAPIKey    string // Static key guarding admin routes
	AuthRequired   bool   // Require client API keys on screening routes
	AllowedOrigins []string
	RateLimitRPM   int
	RateLimitBurst int

	// Realtime feed
	MaxWSClients int

	// Observability
	OTLPEndpoint string // OTLP gRPC collector address (optional, tracing disabled if unset)

	// Shutdown
	DrainSeconds int // Delay before closing the listener, gives LBs time to drain
}

// Defaults
const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultIntelTimeout   = 5 * time.Second
	DefaultRateLimitRPM   = 120
	DefaultRateLimitBurst = 20
	DefaultMaxWSClients   = 100
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", DefaultPort),
		Env:            getEnv("ENV", DefaultEnv),
		LogLevel:       getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:      getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:    os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		IntelAPIURL:    os.Getenv("INTEL_API_URL"),
		IntelAPIKey:    os.Getenv("INTEL_API_KEY"),
		IntelTimeout:   time.Duration(getEnvInt64("INTEL_TIMEOUT_SECONDS", int64(DefaultIntelTimeout/time.Second))) * time.Second,
		GeoDataPath:    os.Getenv("GEODATA_PATH"),
		AdminAPIKey:    os.Getenv("ADMIN_API_KEY"),
		AuthRequired:   getEnvBool("AUTH_REQUIRED", false),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
		RateLimitRPM:   int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),
		RateLimitBurst: int(getEnvInt64("RATE_LIMIT_BURST", DefaultRateLimitBurst)),
		MaxWSClients:   int(getEnvInt64("MAX_WS_CLIENTS", DefaultMaxWSClients)),
		OTLPEndpoint:   os.Getenv("OTLP_ENDPOINT"),
		DrainSeconds:   int(getEnvInt64("SHUTDOWN_DRAIN_SECONDS", 0)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.Port)
	}

	if c.IntelTimeout <= 0 {
		return fmt.Errorf("INTEL_TIMEOUT_SECONDS must be positive")
	}

	if c.IntelAPIURL != "" && c.IntelAPIKey == "" {
		return fmt.Errorf("INTEL_API_KEY is required when INTEL_API_URL is set")
	}

	if c.IsProduction() {
		if c.IntelAPIURL == "" {
			return fmt.Errorf("INTEL_API_URL is required in production")
		}
		if c.AdminAPIKey == "" {
			return fmt.Errorf("ADMIN_API_KEY is required in production")
		}
	}

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

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
