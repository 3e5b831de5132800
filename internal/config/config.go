// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// LND (routing node) connection
	LNDHost         string
	LNDTLSCertPath  string
	LNDMacaroonPath string

	// tapd (asset ledger daemon) connection
	TapdHost         string
	TapdTLSCertPath  string
	TapdMacaroonPath string

	// Aggregation settings
	AssetCacheTTL  time.Duration
	AliasCacheSize int
	RPCTimeout     time.Duration

	// Reconciliation settings
	DefaultWalletID string        // wallet trued up by the background timer
	SyncInterval    time.Duration // 0 disables the background sync loop

	// Tracing
	OTLPEndpoint string
}

const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultLNDHost        = "localhost:10009"
	DefaultTapdHost       = "localhost:10029"
	DefaultAssetCacheTTL  = 60 * time.Second
	DefaultAliasCacheSize = 512
	DefaultRPCTimeout     = 10 * time.Second
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		Env:              getEnv("ENV", DefaultEnv),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:      os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		LNDHost:          getEnv("LND_HOST", DefaultLNDHost),
		LNDTLSCertPath:   os.Getenv("LND_TLS_CERT_PATH"),
		LNDMacaroonPath:  os.Getenv("LND_MACAROON_PATH"),
		TapdHost:         getEnv("TAPD_HOST", DefaultTapdHost),
		TapdTLSCertPath:  os.Getenv("TAPD_TLS_CERT_PATH"),
		TapdMacaroonPath: os.Getenv("TAPD_MACAROON_PATH"),
		AssetCacheTTL:    getEnvSeconds("ASSET_CACHE_TTL_SECONDS", DefaultAssetCacheTTL),
		AliasCacheSize:   int(getEnvInt64("ALIAS_CACHE_SIZE", DefaultAliasCacheSize)),
		RPCTimeout:       getEnvSeconds("RPC_TIMEOUT_SECONDS", DefaultRPCTimeout),
		DefaultWalletID:  os.Getenv("DEFAULT_WALLET_ID"),
		SyncInterval:     getEnvSeconds("SYNC_INTERVAL_SECONDS", 0),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.LNDHost == "" {
		return fmt.Errorf("LND_HOST is required")
	}
	if c.TapdHost == "" {
		return fmt.Errorf("TAPD_HOST is required")
	}
	if c.AssetCacheTTL <= 0 {
		return fmt.Errorf("ASSET_CACHE_TTL_SECONDS must be positive")
	}
	if c.AliasCacheSize <= 0 {
		return fmt.Errorf("ALIAS_CACHE_SIZE must be positive")
	}
	if c.SyncInterval > 0 && c.DefaultWalletID == "" {
		return fmt.Errorf("DEFAULT_WALLET_ID is required when SYNC_INTERVAL_SECONDS is set")
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

func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	return defaultValue
}
