// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	// Presence
	PresenceTTL time.Duration // Heartbeat staleness threshold

	// Matching
	MatchConcurrency int           // Bounded fan-out for per-candidate pricing
	RateCallTimeout  time.Duration // Per-candidate pricing timeout
	SearchCacheTTL   time.Duration // How long a ranked search result stays cached

	// Backup (S3-compatible storage; disabled when Bucket is empty)
	Backup *BackupConfig
}

// BackupConfig holds database backup configuration.
type BackupConfig struct {
	Bucket          string
	Endpoint        string // Custom endpoint for R2/MinIO; empty means plain AWS S3
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	RetentionDays   int
}

// Enabled reports whether backups are configured.
func (b *BackupConfig) Enabled() bool {
	return b != nil && b.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("STAGEFINDER_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:          absDataDir,
		Port:             getEnvAsInt("PORT", 8004),
		DevMode:          getEnvAsBool("DEV_MODE", false),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		PresenceTTL:      getEnvAsDuration("PRESENCE_TTL_SECONDS", 120) * time.Second,
		MatchConcurrency: getEnvAsInt("MATCH_CONCURRENCY", 8),
		RateCallTimeout:  getEnvAsDuration("RATE_CALL_TIMEOUT_SECONDS", 5) * time.Second,
		SearchCacheTTL:   getEnvAsDuration("SEARCH_CACHE_TTL_SECONDS", 60) * time.Second,
		Backup: &BackupConfig{
			Bucket:          getEnv("BACKUP_BUCKET", ""),
			Endpoint:        getEnv("BACKUP_ENDPOINT", ""),
			Region:          getEnv("BACKUP_REGION", "auto"),
			AccessKeyID:     getEnv("BACKUP_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_SECRET_ACCESS_KEY", ""),
			RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 14),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and sane
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.PresenceTTL <= 0 {
		return fmt.Errorf("presence TTL must be positive, got %s", c.PresenceTTL)
	}
	if c.MatchConcurrency <= 0 {
		return fmt.Errorf("match concurrency must be positive, got %d", c.MatchConcurrency)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultValue))
}
