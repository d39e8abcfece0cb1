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
	DataDir  string // Base directory for local databases and backup staging (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	// Google Sheets store
	SpreadsheetID   string
	CredentialsPath string
	MetricsSheet    string
	BlacklistSheet  string

	// Refresh policy
	BatchSize   int
	BatchPause  time.Duration
	MaxFailures int
	StaleAfter  time.Duration

	// Market data provider
	YahooTimeout time.Duration

	// Schedules (cron with seconds field)
	RefreshSchedule       string
	CleanupSchedule       string
	BackupSchedule        string
	MaintenanceSchedule   string
	DatabaseCheckSchedule string

	// Run history older than this is pruned by maintenance (0 keeps forever)
	HistoryRetentionDays int

	R2 *R2Config
}

// R2Config holds Cloudflare R2 backup credentials
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	RetentionDays   int
}

// Enabled reports whether every credential needed for backups is present
func (c *R2Config) Enabled() bool {
	return c != nil &&
		c.AccountID != "" &&
		c.AccessKeyID != "" &&
		c.SecretAccessKey != "" &&
		c.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("METRICS_DATA_DIR", "./data")

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnvAsInt("PORT", 8080),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		SpreadsheetID:   getEnv("SPREADSHEET_ID", ""),
		CredentialsPath: getEnv("GOOGLE_CREDENTIALS_PATH", "creds.json"),
		MetricsSheet:    getEnv("METRICS_SHEET", "Financial Metrics"),
		BlacklistSheet:  getEnv("BLACKLIST_SHEET", "Blacklist"),

		BatchSize:   getEnvAsInt("BATCH_SIZE", 50),
		BatchPause:  getEnvAsDuration("BATCH_PAUSE", 100*time.Millisecond),
		MaxFailures: getEnvAsInt("MAX_FAILURES", 5),
		StaleAfter:  getEnvAsDuration("STALE_AFTER", 24*time.Hour),

		YahooTimeout: getEnvAsDuration("YAHOO_TIMEOUT", 30*time.Second),

		RefreshSchedule:       getEnv("REFRESH_SCHEDULE", "0 0 */6 * * *"),
		CleanupSchedule:       getEnv("CLEANUP_SCHEDULE", "0 30 3 * * *"),
		BackupSchedule:        getEnv("BACKUP_SCHEDULE", "@daily"),
		MaintenanceSchedule:   getEnv("MAINTENANCE_SCHEDULE", "0 0 4 * * SUN"),
		DatabaseCheckSchedule: getEnv("DATABASE_CHECK_SCHEDULE", "0 15 * * * *"),

		HistoryRetentionDays: getEnvAsInt("HISTORY_RETENTION_DAYS", 90),

		R2: &R2Config{
			AccountID:       getEnv("R2_ACCOUNT_ID", ""),
			AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
			Bucket:          getEnv("R2_BUCKET", ""),
			RetentionDays:   getEnvAsInt("R2_RETENTION_DAYS", 30),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.SpreadsheetID == "" {
		return fmt.Errorf("SPREADSHEET_ID is required")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	if c.MaxFailures <= 0 {
		return fmt.Errorf("MAX_FAILURES must be positive, got %d", c.MaxFailures)
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("STALE_AFTER must be positive, got %s", c.StaleAfter)
	}
	if c.BatchPause < 0 {
		return fmt.Errorf("BATCH_PAUSE must not be negative, got %s", c.BatchPause)
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
