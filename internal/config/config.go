package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port         string
	RateLimitRPM int
	CacheTTL     time.Duration
	CORSOrigin   string

	// Pipeline
	SQLiteDBPath string
	AuditLogPath string
	BackupDir    string
	Timezone     string

	// AMQP (disabled when AMQPURL is empty)
	AMQPURL         string
	AMQPExchange    string
	AMQPIngestQueue string
	AMQPSyncQueue   string

	// Google Sheets mirror (disabled when GoogleSpreadsheetID is empty)
	GoogleSpreadsheetID string
	GoogleSheetName     string

	// Worker
	SyncTarget    string // sheets, memory, none; empty picks sheets when configured
	ScanInterval  time.Duration
	SyncBatchSize int
	SyncInterval  time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8081"),
		RateLimitRPM: getEnvInt("RATE_LIMIT_RPM", 120),
		CacheTTL:     getEnvDuration("CACHE_TTL", time.Minute),
		CORSOrigin:   getEnv("CORS_ALLOW_ORIGIN", "*"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/transactions.db"),
		AuditLogPath: getEnv("AUDIT_LOG_PATH", "./data/unprocessed_sms.log"),
		BackupDir:    getEnv("BACKUP_DIR", "./data/inbox"),
		Timezone:     getEnv("TIMEZONE", "Local"),

		AMQPURL:         getEnv("AMQP_URL", ""),
		AMQPExchange:    getEnv("AMQP_EXCHANGE", "smsledger"),
		AMQPIngestQueue: getEnv("AMQP_INGEST_QUEUE", "ingest_requests"),
		AMQPSyncQueue:   getEnv("AMQP_SYNC_QUEUE", "sync_transactions"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Transactions"),

		SyncTarget:    getEnv("SYNC_TARGET", ""),
		ScanInterval:  getEnvDuration("SCAN_INTERVAL", time.Minute),
		SyncBatchSize: getEnvInt("SYNC_BATCH_SIZE", 50),
		SyncInterval:  getEnvDuration("SYNC_INTERVAL", 30*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Location resolves Timezone. "Local" and "" mean the process zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// AMQPEnabled reports whether a broker is configured.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// SheetsEnabled reports whether the spreadsheet mirror is configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else if err := ensureDir(c.SQLiteDBPath); err != nil {
		errors = append(errors, fmt.Sprintf("cannot create SQLite database directory: %v", err))
	}

	if c.AuditLogPath == "" {
		errors = append(errors, "audit log path cannot be empty")
	}

	if _, err := c.Location(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPIngestQueue == "" || c.AMQPSyncQueue == "" {
			errors = append(errors, "AMQP queue names cannot be empty when AMQP URL is provided")
		} else if c.AMQPIngestQueue == c.AMQPSyncQueue {
			errors = append(errors, "AMQP ingest and sync queues must differ")
		}
	}

	if c.SheetsEnabled() && c.GoogleSheetName == "" {
		errors = append(errors, "Google Sheet name is required when GOOGLE_SPREADSHEET_ID is set")
	}

	if c.RateLimitRPM < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitRPM))
	}
	if c.CacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must not be negative", c.CacheTTL))
	}

	if c.ScanInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid scan interval %v: must be at least 1 second", c.ScanInterval))
	}

	if c.SyncBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
