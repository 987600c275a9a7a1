// Package config loads the process-level bootstrap configuration: the
// values needed before the hot-reloadable runtime registry
// (internal/configsvc) can even be constructed — data directory, HTTP
// port, log level, and which config backend to use.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds bootstrap configuration, read once at process start.
type Config struct {
	DataDir     string // base directory for sqlite databases
	Port        int
	DevMode     bool
	LogLevel    string // debug, info, warn, error
	StorageType string // "env" or "db" — selects the configsvc backend
	ConfigPath  string // dotenv path, used when StorageType != "db"

	TushareToken          string
	TushareQuotaPerMinute int

	ArchiveBucket          string
	ArchivePrefix          string
	ArchiveEndpoint        string
	ArchiveRegion          string
	ArchiveAccessKeyID     string
	ArchiveSecretAccessKey string
	ArchiveRetentionDays   int
}

const defaultDataDir = "./data"

// Load reads .env (if present) then environment variables, resolving
// DataDir to an absolute path and creating it if missing.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", defaultDataDir)
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data directory: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:               absDataDir,
		Port:                  getEnvAsInt("PORT", 8080),
		DevMode:               getEnvAsBool("DEV_MODE", false),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		StorageType:           strings.ToLower(getEnv("CONFIG_STORAGE_TYPE", "env")),
		ConfigPath:            getEnv("CONFIG_FILE_PATH", filepath.Join(absDataDir, ".env")),
		TushareToken:          getEnv("TUSHARE_TOKEN", ""),
		TushareQuotaPerMinute: getEnvAsInt("TUSHARE_QUOTA_PER_MINUTE", 200),

		ArchiveBucket:          getEnv("ARCHIVE_S3_BUCKET", ""),
		ArchivePrefix:          getEnv("ARCHIVE_S3_PREFIX", "reports/"),
		ArchiveEndpoint:        getEnv("ARCHIVE_S3_ENDPOINT", ""),
		ArchiveRegion:          getEnv("ARCHIVE_S3_REGION", "us-east-1"),
		ArchiveAccessKeyID:     getEnv("ARCHIVE_S3_ACCESS_KEY_ID", ""),
		ArchiveSecretAccessKey: getEnv("ARCHIVE_S3_SECRET_ACCESS_KEY", ""),
		ArchiveRetentionDays:   getEnvAsInt("ARCHIVE_RETENTION_DAYS", 90),
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvAsBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
