package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"resultsbakery/internal"
)

type Config struct {
	DBPath        string
	CacheDir      string
	OutputDir     string
	DatasourceDir string

	LogLevel  string
	LogFormat string

	FetchRateLimitRPS int
	FetchTimeoutMs    int
	FetchMaxAttempts  int

	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:        getEnv("DB_PATH", filepath.Join(cwd, "data", "results.db")),
		CacheDir:      getEnv("CACHE_DIR", filepath.Join(cwd, "data", "cache")),
		OutputDir:     getEnv("OUTPUT_DIR", filepath.Join(cwd, "bakery")),
		DatasourceDir: getEnv("DATASOURCE_DIR", filepath.Join(cwd, "datasources")),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "auto"),

		FetchRateLimitRPS: getEnvInt("FETCH_RATE_LIMIT_RPS", 2),
		FetchTimeoutMs:    getEnvInt("FETCH_TIMEOUT_MS", 30000),
		FetchMaxAttempts:  getEnvInt("FETCH_MAX_ATTEMPTS", 5),

		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3Bucket:    getEnv("S3_BUCKET", ""),
		S3UseSSL:    getEnvBool("S3_USE_SSL", true),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: missing required env var: %s", internal.ErrConfiguration, name)
	}
	return nil
}

// UseObjectStore reports whether raw files should be read from S3 instead
// of the local cache directory.
func (c Config) UseObjectStore() bool {
	return strings.TrimSpace(c.S3Endpoint) != "" && strings.TrimSpace(c.S3Bucket) != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
