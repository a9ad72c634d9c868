package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Port string

	// Database configuration
	DBType               string // mysql, postgres, sqlite, sqlite-pure, sqlserver
	DBHost               string
	DBPort               string
	DBDatabase           string
	DBAppUser            string
	DBAppPassword        string
	DBAppConnectionLimit int

	// Authorizer configuration, auth is disabled when AuthzURL is empty
	AuthzURL      string
	AuthzClientID string

	// Nextcloud configuration
	NextcloudURL            string
	NextcloudUser           string
	NextcloudPassword       string
	NextcloudBasePath       string
	NextcloudTimeoutSeconds int

	// Local document storage root
	LocalStoragePath string

	// Redis configuration, in-process locks are used when RedisAddr is empty
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Logging
	LogLevel  string
	LogFormat string

	// Board count used when neither the request nor the project names one
	DefaultBoardsCount int
}

// LoadEnvFile loads variables from a .env file into the process environment.
// An empty filename is a no-op.
func LoadEnvFile(filename string) error {
	if filename == "" {
		return nil
	}
	if err := godotenv.Load(filename); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", filename, err)
	}
	return nil
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:                    getEnv("PORT", "3000"),
		DBType:                  getEnv("DB_TYPE", "mysql"),
		DBHost:                  getEnv("DB_HOST", "localhost"),
		DBPort:                  getEnv("DB_PORT", "3306"),
		DBDatabase:              getEnv("DB_DATABASE", ""),
		DBAppUser:               getEnv("DB_APP_USER", ""),
		DBAppPassword:           getEnv("DB_APP_PASSWORD", ""),
		DBAppConnectionLimit:    getEnvAsInt("DB_APP_CONNECTION_LIMIT", 5),
		AuthzURL:                getEnv("AUTHZ_URL", ""),
		AuthzClientID:           getEnv("AUTHZ_CLIENT_ID", ""),
		NextcloudURL:            strings.TrimSuffix(getEnv("NEXTCLOUD_URL", ""), "/"),
		NextcloudUser:           getEnv("NEXTCLOUD_USER", ""),
		NextcloudPassword:       getEnv("NEXTCLOUD_PASSWORD", ""),
		NextcloudBasePath:       getEnv("NEXTCLOUD_BASE_PATH", "/ERP"),
		NextcloudTimeoutSeconds: getEnvAsInt("NEXTCLOUD_TIMEOUT_SECONDS", 30),
		LocalStoragePath:        getEnv("LOCAL_STORAGE_PATH", "./storage"),
		RedisAddr:               getEnv("REDIS_ADDR", ""),
		RedisPassword:           getEnv("REDIS_PASSWORD", ""),
		RedisDB:                 getEnvAsInt("REDIS_DB", 0),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogFormat:               getEnv("LOG_FORMAT", "json"),
		DefaultBoardsCount:      getEnvAsInt("DEFAULT_BOARDS_COUNT", 1),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields and value ranges
func (cfg *Config) Validate() error {
	if cfg.DBDatabase == "" {
		return fmt.Errorf("DB_DATABASE is required")
	}
	if !cfg.IsSQLite() && cfg.DBAppUser == "" {
		return fmt.Errorf("DB_APP_USER is required")
	}
	if cfg.AuthzURL != "" && cfg.AuthzClientID == "" {
		return fmt.Errorf("AUTHZ_CLIENT_ID is required when AUTHZ_URL is set")
	}
	if cfg.NextcloudURL != "" && cfg.NextcloudUser == "" {
		return fmt.Errorf("NEXTCLOUD_USER is required when NEXTCLOUD_URL is set")
	}
	if cfg.DefaultBoardsCount < 1 {
		return fmt.Errorf("DEFAULT_BOARDS_COUNT must be at least 1")
	}
	return nil
}

// IsSQLite reports whether the configured database is a SQLite file
func (cfg *Config) IsSQLite() bool {
	return cfg.DBType == "sqlite" || cfg.DBType == "sqlite-pure"
}

// AuthEnabled reports whether mutating routes require an authorizer session
func (cfg *Config) AuthEnabled() bool {
	return cfg.AuthzURL != ""
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
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
