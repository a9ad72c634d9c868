package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_TYPE", "sqlite")
	t.Setenv("DB_DATABASE", "benchtop.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "3000" {
		t.Errorf("Expected default port 3000, got %s", cfg.Port)
	}
	if cfg.NextcloudBasePath != "/ERP" {
		t.Errorf("Expected default base path /ERP, got %s", cfg.NextcloudBasePath)
	}
	if cfg.DefaultBoardsCount != 1 {
		t.Errorf("Expected default boards count 1, got %d", cfg.DefaultBoardsCount)
	}
	if cfg.AuthEnabled() {
		t.Error("Expected auth to be disabled without AUTHZ_URL")
	}
}

func TestLoadRequiresDatabase(t *testing.T) {
	t.Setenv("DB_DATABASE", "")
	if _, err := Load(); err == nil {
		t.Fatal("Expected error when DB_DATABASE is empty")
	}
}

func TestLoadRequiresUserForServerDatabases(t *testing.T) {
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DB_DATABASE", "benchtop")
	t.Setenv("DB_APP_USER", "")
	if _, err := Load(); err == nil {
		t.Fatal("Expected error when DB_APP_USER is empty for postgres")
	}
}

func TestLoadTrimsNextcloudURL(t *testing.T) {
	t.Setenv("DB_TYPE", "sqlite")
	t.Setenv("DB_DATABASE", "benchtop.db")
	t.Setenv("NEXTCLOUD_URL", "https://cloud.example.com/")
	t.Setenv("NEXTCLOUD_USER", "erp")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.NextcloudURL != "https://cloud.example.com" {
		t.Errorf("Expected trailing slash trimmed, got %s", cfg.NextcloudURL)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("BENCHTOP_TEST_KEY=from-file\n"), 0o600); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("BENCHTOP_TEST_KEY") })

	if err := LoadEnvFile(envPath); err != nil {
		t.Fatalf("LoadEnvFile failed: %v", err)
	}
	if got := os.Getenv("BENCHTOP_TEST_KEY"); got != "from-file" {
		t.Errorf("Expected value from env file, got %q", got)
	}

	if err := LoadEnvFile(""); err != nil {
		t.Errorf("Expected empty filename to be a no-op, got %v", err)
	}
}

func TestNewLoggerLevel(t *testing.T) {
	logger := NewLogger(&Config{LogLevel: "debug", LogFormat: "text"})
	if logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("Expected debug level, got %s", logger.GetLevel())
	}

	logger = NewLogger(&Config{LogLevel: "nonsense"})
	if logger.GetLevel() != logrus.InfoLevel {
		t.Errorf("Expected info fallback, got %s", logger.GetLevel())
	}
}
