package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "")
	t.Setenv("SERVER_BASE_URL", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.WSPingInterval != 25*time.Second {
		t.Fatalf("unexpected ping interval %s", cfg.WSPingInterval)
	}
	if cfg.ServerBaseURL != "http://localhost:8080" {
		t.Fatalf("unexpected server base url %s", cfg.ServerBaseURL)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planner.yaml")
	content := "port: \"9000\"\ndb_path: ${PLANNER_TEST_DIR}/planner.db\ntoken_ttl_hours: 5\nserver_base_url: https://planner.example.com\ncors_origins:\n  - https://app.example.com\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PLANNER_TEST_DIR", "/srv")
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9100")
	t.Setenv("TOKEN_TTL_HOURS", "")
	t.Setenv("SERVER_BASE_URL", "")

	cfg := Load()
	if cfg.Port != "9100" {
		t.Fatalf("env should override file port, got %s", cfg.Port)
	}
	if cfg.DBPath != "/srv/planner.db" {
		t.Fatalf("expected expanded db path, got %s", cfg.DBPath)
	}
	if cfg.TokenTTL != 5*time.Hour {
		t.Fatalf("expected 5h ttl from file, got %s", cfg.TokenTTL)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "https://app.example.com" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSOrigins)
	}
	if cfg.ServerBaseURL != "https://planner.example.com" {
		t.Fatalf("expected server base url from file, got %s", cfg.ServerBaseURL)
	}
}
