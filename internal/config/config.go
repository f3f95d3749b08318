package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port            string
	DBPath          string
	JWTSecret       string
	TokenTTL        time.Duration
	CORSOrigins     []string
	MigrationsDir   string
	WSPingInterval  time.Duration
	WSPongTimeout   time.Duration
	APIKeyPurgeSpec string
	ServerBaseURL   string
}

// fileOverlay mirrors the YAML config file. Zero values leave defaults alone.
type fileOverlay struct {
	Port            string   `yaml:"port"`
	DBPath          string   `yaml:"db_path"`
	JWTSecret       string   `yaml:"jwt_secret"`
	TokenTTLHours   int      `yaml:"token_ttl_hours"`
	CORSOrigins     []string `yaml:"cors_origins"`
	MigrationsDir   string   `yaml:"migrations_dir"`
	WSPingSeconds   int      `yaml:"ws_ping_interval_seconds"`
	WSPongSeconds   int      `yaml:"ws_pong_timeout_seconds"`
	APIKeyPurgeSpec string   `yaml:"api_key_purge_schedule"`
	ServerBaseURL   string   `yaml:"server_base_url"`
}

// Load reads .env (if present), then the optional YAML file named by
// CONFIG_FILE, then environment variables. Later sources win.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:            "8080",
		DBPath:          "./data/planner.db",
		JWTSecret:       "change-this-secret",
		TokenTTL:        72 * time.Hour,
		CORSOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		WSPingInterval:  25 * time.Second,
		WSPongTimeout:   60 * time.Second,
		APIKeyPurgeSpec: "0 0 3 * * *",
		ServerBaseURL:   "http://localhost:8080",
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			fmt.Fprintf(os.Stderr, "config: ignoring %s: %v\n", path, err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.TokenTTL = time.Duration(getEnvInt("TOKEN_TTL_HOURS", int(cfg.TokenTTL/time.Hour))) * time.Hour
	cfg.CORSOrigins = getEnvList("CORS_ORIGINS", cfg.CORSOrigins)
	cfg.MigrationsDir = getEnv("MIGRATIONS_DIR", cfg.MigrationsDir)
	cfg.WSPingInterval = time.Duration(getEnvInt("WS_PING_INTERVAL_SECONDS", int(cfg.WSPingInterval/time.Second))) * time.Second
	cfg.WSPongTimeout = time.Duration(getEnvInt("WS_PONG_TIMEOUT_SECONDS", int(cfg.WSPongTimeout/time.Second))) * time.Second
	cfg.APIKeyPurgeSpec = getEnv("API_KEY_PURGE_SCHEDULE", cfg.APIKeyPurgeSpec)
	cfg.ServerBaseURL = getEnv("SERVER_BASE_URL", cfg.ServerBaseURL)
	return cfg
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	content := os.ExpandEnv(string(data))

	var overlay fileOverlay
	if err := yaml.Unmarshal([]byte(content), &overlay); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	if overlay.Port != "" {
		cfg.Port = overlay.Port
	}
	if overlay.DBPath != "" {
		cfg.DBPath = overlay.DBPath
	}
	if overlay.JWTSecret != "" {
		cfg.JWTSecret = overlay.JWTSecret
	}
	if overlay.TokenTTLHours > 0 {
		cfg.TokenTTL = time.Duration(overlay.TokenTTLHours) * time.Hour
	}
	if len(overlay.CORSOrigins) > 0 {
		cfg.CORSOrigins = overlay.CORSOrigins
	}
	if overlay.MigrationsDir != "" {
		cfg.MigrationsDir = overlay.MigrationsDir
	}
	if overlay.WSPingSeconds > 0 {
		cfg.WSPingInterval = time.Duration(overlay.WSPingSeconds) * time.Second
	}
	if overlay.WSPongSeconds > 0 {
		cfg.WSPongTimeout = time.Duration(overlay.WSPongSeconds) * time.Second
	}
	if overlay.APIKeyPurgeSpec != "" {
		cfg.APIKeyPurgeSpec = overlay.APIKeyPurgeSpec
	}
	if overlay.ServerBaseURL != "" {
		cfg.ServerBaseURL = overlay.ServerBaseURL
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
