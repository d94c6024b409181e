package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// AppConfig is resolved once at startup and passed down explicitly.
type AppConfig struct {
	StoreBackend  string
	RedisURL      string
	DatabaseURL   string
	SQLitePath    string
	SessionTTLSec int

	DefaultGameType    string
	DefaultVictoryRule uint

	MessagesDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		SessionTTLSec:      30 * 24 * 3600,
		DefaultGameType:    "doubles",
		DefaultVictoryRule: 11,
		SQLitePath:         defaultSQLitePath(),
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	if v := strings.TrimSpace(os.Getenv("SQLITE_PATH")); v != "" {
		cfg.SQLitePath = v
	}
	if v := strings.TrimSpace(os.Getenv("SESSION_TTL")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionTTLSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DEFAULT_GAME_TYPE")); v != "" {
		cfg.DefaultGameType = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("DEFAULT_VICTORY_RULE")); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil && n > 0 {
			cfg.DefaultVictoryRule = uint(n)
		}
	}

	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(os.Getenv("STORE_BACKEND")))
	if cfg.StoreBackend == "" {
		// redis wins when configured; otherwise sessions live in a local file
		if cfg.RedisURL != "" {
			cfg.StoreBackend = BackendRedis
		} else {
			cfg.StoreBackend = BackendSQLite
		}
	}

	switch cfg.StoreBackend {
	case BackendMemory, BackendSQLite:
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required for the redis store backend")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	return cfg, nil
}

func defaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "rallyscore.db"
	}
	return filepath.Join(home, ".local", "state", "rallyscore", "sessions.db")
}
