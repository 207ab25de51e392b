// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries the engine's environment-driven settings.
type Config struct {
	// ServerWSURL is the websocket endpoint for game traffic.
	ServerWSURL string
	// ServerAPIURL is the REST base URL for room lifecycle calls.
	ServerAPIURL string

	// OfflineDBPath is the sqlite file backing the offline queue. Empty
	// selects the in-memory store.
	OfflineDBPath string

	// RedisAddr, when set, backs the offline queue with redis instead of
	// sqlite (shared/dev harness setups).
	RedisAddr string
	RedisDB   int

	// PendingActionMaxAge bounds how long a ledger entry may sit unconfirmed
	// before it is reported as overdue.
	PendingActionMaxAge time.Duration
}

// FromEnv reads configuration with sane defaults.
func FromEnv() Config {
	return Config{
		ServerWSURL:         getEnv("GAME_WS_URL", "ws://localhost:8080/game/ws"),
		ServerAPIURL:        getEnv("GAME_API_URL", "http://localhost:8080"),
		OfflineDBPath:       getEnv("OFFLINE_DB_PATH", "data/offline.db"),
		RedisAddr:           getEnv("REDIS_ADDR", ""),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		PendingActionMaxAge: time.Duration(getEnvInt("PENDING_ACTION_MAX_AGE_SEC", 30)) * time.Second,
	}
}

// getEnv reads an environment variable or returns a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt parses an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
