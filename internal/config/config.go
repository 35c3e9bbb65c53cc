// Package config loads the evaluation core's runtime configuration from the
// environment, optionally seeded from a .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-driven knob the core needs to start: store
// and broker connection strings, the broker's two named surfaces, and the
// reconnect backoff cap (spec §6).
type Config struct {
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RunnerRequestQueue  string
	RunnerResultChannel string

	BrokerReconnectCap time.Duration
}

// Load reads configuration from the environment, after loading any .env
// file found at path (missing file is not an error — mirrors godotenv's own
// "best effort" local-dev convenience).
func Load(path string) (*Config, error) {
	_ = godotenv.Load(path)

	cfg := &Config{
		DatabaseURL:         getEnv("UNICON_DATABASE_URL", "file:unicon.db?cache=shared&mode=rwc"),
		RedisAddr:           getEnv("UNICON_REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getEnv("UNICON_REDIS_PASSWORD", ""),
		RunnerRequestQueue:  getEnv("UNICON_RUNNER_REQUEST_QUEUE", "task_runner_requests"),
		RunnerResultChannel: getEnv("UNICON_RUNNER_RESULT_CHANNEL", "task_runner_results"),
		BrokerReconnectCap:  30 * time.Second,
	}

	db, err := getEnvInt("UNICON_REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	cfg.RedisDB = db

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid integer for %s: %w", key, err)
	}
	return n, nil
}
