package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/crackops/taskforge/pkg/debug"
)

// Config holds all runtime settings for the scheduling core.
// Values come from the environment (optionally seeded from a .env file);
// every field has a working default so tests can construct one directly.
type Config struct {
	// DatabaseURL is the Postgres connection string.
	DatabaseURL string

	// CapabilityCacheTTL bounds how long an agent's benchmark-derived
	// capability set may be served from cache.
	CapabilityCacheTTL time.Duration

	// ProgressPollInterval is how often the progress service recalculates
	// attack/campaign progress for active campaigns.
	ProgressPollInterval time.Duration

	// AgentOfflineThreshold is how long an agent may go without a heartbeat
	// before its outstanding tasks are abandoned.
	AgentOfflineThreshold time.Duration

	// AgentSweepSchedule is the cron spec for the offline sweep.
	AgentSweepSchedule string
}

// Load builds a Config from the environment. A missing .env file is not an
// error; explicit environment variables always win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		debug.Debug("No .env file loaded: %v", err)
	}

	cfg := &Config{
		DatabaseURL:           getEnv("DATABASE_URL", "postgres://localhost:5432/taskforge?sslmode=disable"),
		CapabilityCacheTTL:    getDuration("CAPABILITY_CACHE_TTL_SECONDS", 60*time.Second),
		ProgressPollInterval:  getDuration("PROGRESS_POLL_INTERVAL_SECONDS", 2*time.Second),
		AgentOfflineThreshold: getDuration("AGENT_OFFLINE_THRESHOLD_SECONDS", 10*time.Minute),
		AgentSweepSchedule:    getEnv("AGENT_SWEEP_SCHEDULE", "@every 1m"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must not be empty")
	}

	debug.Info("Configuration loaded - progress poll: %s, capability TTL: %s, offline threshold: %s",
		cfg.ProgressPollInterval, cfg.CapabilityCacheTTL, cfg.AgentOfflineThreshold)

	return cfg, nil
}

// Default returns the built-in settings without touching the environment.
func Default() *Config {
	return &Config{
		DatabaseURL:           "postgres://localhost:5432/taskforge?sslmode=disable",
		CapabilityCacheTTL:    60 * time.Second,
		ProgressPollInterval:  2 * time.Second,
		AgentOfflineThreshold: 10 * time.Minute,
		AgentSweepSchedule:    "@every 1m",
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		debug.Warning("Invalid value for %s: %q, using default %s", key, value, fallback)
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
