// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	SecretKey   []byte
	AdminToken  string
	CronSecret  string
	ListenAddr  string
	DBPath      string
	StaleJobAge time.Duration
}

// Load reads configuration from environment variables and returns a validated
// Config. Required: LIFESYNC_SECRET_KEY (64 hex chars, the AES-256 vault key),
// LIFESYNC_ADMIN_TOKEN, LIFESYNC_CRON_SECRET. Optional with defaults:
// LIFESYNC_LISTEN_ADDR (127.0.0.1:8080), LIFESYNC_DB_PATH (lifesync.db),
// LIFESYNC_STALE_JOB_AGE (30m).
func Load() (*Config, error) {
	keyHex := os.Getenv("LIFESYNC_SECRET_KEY")
	if keyHex == "" {
		return nil, fmt.Errorf("LIFESYNC_SECRET_KEY is required")
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("LIFESYNC_SECRET_KEY is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("LIFESYNC_SECRET_KEY must decode to 32 bytes, got %d", len(key))
	}

	adminToken := os.Getenv("LIFESYNC_ADMIN_TOKEN")
	if adminToken == "" {
		return nil, fmt.Errorf("LIFESYNC_ADMIN_TOKEN is required")
	}

	cronSecret := os.Getenv("LIFESYNC_CRON_SECRET")
	if cronSecret == "" {
		return nil, fmt.Errorf("LIFESYNC_CRON_SECRET is required")
	}
	if cronSecret == adminToken {
		// The cron invoker is the least trusted caller; it must not be able
		// to reach the credential endpoints.
		return nil, fmt.Errorf("LIFESYNC_CRON_SECRET must differ from LIFESYNC_ADMIN_TOKEN")
	}

	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("LIFESYNC_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	dbPath := "lifesync.db"
	if v, ok := os.LookupEnv("LIFESYNC_DB_PATH"); ok {
		dbPath = v
	}

	staleJobAge := 30 * time.Minute
	if v, ok := os.LookupEnv("LIFESYNC_STALE_JOB_AGE"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("LIFESYNC_STALE_JOB_AGE has invalid duration %q: %w", v, err)
		}
		staleJobAge = parsed
	}

	return &Config{
		SecretKey:   key,
		AdminToken:  adminToken,
		CronSecret:  cronSecret,
		ListenAddr:  listenAddr,
		DBPath:      dbPath,
		StaleJobAge: staleJobAge,
	}, nil
}
