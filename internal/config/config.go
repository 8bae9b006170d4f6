// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBPath         string
	ListenAddr     string
	IdleInterval   time.Duration
	BackoffFloor   time.Duration
	BackoffCeiling time.Duration
	RequestTimeout time.Duration
	CredentialTTL  time.Duration
	UnblockEnabled bool
	TwitterAPIURL  string

	// SecretKey is the AES-256 key for credential values. Nil when
	// BLOCKSYNC_SECRET_KEY is unset; credential operations then fail.
	SecretKey []byte
}

// HasSecretKey reports whether credential encryption is configured.
func (c *Config) HasSecretKey() bool {
	return len(c.SecretKey) == 32
}

// Load reads configuration from environment variables and returns a validated Config.
// Variables are first pre-loaded from BLOCKSYNC_ENV_FILE (.env) when that file
// exists; values already present in the environment win. All variables are
// optional. Defaults: BLOCKSYNC_DB_PATH (blocksync.db), BLOCKSYNC_LISTEN_ADDR
// (127.0.0.1:8787), BLOCKSYNC_IDLE_INTERVAL (60s), BLOCKSYNC_BACKOFF_FLOOR (1s),
// BLOCKSYNC_BACKOFF_CEILING (300s), BLOCKSYNC_REQUEST_TIMEOUT (30s),
// BLOCKSYNC_CREDENTIAL_TTL (24h), BLOCKSYNC_ENABLE_UNBLOCK (false),
// BLOCKSYNC_TWITTER_API_URL (https://api.x.com).
func Load() (*Config, error) {
	envFile := ".env"
	if v, ok := os.LookupEnv("BLOCKSYNC_ENV_FILE"); ok && v != "" {
		envFile = v
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file %q: %w", envFile, err)
	}

	cfg := &Config{
		DBPath:        "blocksync.db",
		ListenAddr:    "127.0.0.1:8787",
		TwitterAPIURL: "https://api.x.com",
	}

	if v, ok := os.LookupEnv("BLOCKSYNC_DB_PATH"); ok && v != "" {
		cfg.DBPath = v
	}
	if v, ok := os.LookupEnv("BLOCKSYNC_LISTEN_ADDR"); ok && v != "" {
		cfg.ListenAddr = v
	}

	var err error
	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"BLOCKSYNC_IDLE_INTERVAL", 60 * time.Second, &cfg.IdleInterval},
		{"BLOCKSYNC_BACKOFF_FLOOR", time.Second, &cfg.BackoffFloor},
		{"BLOCKSYNC_BACKOFF_CEILING", 300 * time.Second, &cfg.BackoffCeiling},
		{"BLOCKSYNC_REQUEST_TIMEOUT", 30 * time.Second, &cfg.RequestTimeout},
		{"BLOCKSYNC_CREDENTIAL_TTL", 24 * time.Hour, &cfg.CredentialTTL},
	}
	for _, d := range durations {
		if *d.dest, err = duration(d.key, d.def); err != nil {
			return nil, err
		}
	}
	if cfg.BackoffCeiling < cfg.BackoffFloor {
		return nil, fmt.Errorf("BLOCKSYNC_BACKOFF_CEILING (%s) must not be below BLOCKSYNC_BACKOFF_FLOOR (%s)",
			cfg.BackoffCeiling, cfg.BackoffFloor)
	}

	if v, ok := os.LookupEnv("BLOCKSYNC_ENABLE_UNBLOCK"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("BLOCKSYNC_ENABLE_UNBLOCK has invalid boolean %q: %w", v, err)
		}
		cfg.UnblockEnabled = enabled
	}

	if v, ok := os.LookupEnv("BLOCKSYNC_TWITTER_API_URL"); ok && v != "" {
		u, err := url.Parse(v)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("BLOCKSYNC_TWITTER_API_URL must be an absolute URL, got %q", v)
		}
		cfg.TwitterAPIURL = v
	}

	if v, ok := os.LookupEnv("BLOCKSYNC_SECRET_KEY"); ok && v != "" {
		key, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("BLOCKSYNC_SECRET_KEY must be hex-encoded: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("BLOCKSYNC_SECRET_KEY must decode to 32 bytes, got %d", len(key))
		}
		cfg.SecretKey = key
	}

	return cfg, nil
}

// duration reads a positive duration from key, returning def when unset.
func duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", key, v)
	}
	return d, nil
}
