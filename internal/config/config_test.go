package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allConfigKeys lists every BLOCKSYNC_ env var that Load() reads.
var allConfigKeys = []string{
	"BLOCKSYNC_ENV_FILE",
	"BLOCKSYNC_DB_PATH",
	"BLOCKSYNC_LISTEN_ADDR",
	"BLOCKSYNC_IDLE_INTERVAL",
	"BLOCKSYNC_BACKOFF_FLOOR",
	"BLOCKSYNC_BACKOFF_CEILING",
	"BLOCKSYNC_REQUEST_TIMEOUT",
	"BLOCKSYNC_CREDENTIAL_TTL",
	"BLOCKSYNC_ENABLE_UNBLOCK",
	"BLOCKSYNC_TWITTER_API_URL",
	"BLOCKSYNC_SECRET_KEY",
}

// isolateConfigEnv saves and unsets all BLOCKSYNC_ env vars so tests don't
// inherit values from the host environment, and points BLOCKSYNC_ENV_FILE at a
// file that does not exist. t.Cleanup restores original values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
	os.Setenv("BLOCKSYNC_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "blocksync.db", cfg.DBPath)
	assert.Equal(t, "127.0.0.1:8787", cfg.ListenAddr)
	assert.Equal(t, 60*time.Second, cfg.IdleInterval)
	assert.Equal(t, time.Second, cfg.BackoffFloor)
	assert.Equal(t, 300*time.Second, cfg.BackoffCeiling)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 24*time.Hour, cfg.CredentialTTL)
	assert.False(t, cfg.UnblockEnabled)
	assert.Equal(t, "https://api.x.com", cfg.TwitterAPIURL)
	assert.Nil(t, cfg.SecretKey)
	assert.False(t, cfg.HasSecretKey())
}

func TestLoad_Success(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("BLOCKSYNC_DB_PATH", "/tmp/test.db")
	t.Setenv("BLOCKSYNC_LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("BLOCKSYNC_IDLE_INTERVAL", "2m")
	t.Setenv("BLOCKSYNC_BACKOFF_FLOOR", "500ms")
	t.Setenv("BLOCKSYNC_BACKOFF_CEILING", "10m")
	t.Setenv("BLOCKSYNC_REQUEST_TIMEOUT", "5s")
	t.Setenv("BLOCKSYNC_CREDENTIAL_TTL", "1h")
	t.Setenv("BLOCKSYNC_ENABLE_UNBLOCK", "true")
	t.Setenv("BLOCKSYNC_TWITTER_API_URL", "http://127.0.0.1:9999")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, 2*time.Minute, cfg.IdleInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.BackoffFloor)
	assert.Equal(t, 10*time.Minute, cfg.BackoffCeiling)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, time.Hour, cfg.CredentialTTL)
	assert.True(t, cfg.UnblockEnabled)
	assert.Equal(t, "http://127.0.0.1:9999", cfg.TwitterAPIURL)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"BLOCKSYNC_IDLE_INTERVAL", "not-a-duration"},
		{"BLOCKSYNC_BACKOFF_FLOOR", "-1s"},
		{"BLOCKSYNC_REQUEST_TIMEOUT", "0s"},
		{"BLOCKSYNC_CREDENTIAL_TTL", "forever"},
		{"BLOCKSYNC_ENABLE_UNBLOCK", "maybe"},
		{"BLOCKSYNC_TWITTER_API_URL", "api.x.com"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			isolateConfigEnv(t)
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_CeilingBelowFloor(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("BLOCKSYNC_BACKOFF_FLOOR", "10s")
	t.Setenv("BLOCKSYNC_BACKOFF_CEILING", "5s")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BLOCKSYNC_BACKOFF_CEILING")
}

func TestLoad_SecretKey_Valid(t *testing.T) {
	isolateConfigEnv(t)
	// 64 hex chars = 32 bytes
	t.Setenv("BLOCKSYNC_SECRET_KEY", "0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Len(t, cfg.SecretKey, 32)
	assert.True(t, cfg.HasSecretKey())
}

func TestLoad_SecretKey_TooShort(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("BLOCKSYNC_SECRET_KEY", "deadbeef")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BLOCKSYNC_SECRET_KEY")
}

func TestLoad_SecretKey_NotHex(t *testing.T) {
	isolateConfigEnv(t)
	// 64 chars but not valid hex
	t.Setenv("BLOCKSYNC_SECRET_KEY", "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BLOCKSYNC_SECRET_KEY")
}

func TestLoad_EnvFile(t *testing.T) {
	isolateConfigEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("BLOCKSYNC_DB_PATH=/data/from-file.db\nBLOCKSYNC_ENABLE_UNBLOCK=1\nBLOCKSYNC_LISTEN_ADDR=127.0.0.1:1111\n"), 0o600))
	t.Setenv("BLOCKSYNC_ENV_FILE", path)
	t.Setenv("BLOCKSYNC_LISTEN_ADDR", "127.0.0.1:2222")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "/data/from-file.db", cfg.DBPath)
	assert.True(t, cfg.UnblockEnabled)
	assert.Equal(t, "127.0.0.1:2222", cfg.ListenAddr, "process environment wins over the env file")
}
