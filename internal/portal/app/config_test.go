package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PORTAL_CONFIG_FILE", "")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 168*time.Hour, cfg.RefreshTTL)
	assert.True(t, cfg.RefreshRotation)
	assert.Equal(t, 2*time.Hour, cfg.InviteTTL)
	assert.Equal(t, 15*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, ":8080", cfg.Addr)
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
issuer: portal-file
public_base_url: https://file.example
access_token_ttl: 5m
refresh_rotation: false
session_idle_timeout: 20m
addr: ":9000"
`), 0o600))

	t.Setenv("PUBLIC_BASE_URL", "https://env.example")
	t.Setenv("REFRESH_TOKEN_TTL", "24h")
	t.Setenv("INVITE_CODE_TTL", "90")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "portal-file", cfg.Issuer)
	assert.Equal(t, "https://env.example", cfg.PublicBaseURL, "env overrides the file")
	assert.Equal(t, 5*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, 90*time.Minute, cfg.InviteTTL, "bare integers are minutes")
	assert.False(t, cfg.RefreshRotation)
	assert.Equal(t, 20*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, ":9000", cfg.Addr)
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("redis_addr: localhost:6379\n"), 0o600))
	t.Setenv("PORTAL_CONFIG_FILE", path)
	t.Setenv("PORT", "7070")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, ":7070", cfg.Addr)
}

func TestLoadConfigRejectsBadSettings(t *testing.T) {
	t.Setenv("PORTAL_CONFIG_FILE", "")

	t.Run("postgres without url", func(t *testing.T) {
		t.Setenv("DATABASE_DRIVER", "postgres")
		_, err := LoadConfig("")
		require.ErrorContains(t, err, "database_url")
	})

	t.Run("unknown key mode", func(t *testing.T) {
		t.Setenv("PORTAL_KEY_STORAGE_MODE", "hsm")
		_, err := LoadConfig("")
		require.ErrorContains(t, err, "key storage mode")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.ErrorContains(t, err, "read config file")
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("access_token_ttl: [nope"), 0o600))
		_, err := LoadConfig(path)
		require.ErrorContains(t, err, "parse config file")
	})
}

func TestInitKeysFileModeSurvivesRestart(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KeyStorageMode = "file"
	cfg.KeyDir = filepath.Join(t.TempDir(), "keys")
	logger := discardLogger()

	first, err := InitKeys(cfg, logger)
	require.NoError(t, err)
	second, err := InitKeys(cfg, logger)
	require.NoError(t, err)

	assert.Equal(t, first.Signer().KID(), second.Signer().KID())
}
