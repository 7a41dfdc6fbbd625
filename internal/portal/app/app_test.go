package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/portal/internal/portal/activity"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DatabaseFile = filepath.Join(dir, "portal.db")
	cfg.PepperFile = filepath.Join(dir, "pepper")
	cfg.LogFormat = "text"
	cfg.LogLevel = "error"
	cfg.Addr = "127.0.0.1:0"
	return cfg
}

func TestNewWiresApplication(t *testing.T) {
	app, err := New(testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, app.Shutdown()) })

	_, inMemory := app.tracker.(*activity.MemoryTracker)
	assert.True(t, inMemory)

	for _, path := range []string{"/livez", "/readyz", "/metrics"} {
		w := httptest.NewRecorder()
		app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestNewUsesRedisTracker(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RedisAddr = mr.Addr()

	app, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, app.Shutdown()) })

	_, onRedis := app.tracker.(*activity.RedisTracker)
	assert.True(t, onRedis)
}

func TestNewFailsOnUnreachableRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisAddr = "127.0.0.1:1"

	_, err := New(cfg)
	require.ErrorContains(t, err, "redis")
}
