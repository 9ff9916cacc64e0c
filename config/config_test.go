package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 3, cfg.RemoteMaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.RemoteTimeout)
	assert.Equal(t, "songs", cfg.MinioBucket)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REMOTE_TIMEOUT", "750ms")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("SEARCH_RATE_LIMIT", "2.5")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := FromEnv()

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 750*time.Millisecond, cfg.RemoteTimeout)
	assert.True(t, cfg.MinioUseSSL)
	assert.InDelta(t, 2.5, cfg.SearchRateLimit, 1e-9)
	assert.Equal(t, 0, cfg.RedisDB, "invalid ints fall back to the default")
}

func TestWatchReportsRewrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("LOG_LEVEL=info\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan map[string]string, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(values map[string]string) { changes <- values })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("LOG_LEVEL=debug\n"), 0o644))

	select {
	case values := <-changes:
		assert.Equal(t, "debug", values["LOG_LEVEL"])
	case <-time.After(3 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestWatchWithoutFile(t *testing.T) {
	err := Watch(context.Background(), "", func(map[string]string) {})
	assert.Error(t, err)
}
