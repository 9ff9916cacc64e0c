package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deadsongs/config"
)

func testConfig() *config.Config {
	return &config.Config{
		MinioEndpoint:   "127.0.0.1:9000",
		MinioAccessKey:  "access",
		MinioSecretKey:  "secret-key-123",
		MinioBucket:     "songs",
		MinioRegion:     "us-east-1",
		MinioPresignTTL: 15 * time.Minute,
	}
}

func TestIsAbsoluteURL(t *testing.T) {
	assert.True(t, IsAbsoluteURL("https://cdn.example.com/a.mp3"))
	assert.False(t, IsAbsoluteURL("audio/a.mp3"))
	assert.False(t, IsAbsoluteURL("/audio/a.mp3"))
	assert.False(t, IsAbsoluteURL(""))
}

func TestResolvePassesThroughAbsolute(t *testing.T) {
	r, err := NewResolver(testConfig())
	require.NoError(t, err)

	got, err := r.Resolve(context.Background(), "https://cdn.example.com/a.mp3")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.mp3", got)

	empty, err := r.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestResolvePublicBase(t *testing.T) {
	cfg := testConfig()
	cfg.MinioPublicURL = "https://media.example.com/"
	r, err := NewResolver(cfg)
	require.NoError(t, err)

	got, err := r.Resolve(context.Background(), "/audio/my song.mp3")
	require.NoError(t, err)
	assert.Equal(t, "https://media.example.com/songs/audio/my%20song.mp3", got)
}

func TestResolvePresigned(t *testing.T) {
	r, err := NewResolver(testConfig())
	require.NoError(t, err)

	got, err := r.Resolve(context.Background(), "audio/a.mp3")
	require.NoError(t, err)
	assert.Contains(t, got, "/songs/audio/a.mp3")
	assert.Contains(t, got, "X-Amz-Signature=")
	assert.Contains(t, got, "X-Amz-Expires=900")
}
