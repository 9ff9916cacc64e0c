package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestHelpersBeforeInit(t *testing.T) {
	UseLogger(zap.NewNop())
	assert.NotPanics(t, func() {
		Info("nothing configured", String("k", "v"))
		Error("still nothing", ErrorField(assert.AnError))
	})
}

func TestSetLevel(t *testing.T) {
	require.NoError(t, SetLevel(WarnLevel))
	assert.Equal(t, WarnLevel, Level())

	require.NoError(t, SetLevel("DEBUG"))
	assert.Equal(t, DebugLevel, Level())

	assert.Error(t, SetLevel("loud"))
	assert.Equal(t, DebugLevel, Level(), "a bad level leaves the threshold alone")
}

func TestInitLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	require.NoError(t, InitLogger(Config{Level: InfoLevel, OutputPath: path, MaxSize: 1}))
	t.Cleanup(func() { UseLogger(zap.NewNop()) })

	Info("written", Int64("song_id", 7))
	Sync()
	assert.FileExists(t, path)
}

func TestInitLoggerRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, InitLogger(Config{Level: "verbose"}))
}

func TestFieldsReachTheCore(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	UseLogger(zap.New(core))
	t.Cleanup(func() { UseLogger(zap.NewNop()) })

	Warn("counter retry", Int64("song_id", 3), Int("attempt", 2))

	entries := logs.FilterMessage("counter retry").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(3), entries[0].ContextMap()["song_id"])
}
