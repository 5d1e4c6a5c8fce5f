package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewRollingFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "gin.log")
	l, err := NewRollingFileLogger(path, "warn", 0, 0, 0, false)
	require.NoError(t, err)
	l.Info("dropped")
	l.Warn("kept")
	_ = l.Sync()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"kept"`)
	assert.NotContains(t, string(b), "dropped")

	_, err = NewRollingFileLogger("", "info", 0, 0, 0, false)
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	lvl, silent := parseLevel("DEBUG")
	assert.False(t, silent)
	assert.Equal(t, zapcore.DebugLevel, lvl.Level())

	lvl, _ = parseLevel("nonsense")
	assert.Equal(t, zapcore.InfoLevel, lvl.Level())

	_, silent = parseLevel("silent")
	assert.True(t, silent)
}
