package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, lvl)

	lvl, err = ParseLevel(" WARN ")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	_, err = ParseLevel("chatty")
	assert.Error(t, err)
}

func TestQuietFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.log")
	logger, err := New(Options{Level: "info", JSON: true, File: path, Quiet: true})
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("routed", zap.String("device", "A1"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.True(t, strings.Contains(out, `"device":"A1"`), out)
	assert.False(t, strings.Contains(out, "hidden"))
}

func TestQuietWithoutFileIsNop(t *testing.T) {
	logger, err := New(Options{Quiet: true})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.ErrorLevel))
}
