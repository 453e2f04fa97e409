package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/whuanle/easytouch/internal/config"
)

func TestNewWithWriterEmitsJSONAtConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("warn", zapcore.AddSync(&buf))

	logger.Info("dropped")
	logger.Warn("kept", zap.String("command", "ping"))
	require.NoError(t, logger.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "ping", entry["command"])
	assert.Equal(t, "easytouch", entry["logger"])
}

func TestNewWithWriterDefaultsToInfoForUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("", zapcore.AddSync(&buf))

	logger.Debug("hidden")
	logger.Info("shown")
	require.NoError(t, logger.Sync())

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewWritesToConfiguredFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "daemon.log")

	logger, closer, err := New(config.LogConfig{File: file})
	require.NoError(t, err)
	logger.Info("daemon listening")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "daemon listening")
}
