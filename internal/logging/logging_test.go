package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scout.log")

	logger := New(Options{File: path, Level: "debug"})
	logger.Info("search finished", zap.String("mode", "tech"), zap.Int("records", 3))
	logger.Debug("progress", zap.Int("pct", 42))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "INFO", entry["level"])
	require.Equal(t, "search finished", entry["message"])
	require.Equal(t, "tech", entry["mode"])
	require.Contains(t, entry, "timestamp")
}

func TestNew_LevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scout.log")

	logger := New(Options{File: path, Level: "warn"})
	logger.Info("dropped")
	logger.Warn("kept")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "dropped")
	require.Contains(t, string(data), "kept")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	require.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	require.Equal(t, zapcore.InfoLevel, parseLevel("shouting"))
	require.Equal(t, zapcore.InfoLevel, parseLevel(""))
}
