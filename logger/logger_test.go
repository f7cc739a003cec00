package logger

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
)

func TestLogger_JSONWithService(t *testing.T) {
	buffer := &bytes.Buffer{}
	log := newLogger("shm-reader", "info", "", buffer)

	log.Info("fresh trade", zap.String("symbol", "BTCUSDT"), zap.Float64("latency_ms", 4.5))
	require.NoError(t, log.Sync())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buffer.Bytes(), &entry), "log output must be valid JSON")

	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "fresh trade", entry["msg"])
	assert.Equal(t, "shm-reader", entry["service"])
	assert.Equal(t, "BTCUSDT", entry["symbol"])
	assert.Equal(t, 4.5, entry["latency_ms"])
}

func TestLogger_LevelFilter(t *testing.T) {
	buffer := &bytes.Buffer{}
	log := newLogger("shm-reader", "warn", "", buffer)

	log.Info("dropped")
	log.Warn("kept")

	out := buffer.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
}

func TestLogger_UnknownLevelMeansInfo(t *testing.T) {
	buffer := &bytes.Buffer{}
	log := newLogger("shm-reader", "chatty", "", buffer)

	log.Debug("dropped")
	log.Info("kept")

	assert.Equal(t, 1, strings.Count(buffer.String(), "\n"))
}

func TestLogger_AlsoWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "reader.log")
	log := newLogger("shm-reader", "info", path, &bytes.Buffer{})

	log.Info("to file")
	require.NoError(t, log.Sync())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "to file")
}
