package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWithJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWith(Config{Level: "debug", Format: "json"}, zapcore.AddSync(&buf))

	logger.Named("ingest").Info("server listening", zap.String("addr", ":8787"))
	Sync(logger)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "vigil.ingest", entry["logger"])
	assert.Equal(t, "server listening", entry["msg"])
	assert.Equal(t, ":8787", entry["addr"])
}

func TestNewBadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWith(Config{Level: "chatty"}, zapcore.AddSync(&buf))

	logger.Debug("hidden")
	logger.Info("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
}

func TestNewConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWith(Config{}, zapcore.AddSync(&buf))

	logger.Warn("lock contention on retention sweep")

	out := buf.String()
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "vigil")
	assert.Contains(t, out, "lock contention on retention sweep")
}

func TestFileSinkTees(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "vigil.log")
	logger := NewWith(Config{File: path}, zapcore.AddSync(&buf))

	logger.Info("squad dispatched")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// The file side is always JSON regardless of console format.
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "vigil", entry["logger"])
	assert.Equal(t, "squad dispatched", entry["msg"])

	assert.Contains(t, buf.String(), "squad dispatched")
}

func TestSyncNilLogger(t *testing.T) {
	assert.NotPanics(t, func() { Sync(nil) })
}
