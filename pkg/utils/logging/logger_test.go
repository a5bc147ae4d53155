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
)

func TestInitLogger_Server(t *testing.T) {
	var buf bytes.Buffer
	logger, err := InitLogger("test", Options{Server: true, Out: &buf})
	require.NoError(t, err)

	logger.Info("Server started", zap.String("addr", ":8080"))
	logger.Debug("hidden")
	require.NoError(t, logger.Sync())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "Server started", entry["msg"])
	assert.Equal(t, ":8080", entry["addr"])
	assert.Equal(t, "test", entry["env"])
	assert.Contains(t, entry, "timestamp")
}

func TestInitLogger_CLIWritesFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	logger, err := InitLogger("dev", Options{Dir: dir, Out: &buf})
	require.NoError(t, err)

	logger.Debug("Only in file")
	logger.Info("Everywhere")
	_ = logger.Sync()

	assert.Contains(t, buf.String(), "Everywhere")
	assert.NotContains(t, buf.String(), "Only in file")

	files, err := filepath.Glob(filepath.Join(dir, "dev_*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "Only in file")
	assert.Contains(t, string(data), "Everywhere")
}
