package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForServiceAddsServiceAttribute(t *testing.T) {
	Init()
	logger := ForService("test-service")
	require.NotNil(t, logger)
}

func TestNewFileLoggerWritesJSON(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "service.log")

	logger, closeFn, err := NewFileLogger(logPath, "ingest", LevelTrace, FileLoggerOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })

	logger.Info("detection stored", "species", "Turdus merula", "confidence", 0.91)
	logger.Log(t.Context(), LevelTrace, "window taken")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)

	var first map[string]any
	lines := splitLines(data)
	require.GreaterOrEqual(t, len(lines), 2)
	require.NoError(t, json.Unmarshal(lines[0], &first))

	assert.Equal(t, "ingest", first["service"])
	assert.Equal(t, "detection stored", first["msg"])
	assert.Equal(t, "Turdus merula", first["species"])

	var second map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, "TRACE", second["level"])
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
