package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLevel(" error "))
	assert.Equal(t, LogLevelInfo, ParseLevel("nonsense"))
}

func TestNewLogger_JSONWithComponentAndErrKey(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: &buf, Component: "engine"})

	logger.Debug("hidden")
	logger.Error("engine.run.failed", "error", errors.New("boom"), "run_id", "r1")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "engine.run.failed", entry["msg"])
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "boom", entry["err"])
	assert.Equal(t, "r1", entry["run_id"])
}

func TestWith_AttachesAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := With(NewLogger(&LoggerConfig{Format: "text", Output: &buf}), "conversation_id", "c1")
	logger.Info("hello")
	assert.Contains(t, buf.String(), "conversation_id=c1")

	assert.Equal(t, NoOpLogger{}, With(NoOpLogger{}, "k", "v"))
}
