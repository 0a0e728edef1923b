package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(buf *bytes.Buffer) *Logger {
	return &Logger{zlog: zerolog.New(buf).With().Timestamp().Logger()}
}

func decodeLine(t *testing.T, line string) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	return entry
}

func TestNewWithWriter_Development(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("development", &buf)

	log.Debug("sanitizer started", map[string]interface{}{"source": "TaxAssessor"})

	output := buf.String()
	assert.Contains(t, output, "sanitizer started")
	assert.Contains(t, output, "TaxAssessor")
	// console writer, not JSON
	assert.False(t, strings.HasPrefix(strings.TrimSpace(output), "{"))
}

func TestNewWithWriter_ProductionIsJSONAtInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("production", &buf)

	log.Debug("hidden", nil)
	assert.Empty(t, buf.String())

	log.Info("run finished", map[string]interface{}{"added": 3})
	entry := decodeLine(t, buf.String())
	assert.Equal(t, "run finished", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.EqualValues(t, 3, entry["added"])
}

func TestNew_ReturnsUsableLogger(t *testing.T) {
	log := New("production")
	require.NotNil(t, log)
	assert.NotNil(t, log.GetZerolog())
}

func TestLevels(t *testing.T) {
	tests := []struct {
		name  string
		emit  func(l *Logger)
		level string
	}{
		{name: "debug", emit: func(l *Logger) { l.Debug("m", map[string]interface{}{"k": "v"}) }, level: "debug"},
		{name: "info", emit: func(l *Logger) { l.Info("m", map[string]interface{}{"k": "v"}) }, level: "info"},
		{name: "warn", emit: func(l *Logger) { l.Warn("m", map[string]interface{}{"k": "v"}) }, level: "warn"},
		{name: "error", emit: func(l *Logger) { l.Error("m", errors.New("boom"), map[string]interface{}{"k": "v"}) }, level: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.emit(newBufferLogger(&buf))

			entry := decodeLine(t, buf.String())
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "v", entry["k"])
			if tt.level == "error" {
				assert.Equal(t, "boom", entry["error"])
			}
		})
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	child := newBufferLogger(&buf).With(map[string]interface{}{
		"run_id": "abc",
		"source": "HUD",
	})

	child.Info("record upserted", nil)

	entry := decodeLine(t, buf.String())
	assert.Equal(t, "abc", entry["run_id"])
	assert.Equal(t, "HUD", entry["source"])
}

func TestWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	newBufferLogger(&buf).WithRequestID("req-12345").Info("request received", nil)

	entry := decodeLine(t, buf.String())
	assert.Equal(t, "req-12345", entry["request_id"])
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	newBufferLogger(&buf).WithComponent("sanitizer").Warn("invalid zip", map[string]interface{}{
		"value": "ABCDE",
	})

	entry := decodeLine(t, buf.String())
	assert.Equal(t, "sanitizer", entry["component"])
	assert.Equal(t, "ABCDE", entry["value"])
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().Info("discarded", map[string]interface{}{"k": 1})
	})
}

func TestNilFields(t *testing.T) {
	var buf bytes.Buffer
	newBufferLogger(&buf).Info("message with nil fields", nil)
	assert.Contains(t, buf.String(), "message with nil fields")
}
