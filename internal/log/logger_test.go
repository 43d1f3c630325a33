package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedLogger(level Level, jsonOutput bool) (*DefaultLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New(LoggerConfig{Level: level, JSONOutput: jsonOutput, Output: &buf})
	l.now = func() time.Time { return time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC) }
	return l, &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"", InfoLevel, false},
		{" INFO ", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"verbose", InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestTextOutput(t *testing.T) {
	l, buf := fixedLogger(InfoLevel, false)

	l.Debug("hidden")
	l.Info("split", "function", "f", "parts", 2)
	l.Error("odd", "lonely")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "[2024-03-01 12:30:00] INFO: split function=f parts=2", lines[0])
	assert.Equal(t, "[2024-03-01 12:30:00] ERROR: odd arg=lonely", lines[1])
}

func TestJSONOutput(t *testing.T) {
	l, buf := fixedLogger(DebugLevel, true)
	l.Warn("slow", "file", "a.php", "ms", 12)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "slow", entry["message"])
	assert.Equal(t, "a.php", entry["file"])
	assert.Equal(t, float64(12), entry["ms"])
	assert.Equal(t, "2024-03-01 12:30:00", entry["timestamp"])
}

func TestSetLevel(t *testing.T) {
	l, buf := fixedLogger(ErrorLevel, false)
	l.Warn("dropped")
	assert.Zero(t, buf.Len())

	l.SetLevel(WarnLevel)
	l.SetJSONOutput(true)
	l.Warn("kept")
	assert.Contains(t, buf.String(), `"message":"kept"`)
}

func TestDefaultAndNop(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	l, _ := fixedLogger(DebugLevel, false)
	SetDefault(l)
	assert.Same(t, l, Default())

	var logger Logger = Nop{}
	logger.Error("ignored", "k", "v")
	assert.Equal(t, "UNKNOWN", Level(9).String())
}
