package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/restream/pkg/models"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "JSON format to stdout",
			config: Config{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
		},
		{
			name: "Console format to stderr",
			config: Config{
				Level:  "debug",
				Format: "console",
				Output: "stderr",
			},
		},
		{
			name: "Invalid log level defaults to info",
			config: Config{
				Level:  "invalid",
				Format: "json",
				Output: "stdout",
			},
		},
		{
			name: "File output",
			config: Config{
				Level:  "info",
				Format: "json",
				Output: filepath.Join(t.TempDir(), "restream.log"),
			},
		},
		{
			name: "Unwritable file",
			config: Config{
				Output: filepath.Join(t.TempDir(), "missing", "dir", "restream.log"),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: "warn", Format: "json"})

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.ErrorWithErr("error message", errors.New("boom"))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "warn", entries[0]["level"])
	assert.Equal(t, "error", entries[1]["level"])
	assert.Equal(t, "boom", entries[1]["error"])
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: "debug", Format: "json"})

	logger.
		WithBroadcastID("b-1").
		WithRequestID("r-1").
		WithComponent("api").
		WithFields(map[string]interface{}{"attempt": 2}).
		Info("hello")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "b-1", entries[0]["broadcast_id"])
	assert.Equal(t, "r-1", entries[0]["request_id"])
	assert.Equal(t, "api", entries[0]["component"])
	assert.Equal(t, float64(2), entries[0]["attempt"])
}

func TestLogBroadcastEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: "info", Format: "json"})

	logger.LogBroadcastEvent(models.BroadcastStatus{
		ID:          "b-1",
		State:       models.BroadcastStateRunning,
		PID:         4242,
		Destination: "rtmp://a.rtmp.youtube.com/live2/abcd...efgh",
	})
	logger.LogBroadcastEvent(models.BroadcastStatus{
		ID:    "b-1",
		State: models.BroadcastStateTerminated,
		Exit:  &models.ExitInfo{Reason: models.ExitReasonCrashed, ExitCode: 1},
	})

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "running", entries[0]["state"])
	assert.Equal(t, float64(4242), entries[0]["pid"])
	assert.Equal(t, "warn", entries[1]["level"], "crashes are logged as warnings")
	assert.Equal(t, "crashed", entries[1]["reason"])
}

func TestLogHTTPRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: "info", Format: "json"})

	logger.LogHTTPRequest("GET", "/api/v1/broadcast", "127.0.0.1", 200, 100*time.Millisecond)

	logger.LogHTTPRequest("POST", "/api/v1/broadcast", "127.0.0.1", 409, time.Millisecond)
	logger.LogHTTPRequest("POST", "/api/v1/broadcast", "127.0.0.1", 502, time.Millisecond)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 3)
	assert.Equal(t, "GET", entries[0]["method"])
	assert.Equal(t, float64(200), entries[0]["status_code"])
	assert.Equal(t, "info", entries[0]["level"])
	assert.Equal(t, "warn", entries[1]["level"])
	assert.Equal(t, "error", entries[2]["level"])
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: "info", Format: "console"})

	logger.Infof("started %d", 1)

	assert.Contains(t, buf.String(), "started 1")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestZerolog(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: "info", Format: "json"})

	logger.Zerolog().Info().Str("k", "v").Msg("direct")
	assert.Contains(t, buf.String(), `"k":"v"`)
}
