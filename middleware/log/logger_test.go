package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Gopher0727/ProjectChat/config"
)

// bufferLogger writes JSON lines into buf so tests can inspect fields.
func bufferLogger(buf *bytes.Buffer, level zapcore.Level) *Logger {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		MessageKey:  "message",
		LevelKey:    "level",
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	})
	core := zapcore.NewCore(enc, zapcore.AddSync(buf), level)
	return &Logger{Logger: zap.New(core)}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(line, &m))
		out = append(out, m)
	}
	return out
}

func TestNewLogger(t *testing.T) {
	t.Run("json to stdout", func(t *testing.T) {
		l, err := NewLogger(&config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"})
		require.NoError(t, err)
		l.Info("hello")
		assert.NoError(t, l.Close())
	})

	t.Run("text format", func(t *testing.T) {
		l, err := NewLogger(&config.LoggingConfig{Level: "debug", Format: "text", Output: "stdout"})
		require.NoError(t, err)
		l.Debug("debug line")
	})

	t.Run("file output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "chat.log")
		l, err := NewLogger(&config.LoggingConfig{Level: "info", Format: "json", Output: "file", FilePath: path})
		require.NoError(t, err)

		l.Info("written to file", zap.Int64("channel_id", 42))
		require.NoError(t, l.Close())

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), "written to file")
		assert.Contains(t, string(content), `"channel_id":42`)
	})

	t.Run("file output without path", func(t *testing.T) {
		_, err := NewLogger(&config.LoggingConfig{Output: "file"})
		assert.Error(t, err)
	})
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"fatal":   zapcore.FatalLevel,
		"bananas": zapcore.InfoLevel,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, parseLogLevel(in))
		})
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	l := bufferLogger(&buf, zapcore.DebugLevel)

	ctx := WithUserID(WithTraceID(context.Background(), "trace-1"), 77)
	l.InfoContext(ctx, "with ids")
	l.InfoContext(context.Background(), "without ids")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "trace-1", lines[0]["trace_id"])
	assert.EqualValues(t, 77, lines[0]["user_id"])
	assert.NotContains(t, lines[1], "trace_id")
	assert.NotContains(t, lines[1], "user_id")
}

func TestNamedAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := bufferLogger(&buf, zapcore.InfoLevel)

	l.WithFields(zap.String("component", "hub")).Info("one")
	l.Debug("filtered out")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "hub", lines[0]["component"])
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error("nothing happens")
	assert.NoError(t, l.Close())
}
