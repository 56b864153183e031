package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(level Level, buf *bytes.Buffer) *Logger {
	logger := New(&Config{
		Level:    level,
		Colored:  false,
		ShowTime: false,
	})
	logger.SetOutput(buf)
	return logger
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LevelFatal, "FATAL"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.level.String())
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{" warn ", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"fatal", LevelFatal},
		{"unknown", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestLoggerOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(LevelDebug, &buf)

	logger.Info("test message %d", 42)

	output := buf.String()
	assert.Contains(t, output, "INF")
	assert.Contains(t, output, "test message 42")
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(LevelWarn, &buf)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	assert.NotContains(t, output, "debug message")
	assert.NotContains(t, output, "info message")
	assert.Contains(t, output, "warn message")
	assert.Contains(t, output, "error message")
}

func TestLoggerWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(LevelDebug, &buf)

	logger.WithComponent("router").Info("routing utterance")

	assert.Contains(t, buf.String(), "component=router")
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(LevelDebug, &buf)

	logger.WithFields(map[string]interface{}{
		"intent": "weather",
		"mode":   "offline",
	}).WithField("tier", "pattern").Info("classified")

	output := buf.String()
	assert.Contains(t, output, "intent=weather")
	assert.Contains(t, output, "mode=offline")
	assert.Contains(t, output, "tier=pattern")
}

func TestLoggerDerivedDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(LevelDebug, &buf)

	_ = logger.WithField("child", "yes")
	logger.Info("parent line")

	assert.NotContains(t, buf.String(), "child=yes")
}

func TestLoggerShowCaller(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: LevelDebug, ShowCaller: true})
	logger.SetOutput(&buf)

	logger.Info("test with caller")

	assert.Contains(t, buf.String(), "logger_test.go:")
}

func TestLoggerFileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "jarvis.log")

	logger := New(&Config{Level: LevelDebug, FilePath: logPath, Colored: true})
	logger.SetOutput(&bytes.Buffer{})
	logger.Info("file log test")
	require.NoError(t, logger.Close())

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "file log test")
	assert.False(t, strings.Contains(string(content), "\033["), "file output must not contain color codes")
}

func TestGlobalLogger(t *testing.T) {
	prev := Global()
	defer SetGlobal(prev)

	var buf bytes.Buffer
	SetGlobal(newTestLogger(LevelInfo, &buf))

	Debug("should not appear")
	Info("global test message")

	assert.NotContains(t, buf.String(), "should not appear")
	assert.Contains(t, buf.String(), "global test message")
}

func TestTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(LevelDebug, &buf)

	done := logger.Trace("Retrain")
	done()

	output := buf.String()
	assert.Contains(t, output, "ENTER Retrain")
	assert.Contains(t, output, "EXIT  Retrain")
	assert.Contains(t, output, "took")
}

func TestNop(t *testing.T) {
	logger := Nop()
	logger.Error("discarded")
	assert.Equal(t, LevelFatal, logger.Level())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, LevelInfo, cfg.Level)
	assert.True(t, cfg.Colored)
	assert.False(t, cfg.ShowCaller)
	assert.True(t, cfg.ShowTime)
}

func TestVerboseConfig(t *testing.T) {
	cfg := VerboseConfig()

	assert.Equal(t, LevelDebug, cfg.Level)
	assert.True(t, cfg.ShowCaller)
}

func BenchmarkLoggerWithFields(b *testing.B) {
	var buf bytes.Buffer
	logger := newTestLogger(LevelInfo, &buf)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.WithField("iteration", i).Info("benchmark message")
	}
}
