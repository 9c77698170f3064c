package logger

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLoggerLevels(t *testing.T) {
	tests := []struct {
		name     string
		level    LogLevel
		logFn    func(Logger)
		expected bool
	}{
		{"debug suppressed at info", LogLevelInfo, func(l Logger) { l.Debug("msg") }, false},
		{"info written at info", LogLevelInfo, func(l Logger) { l.Info("msg") }, true},
		{"warn written at info", LogLevelInfo, func(l Logger) { l.Warn("msg") }, true},
		{"trace written at trace", LogLevelTrace, func(l Logger) { l.Trace("msg") }, true},
		{"info suppressed at error", LogLevelError, func(l Logger) { l.Info("msg") }, false},
		{"explicit level honoured", LogLevelWarn, func(l Logger) { l.Log(LogLevelDebug, "msg") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.logFn(NewSlogLogger(buf, tt.level, time.UTC))
			assert.Equal(t, tt.expected, buf.Len() > 0, buf.String())
		})
	}
}

func TestModuleAndFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelDebug, time.UTC).Module("audio").Module("malgo")

	log.With(String("device", "default")).Info("capture opened",
		Int("sample_rate", 44100),
		Float64("gain", 12.34567),
		Duration("latency", 15*time.Millisecond),
		Error(fmt.Errorf("boom")))

	out := buf.String()
	assert.Contains(t, out, "module=audio.malgo")
	assert.Contains(t, out, "device=default")
	assert.Contains(t, out, "sample_rate=44100")
	assert.Contains(t, out, "gain=12.346")
	assert.Contains(t, out, "latency=15ms")
	assert.Contains(t, out, "error=boom")
}

func TestWithContextTraceID(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelInfo, time.UTC)

	log.WithContext(WithTraceID(t.Context(), "abc-123")).Info("request")
	assert.Contains(t, buf.String(), "trace_id=abc-123")

	buf.Reset()
	log.WithContext(t.Context()).Info("request")
	assert.NotContains(t, buf.String(), "trace_id")
}

func TestCentralLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "withu.log")

	cl, err := NewCentralLogger(&LoggingConfig{
		DefaultLevel: "debug",
		Timezone:     "UTC",
		Console:      &ConsoleOutput{Enabled: false},
		FileOutput:   &FileOutput{Enabled: true, Path: path, Level: "debug"},
		ModuleLevels: map[string]string{"quiet": "error"},
	})
	require.NoError(t, err)

	cl.Module("classifier").Info("detection", String("type", "siren"))
	cl.Module("quiet").Info("should not appear")
	require.NoError(t, cl.Flush())
	require.NoError(t, cl.Close())
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"module":"classifier"`)
	assert.Contains(t, string(data), `"type":"siren"`)
	assert.NotContains(t, string(data), "should not appear")
}

func TestNewCentralLoggerInvalidTimezone(t *testing.T) {
	_, err := NewCentralLogger(&LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)

	_, err = NewCentralLogger(nil)
	require.Error(t, err)
}

func TestGlobalFallback(t *testing.T) {
	require.NotNil(t, Global())
	assert.NotNil(t, Global().Module("test"))
}
