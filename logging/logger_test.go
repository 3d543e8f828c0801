package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level LogLevel) (*StructuredLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewLogger(&LoggerConfig{Level: level, Format: "json", Output: &buf}), &buf
}

func entries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LogLevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LogLevelError, ParseLevel("error"))
	assert.Equal(t, LogLevelInfo, ParseLevel("verbose"))
	assert.Equal(t, "WARN", LogLevelWarn.String())
}

func TestStructuredLogger_LevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(LogLevelWarn)

	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")

	got := entries(t, buf)
	require.Len(t, got, 2)
	assert.Equal(t, "w", got[0]["msg"])
	assert.Equal(t, "e", got[1]["msg"])
}

func TestStructuredLogger_ContextFields(t *testing.T) {
	base, buf := newBufferLogger(LogLevelDebug)

	l := base.WithComponent("agent").WithRun("run-1").WithProvider("anthropic").WithContext("tenant", "acme")
	l.Info("agent.iteration", "iteration", 2, "dangling")

	base.Info("plain")

	got := entries(t, buf)
	require.Len(t, got, 2)
	assert.Equal(t, "agent", got[0]["component"])
	assert.Equal(t, "run-1", got[0]["run_id"])
	assert.Equal(t, "anthropic", got[0]["provider"])
	assert.Equal(t, "acme", got[0]["tenant"])
	assert.Equal(t, 2.0, got[0]["iteration"])
	assert.Equal(t, "dangling", got[0]["!BADKEY"])

	assert.NotContains(t, got[1], "run_id", "With* returns a copy")
}

func TestStructuredLogger_CallHelpers(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)

	l.LogLLMCall("gpt-4o", map[string]int64{"total_tokens": 12}, 150*time.Millisecond, true, nil)
	l.LogToolCall("sum", time.Millisecond, false, errors.New("boom"))

	got := entries(t, buf)
	require.Len(t, got, 2)

	assert.Equal(t, "LLM call completed", got[0]["msg"])
	assert.Equal(t, 12.0, got[0]["usage_total_tokens"])
	assert.Equal(t, "gpt-4o", got[0]["model"])

	assert.Equal(t, "Tool execution failed", got[1]["msg"])
	assert.Equal(t, "ERROR", got[1]["level"])
	assert.Equal(t, "boom", got[1]["error"])
}

func TestNewSlogLoggerAndAdapters(t *testing.T) {
	var l Logger = NewSlogLogger(LogLevelError, "text", false)
	l.Info("discarded")

	var _ CallLogger = NewSlogLogger(LogLevelInfo, "", false)

	NoOpLogger{}.Error("ignored")
	assert.NotNil(t, NewDefaultSlogLogger())
}
