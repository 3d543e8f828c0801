package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel decouples level configuration from slog.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

var levelNames = map[LogLevel]string{
	LogLevelDebug: "DEBUG",
	LogLevelInfo:  "INFO",
	LogLevelWarn:  "WARN",
	LogLevelError: "ERROR",
}

// String returns the upper-case level name.
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

func (l LogLevel) slog() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps a case-insensitive level name to a LogLevel. Unknown names
// fall back to LogLevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Logger is the logging contract used across agentloop. Arguments after msg
// are slog style key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// CallLogger is implemented by loggers offering per-call summaries.
// Components type-assert for it and fall back to plain key/value logging.
type CallLogger interface {
	LogToolCall(tool string, dur time.Duration, success bool, err error)
	LogLLMCall(model string, usage map[string]int64, dur time.Duration, success bool, err error)
}

// SlogAdapter wraps *slog.Logger to implement Logger.
type SlogAdapter struct {
	*slog.Logger
}

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// LoggerConfig configures a StructuredLogger.
type LoggerConfig struct {
	Level       LogLevel
	Format      string // json or text
	Output      io.Writer
	AddSource   bool
	Component   string
	CustomAttrs map[string]any
}

// DefaultLoggerConfig returns a JSON, info level configuration writing to stdout.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout}
}

// StructuredLogger is a slog logger with component, run and provider
// scoping plus call summaries. The With* methods return scoped copies and
// leave the receiver untouched.
type StructuredLogger struct {
	logger *slog.Logger
}

// NewLogger builds a StructuredLogger from cfg, or from DefaultLoggerConfig
// when cfg is nil.
func NewLogger(cfg *LoggerConfig) *StructuredLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: cfg.Level.slog(), AddSource: cfg.AddSource}

	var handler slog.Handler = slog.NewJSONHandler(out, opts)
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	}

	l := &StructuredLogger{logger: slog.New(handler)}
	if cfg.Component != "" {
		l = l.WithComponent(cfg.Component)
	}
	for k, v := range cfg.CustomAttrs {
		l = l.WithContext(k, v)
	}

	return l
}

// NewSlogLogger creates a StructuredLogger writing to stdout.
func NewSlogLogger(level LogLevel, format string, addSource bool) *StructuredLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	cfg.AddSource = addSource
	if format != "" {
		cfg.Format = format
	}

	return NewLogger(cfg)
}

// WithContext attaches key=value to every entry.
func (l *StructuredLogger) WithContext(key string, value any) *StructuredLogger {
	return &StructuredLogger{logger: l.logger.With(key, value)}
}

// WithComponent sets the logical component (agent, model, tool, transport).
func (l *StructuredLogger) WithComponent(c string) *StructuredLogger {
	return l.WithContext("component", c)
}

// WithRun attaches the agent run identifier.
func (l *StructuredLogger) WithRun(runID string) *StructuredLogger {
	return l.WithContext("run_id", runID)
}

// WithProvider attaches the provider identifier.
func (l *StructuredLogger) WithProvider(provider string) *StructuredLogger {
	return l.WithContext("provider", provider)
}

func (l *StructuredLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *StructuredLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *StructuredLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *StructuredLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// LogToolCall summarizes one tool invocation.
func (l *StructuredLogger) LogToolCall(tool string, dur time.Duration, success bool, err error) {
	l.summary("Tool execution", success, err,
		slog.String("tool_name", tool), slog.Duration("duration", dur), slog.Bool("success", success))
}

// LogLLMCall summarizes one model call with its provider-native usage counters.
func (l *StructuredLogger) LogLLMCall(model string, usage map[string]int64, dur time.Duration, success bool, err error) {
	attrs := []slog.Attr{slog.String("model", model), slog.Duration("duration", dur), slog.Bool("success", success)}
	for k, v := range usage {
		attrs = append(attrs, slog.Int64("usage_"+k, v))
	}

	l.summary("LLM call", success, err, attrs...)
}

func (l *StructuredLogger) summary(subject string, success bool, err error, attrs ...slog.Attr) {
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	level, msg := slog.LevelInfo, subject+" completed"
	if !success {
		level, msg = slog.LevelError, subject+" failed"
	}

	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// NoOpLogger discards everything.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...any) {}
func (NoOpLogger) Info(string, ...any)  {}
func (NoOpLogger) Warn(string, ...any)  {}
func (NoOpLogger) Error(string, ...any) {}

var (
	_ Logger     = (*SlogAdapter)(nil)
	_ Logger     = (*StructuredLogger)(nil)
	_ Logger     = NoOpLogger{}
	_ CallLogger = (*StructuredLogger)(nil)
)
