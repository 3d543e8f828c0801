package core

import "github.com/hupe1980/agentloop/logging"

// scopedLogger prefixes every entry with the identifiers of the invocation
// it belongs to. Empty identifiers are omitted.
type scopedLogger struct {
	base   logging.Logger
	fields []any
}

func newScopedLogger(l logging.Logger, runID, callID, toolName string) *scopedLogger {
	if l == nil {
		l = logging.NoOpLogger{}
	}

	var fields []any
	for _, kv := range [][2]string{{"run_id", runID}, {"fc_id", callID}, {"tool", toolName}} {
		if kv[1] != "" {
			fields = append(fields, kv[0], kv[1])
		}
	}

	return &scopedLogger{base: l, fields: fields}
}

func (l *scopedLogger) with(args []any) []any {
	if len(l.fields) == 0 {
		return args
	}
	out := make([]any, 0, len(l.fields)+len(args))
	out = append(out, l.fields...)
	return append(out, args...)
}

// LogDebug logs at debug level with the invocation fields attached.
func (l *scopedLogger) LogDebug(msg string, args ...any) { l.base.Debug(msg, l.with(args)...) }

// LogInfo logs at info level with the invocation fields attached.
func (l *scopedLogger) LogInfo(msg string, args ...any) { l.base.Info(msg, l.with(args)...) }

// LogWarn logs at warn level with the invocation fields attached.
func (l *scopedLogger) LogWarn(msg string, args ...any) { l.base.Warn(msg, l.with(args)...) }

// LogError logs at error level with the invocation fields attached.
func (l *scopedLogger) LogError(msg string, args ...any) { l.base.Error(msg, l.with(args)...) }

// scopedAdapter exposes a scopedLogger through the logging.Logger interface.
type scopedAdapter struct{ l *scopedLogger }

func (a scopedAdapter) Debug(msg string, args ...any) { a.l.LogDebug(msg, args...) }
func (a scopedAdapter) Info(msg string, args ...any)  { a.l.LogInfo(msg, args...) }
func (a scopedAdapter) Warn(msg string, args ...any)  { a.l.LogWarn(msg, args...) }
func (a scopedAdapter) Error(msg string, args ...any) { a.l.LogError(msg, args...) }

var _ logging.Logger = scopedAdapter{}
