package session

import "log/slog"

// Logger receives structured events from directory operations.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// SlogLogger adapts a slog.Logger to the Logger interface.
type SlogLogger struct {
	log *slog.Logger
}

// NewSlogLogger wraps a slog.Logger for directory operations.
func NewSlogLogger(log *slog.Logger) *SlogLogger {
	return &SlogLogger{log: log}
}

func (l *SlogLogger) Debug(msg string, fields map[string]any) { l.log.Debug(msg, attrs(fields)...) }
func (l *SlogLogger) Info(msg string, fields map[string]any)  { l.log.Info(msg, attrs(fields)...) }
func (l *SlogLogger) Warn(msg string, fields map[string]any)  { l.log.Warn(msg, attrs(fields)...) }
func (l *SlogLogger) Error(msg string, fields map[string]any) { l.log.Error(msg, attrs(fields)...) }

func attrs(fields map[string]any) []any {
	out := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}

// NopLogger discards all events.
type NopLogger struct{}

func (NopLogger) Debug(string, map[string]any) {}
func (NopLogger) Info(string, map[string]any)  {}
func (NopLogger) Warn(string, map[string]any)  {}
func (NopLogger) Error(string, map[string]any) {}

// SanitizeFields replaces values of credential-bearing keys before logging.
func SanitizeFields(fields map[string]any) map[string]any {
	sensitive := map[string]bool{
		"password":    true,
		"unicodepwd":  true,
		"secret":      true,
		"private_key": true,
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if sensitive[k] {
			out[k] = "[REDACTED]"
		} else {
			out[k] = v
		}
	}
	return out
}
