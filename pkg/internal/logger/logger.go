// Package logger is the logging facade used by every gateway package.
//
// Calls take a message and alternating key/value pairs, in the style of
// log/slog. The default implementation is backed by slog; NoOpLogger and
// MockLogger exist for tests and for callers that pass nil.
package logger

import "log/slog"

// Level represents logging level
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns string representation of Level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string ("debug", "info", "warn", "error") to a Level.
// Unknown strings yield LevelInfo and false.
func ParseLevel(s string) (Level, bool) {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug, true
	case "info", "INFO", "":
		return LevelInfo, true
	case "warn", "WARN", "warning":
		return LevelWarn, true
	case "error", "ERROR":
		return LevelError, true
	default:
		return LevelInfo, false
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger is the interface for logging
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	// With returns a child logger carrying the given key/value pairs.
	With(keysAndValues ...any) Logger
	SetLevel(level Level)
}

// NoOpLogger is a logger that doesn't log anything
type NoOpLogger struct{}

// NewNoOpLogger creates a logger that doesn't log
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (l *NoOpLogger) Debug(msg string, keysAndValues ...any) {}
func (l *NoOpLogger) Info(msg string, keysAndValues ...any)  {}
func (l *NoOpLogger) Warn(msg string, keysAndValues ...any)  {}
func (l *NoOpLogger) Error(msg string, keysAndValues ...any) {}
func (l *NoOpLogger) With(keysAndValues ...any) Logger       { return l }
func (l *NoOpLogger) SetLevel(level Level)                   {}

// Global default logger
var defaultLogger Logger = NewSlog(LevelInfo, false)

// SetDefault sets the default logger
func SetDefault(logger Logger) {
	defaultLogger = logger
}

// GetDefault returns the default logger
func GetDefault() Logger {
	return defaultLogger
}

// Debug logs debug message using default logger
func Debug(msg string, keysAndValues ...any) {
	defaultLogger.Debug(msg, keysAndValues...)
}

// Info logs info message using default logger
func Info(msg string, keysAndValues ...any) {
	defaultLogger.Info(msg, keysAndValues...)
}

// Warn logs warning message using default logger
func Warn(msg string, keysAndValues ...any) {
	defaultLogger.Warn(msg, keysAndValues...)
}

// Error logs error message using default logger
func Error(msg string, keysAndValues ...any) {
	defaultLogger.Error(msg, keysAndValues...)
}
