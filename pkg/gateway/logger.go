package gateway

import (
	"fmt"

	"avaneesh/md3-go/pkg/internal/logger"
)

// Logger is the key/value logger used throughout the gateway
type Logger = logger.Logger

// LogLevel represents logging level
type LogLevel = logger.Level

const (
	// LevelDebug shows all log messages (most verbose)
	LevelDebug = logger.LevelDebug
	// LevelInfo shows info, warn, and error messages (default)
	LevelInfo = logger.LevelInfo
	// LevelWarn shows warn and error messages
	LevelWarn = logger.LevelWarn
	// LevelError shows only error messages
	LevelError = logger.LevelError
)

// NewLogger creates a slog backed logger writing to stdout. level is a
// config string such as "info".
func NewLogger(level string, addSource bool) (Logger, error) {
	lv, ok := logger.ParseLevel(level)
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return logger.NewSlog(lv, addSource), nil
}

// SetDefaultLogger sets the logger used when New is given nil
func SetDefaultLogger(l Logger) {
	logger.SetDefault(l)
}

// SetLogLevel sets the level of the default logger
func SetLogLevel(level LogLevel) {
	logger.GetDefault().SetLevel(level)
}
