package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/phsym/console-slog"
)

// SlogLogger adapts a *slog.Logger to Logger. Children created with With
// share the parent's level.
type SlogLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

// NewSlog creates a slog backed logger writing to stdout. With ENV=development
// the human readable console handler is used, otherwise JSON lines.
func NewSlog(level Level, addSource bool) *SlogLogger {
	return NewSlogWriter(os.Stdout, level, addSource)
}

// NewSlogWriter is NewSlog with an explicit destination.
func NewSlogWriter(w io.Writer, level Level, addSource bool) *SlogLogger {
	lv := &slog.LevelVar{}
	lv.Set(level.slogLevel())

	var handler slog.Handler
	if os.Getenv("ENV") == "development" {
		handler = console.NewHandler(w, &console.HandlerOptions{
			AddSource: addSource,
			Level:     lv,
		})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			AddSource: addSource,
			Level:     lv,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					a.Key = "ts"
				}
				return a
			},
		})
	}

	return &SlogLogger{logger: slog.New(handler), level: lv}
}

func (l *SlogLogger) Debug(msg string, keysAndValues ...any) {
	l.log(slog.LevelDebug, msg, keysAndValues...)
}

func (l *SlogLogger) Info(msg string, keysAndValues ...any) {
	l.log(slog.LevelInfo, msg, keysAndValues...)
}

func (l *SlogLogger) Warn(msg string, keysAndValues ...any) {
	l.log(slog.LevelWarn, msg, keysAndValues...)
}

func (l *SlogLogger) Error(msg string, keysAndValues ...any) {
	l.log(slog.LevelError, msg, keysAndValues...)
}

func (l *SlogLogger) With(keysAndValues ...any) Logger {
	return &SlogLogger{logger: l.logger.With(keysAndValues...), level: l.level}
}

func (l *SlogLogger) SetLevel(level Level) {
	l.level.Set(level.slogLevel())
}

// log must be called directly by an exported method; the caller depth is fixed.
func (l *SlogLogger) log(level slog.Level, msg string, args ...any) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	// skip [runtime.Callers, log, exported method]
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = l.logger.Handler().Handle(ctx, r)
}
