package logging

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dcdpr/taxcount/internal/config"
)

// Logger wraps slog.Logger with printf-style convenience methods, so call
// sites that prefer "Infof(fmt, args...)" and call sites that prefer
// structured "Info(msg, key, val, ...)" both have a home.
type Logger struct {
	*slog.Logger
}

func (l *Logger) Debugf(format string, args ...any) {
	l.Logger.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	l.Logger.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.Logger.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.Logger.Error(fmt.Sprintf(format, args...))
}

func (l *Logger) Fatalf(format string, args ...any) {
	l.Logger.Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}

// Sync exists so deferred cleanup in cmd/taxcount reads the same as any
// other Go CLI that flushes its logger on exit. slog has no buffering to
// flush, so this is a no-op.
func (l *Logger) Sync() error {
	return nil
}

var globalLogger *Logger

func Configure() {
	cfg := config.GetConfig()
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if cfg.Verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(
					"timestamp",
					a.Value.Time().Format(time.RFC3339),
				)
			}
			return a
		},
		Level: level,
	})
	globalLogger = &Logger{Logger: slog.New(handler).With("component", "taxcount")}
}

func GetLogger() *Logger {
	if globalLogger == nil {
		Configure()
	}
	return globalLogger
}
