// Package logging provides the service logger: slog underneath, with an
// optional Sentry mirror for warnings and errors.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

// Logger wraps slog.Logger so the backend can be swapped and the Sentry
// hook lives in one place.
type Logger struct {
	slog *slog.Logger
}

type Config struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json", "text"
	Output io.Writer
}

var sentryEnabled bool

type SentryConfig struct {
	DSN         string
	Environment string
}

// InitSentry initializes Sentry error reporting. A blank DSN disables it.
// The returned cleanup flushes buffered events and should be deferred.
func InitSentry(cfg SentryConfig) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
	})
	if err != nil {
		return nil, err
	}
	sentryEnabled = true
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// New creates a logger with the given configuration.
func New(cfg Config) *Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}
	return &Logger{slog: slog.New(handler)}
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *Logger {
	return &Logger{slog: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// With returns a child logger with the given key-value pairs attached.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}

func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

// Warn logs at warn level and mirrors to Sentry if enabled.
func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
	if sentryEnabled {
		sentry.CaptureMessage(formatEvent(msg, args))
	}
}

// Error logs at error level and mirrors to Sentry if enabled.
func (l *Logger) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
	if sentryEnabled {
		sentry.CaptureMessage(formatEvent(msg, args))
	}
}

func formatEvent(msg string, args []any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	return b.String()
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
