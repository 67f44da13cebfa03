// Package logging builds the process logger on top of slog-logfilter and
// carries request IDs through contexts.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	logfilter "github.com/jmylchreest/slog-logfilter"
)

// ContextKey is a type for context keys used in logging.
type ContextKey string

// RequestIDKey is the context key for request ID.
const RequestIDKey ContextKey = "log_request_id"

// Options selects level, format and destination. Empty fields fall back
// to LOG_LEVEL / LOG_FORMAT and then to info level with TTY detection.
type Options struct {
	Level  string
	Format string
	Output string
}

var registerOnce sync.Once

// New creates a configured logger. LOG_LEVEL and LOG_FORMAT override opts.
func New(opts Options) *slog.Logger {
	level := opts.Level
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = env
	}
	out := outputFor(opts.Output)

	logFormat := opts.Format
	if env := os.Getenv("LOG_FORMAT"); env != "" {
		logFormat = env
	}
	format := "json"
	if logFormat == "text" || (logFormat == "" && isatty(out)) {
		format = "text"
	}

	registerOnce.Do(registerContextExtractors)

	return logfilter.New(
		logfilter.WithLevel(ParseLevel(level)),
		logfilter.WithFormat(format),
		logfilter.WithOutput(out),
		logfilter.WithSource(true),
	)
}

// WithRequestID adds a request ID to the context for logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID extracts the request ID from context.
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(RequestIDKey).(string); ok {
		return v
	}
	return ""
}

// FromContext returns logger with the context's request ID attached.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := GetRequestID(ctx); id != "" {
		return logger.With("request_id", id)
	}
	return logger
}

// Discard returns a logger that drops everything. Useful as a default for
// optional logger parameters.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func registerContextExtractors() {
	logfilter.RegisterContextExtractor("request_id", func(ctx context.Context) (string, bool) {
		id := GetRequestID(ctx)
		return id, id != ""
	})
}

// ParseLevel converts a string log level to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func outputFor(name string) *os.File {
	if strings.EqualFold(name, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// isatty returns true if the file is a terminal.
func isatty(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
