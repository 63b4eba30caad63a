// Package logging builds the slog loggers used across storemon.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const loggerContextKey contextKey = "logger"

const redacted = "***REDACTED***"

// secretPatterns match attribute keys whose values are never logged.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(^|_)TOKEN$`),
	regexp.MustCompile(`(?i)(^|_)SECRET$`),
	regexp.MustCompile(`(?i)PASSWORD`),
	regexp.MustCompile(`(?i)(^|_)DSN$`),
}

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level. An
// empty string is info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (must be debug, info, warn or error)", level)
	}
}

// New creates a JSON logger on stderr. Unknown levels fall back to info.
func New(level string) *slog.Logger {
	return NewWithWriter(os.Stderr, level)
}

// NewWithWriter creates a JSON logger writing to w.
func NewWithWriter(w io.Writer, level string) *slog.Logger {
	lvl, _ := ParseLevel(level)
	return slog.New(slog.NewJSONHandler(w, handlerOptions(lvl)))
}

func handlerOptions(lvl slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:       lvl,
		ReplaceAttr: redactSecrets,
	}
}

// redactSecrets hides secret-looking attributes and passwords embedded in
// connection URLs.
func redactSecrets(groups []string, a slog.Attr) slog.Attr {
	for _, pattern := range secretPatterns {
		if pattern.MatchString(a.Key) {
			return slog.String(a.Key, redacted)
		}
	}
	if a.Value.Kind() == slog.KindString {
		if s := a.Value.String(); strings.Contains(s, "://") {
			return slog.String(a.Key, RedactURL(s))
		}
	}
	return a
}

// RedactURL replaces the password of a URL-shaped string. Other strings are
// returned unchanged.
func RedactURL(s string) string {
	u, err := url.Parse(s)
	if err != nil || u.User == nil {
		return s
	}
	if _, ok := u.User.Password(); !ok {
		return s
	}
	return u.Redacted()
}

// WithContext attaches a logger to a context.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// FromContext retrieves a logger from the context, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithFields returns logger with the given fields attached.
func WithFields(logger *slog.Logger, fields map[string]any) *slog.Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return logger.With(args...)
}

// NewFromConfig creates a logger from the logging section of the config.
// Output is "stderr" (default), "stdout", "discard" or a file path opened
// for append. The returned close function releases the file, if any.
func NewFromConfig(format, level, output string) (*slog.Logger, func() error, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}

	noop := func() error { return nil }
	var (
		writer  io.Writer
		closeFn = noop
	)
	switch output {
	case "", "stderr":
		writer = os.Stderr
	case "stdout":
		writer = os.Stdout
	case "discard", "/dev/null":
		writer = io.Discard
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writer = f
		closeFn = f.Close
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(writer, handlerOptions(lvl))
	case "json", "":
		handler = slog.NewJSONHandler(writer, handlerOptions(lvl))
	default:
		closeFn()
		return nil, nil, fmt.Errorf("invalid log format %q (must be json or text)", format)
	}

	return slog.New(handler), closeFn, nil
}
