// Package logger provides structured logging using Go's slog package.
// It supports configurable format (JSON/text) and log levels, and enriches
// records with the request, channel and origin carried in the context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	channelIDKey contextKey = "channel_id"
	originKey    contextKey = "origin"
)

// Init initializes the global logger writing to stdout.
//
// format is "json" (default) or "text"; level is "DEBUG", "INFO" (default),
// "WARN" or "ERROR".
func Init(format, level string) error {
	return InitWriter(os.Stdout, format, level)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, format, level string) error {
	if format == "" {
		format = "json"
	}
	if level == "" {
		level = "INFO"
	}

	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "INFO":
		lvl = slog.LevelInfo
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		return fmt.Errorf("invalid LOG_LEVEL: %s (must be DEBUG, INFO, WARN, or ERROR)", level)
	}

	opts := &slog.HandlerOptions{
		Level: lvl,
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %s (must be json or text)", format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context.
// Returns empty string if not present.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithChannel records the page channel and its origin for later log lines.
func WithChannel(ctx context.Context, channelID, origin string) context.Context {
	ctx = context.WithValue(ctx, channelIDKey, channelID)
	return context.WithValue(ctx, originKey, origin)
}

// FromContext returns a logger enriched with whatever request, channel and
// origin the context carries.
func FromContext(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if requestID := GetRequestID(ctx); requestID != "" {
		l = l.With("request_id", requestID)
	}
	if channelID, ok := ctx.Value(channelIDKey).(string); ok && channelID != "" {
		l = l.With("channel_id", channelID)
	}
	if origin, ok := ctx.Value(originKey).(string); ok && origin != "" {
		l = l.With("origin", origin)
	}
	return l
}

// Info logs at INFO level with context enrichment.
func Info(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Info(msg, args...)
}

// Error logs at ERROR level with context enrichment.
func Error(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Error(msg, args...)
}

// Warn logs at WARN level with context enrichment.
func Warn(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Warn(msg, args...)
}

// Debug logs at DEBUG level with context enrichment.
func Debug(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Debug(msg, args...)
}
