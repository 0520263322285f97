package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	requestIDKey contextKey = "requestID"
	syncIDKey    contextKey = "syncID"
)

// LevelTrace is below debug and only meant for local troubleshooting
const LevelTrace = slog.LevelDebug - 4

var (
	logger atomic.Pointer[slog.Logger]
	level  = new(slog.LevelVar)
)

func init() {
	level.Set(slog.LevelInfo)
	logger.Store(slog.New(NewCompactHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

// SetLevel changes the logging level for all loggers, including component
// loggers created earlier with New.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// SetOutput replaces the output writer, keeping the compact format
func SetOutput(w io.Writer) {
	logger.Store(slog.New(NewCompactHandler(w, &slog.HandlerOptions{Level: level})))
}

// SetJSONOutput switches to JSON format output
func SetJSONOutput(w io.Writer) {
	logger.Store(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}

// ParseLevel maps a verbosity name or a -v count to a slog level.
// An explicit name wins over the count.
func ParseLevel(name string, verboseCount int) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "":
	default:
		return slog.LevelInfo, fmt.Errorf("unknown verbosity %q", name)
	}

	switch {
	case verboseCount >= 2:
		return LevelTrace, nil
	case verboseCount == 1:
		return slog.LevelDebug, nil
	default:
		return slog.LevelInfo, nil
	}
}

// New returns a logger tagged with the given component name.
// Component loggers follow later SetLevel calls but not SetOutput.
func New(component string) *slog.Logger {
	return logger.Load().With("component", component)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithSyncID tags the context with the ID of the sync pass it belongs to
func WithSyncID(ctx context.Context, syncID string) context.Context {
	return context.WithValue(ctx, syncIDKey, syncID)
}

// GetSyncID retrieves the sync pass ID from context
func GetSyncID(ctx context.Context) string {
	if syncID, ok := ctx.Value(syncIDKey).(string); ok {
		return syncID
	}
	return ""
}

// withContextIDs prepends request and sync IDs to the log attributes if present
func withContextIDs(ctx context.Context, args []any) []any {
	if syncID := GetSyncID(ctx); syncID != "" {
		args = append([]any{"syncID", syncID}, args...)
	}
	if requestID := GetRequestID(ctx); requestID != "" {
		args = append([]any{"requestID", requestID}, args...)
	}
	return args
}

// Trace logs at TRACE level (very verbose, debug-time only)
func Trace(msg string, args ...any) {
	logger.Load().Log(context.Background(), LevelTrace, msg, args...)
}

// TraceContext logs at TRACE level with context
func TraceContext(ctx context.Context, msg string, args ...any) {
	logger.Load().Log(ctx, LevelTrace, msg, withContextIDs(ctx, args)...)
}

// Debug logs at DEBUG level (internal component behavior)
func Debug(msg string, args ...any) {
	logger.Load().Debug(msg, args...)
}

// DebugContext logs at DEBUG level with context
func DebugContext(ctx context.Context, msg string, args ...any) {
	logger.Load().DebugContext(ctx, msg, withContextIDs(ctx, args)...)
}

// Info logs at INFO level (user-facing operations)
func Info(msg string, args ...any) {
	logger.Load().Info(msg, args...)
}

// InfoContext logs at INFO level with context
func InfoContext(ctx context.Context, msg string, args ...any) {
	logger.Load().InfoContext(ctx, msg, withContextIDs(ctx, args)...)
}

// Warn logs at WARN level (should be monitored)
func Warn(msg string, args ...any) {
	logger.Load().Warn(msg, args...)
}

// WarnContext logs at WARN level with context
func WarnContext(ctx context.Context, msg string, args ...any) {
	logger.Load().WarnContext(ctx, msg, withContextIDs(ctx, args)...)
}

// Error logs at ERROR level (logical bugs that shouldn't happen)
func Error(msg string, args ...any) {
	logger.Load().Error(msg, args...)
}

// ErrorContext logs at ERROR level with context
func ErrorContext(ctx context.Context, msg string, args ...any) {
	logger.Load().ErrorContext(ctx, msg, withContextIDs(ctx, args)...)
}

// Fatal logs at ERROR level and exits (unrecoverable bugs)
func Fatal(msg string, args ...any) {
	logger.Load().Error(msg, args...)
	os.Exit(1)
}
