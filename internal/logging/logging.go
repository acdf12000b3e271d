// Package logging provides structured logging using Go's slog package.
package logging

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

const (
	// RunIDKey is the context key for conversion run IDs.
	RunIDKey ContextKey = "run_id"
)

var (
	// defaultLogger is the global logger instance.
	defaultLogger *slog.Logger
)

func init() {
	// Initialize with a default logger (text format, Info level)
	InitLogger(LevelInfo, FormatText)
}

// Level represents a log level.
type Level int

const (
	// LevelDebug is for debug messages.
	LevelDebug Level = iota
	// LevelInfo is for informational messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

// Format represents a log output format.
type Format int

const (
	// FormatText outputs logs in human-readable text format.
	FormatText Format = iota
	// FormatJSON outputs logs in JSON format.
	FormatJSON
)

// InitLogger initializes the global logger with the specified level and format.
// Logs go to stderr so command output on stdout stays clean.
func InitLogger(level Level, format Format) {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Customize timestamp format
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// GetLogger returns the global logger instance.
func GetLogger() *slog.Logger {
	return defaultLogger
}

// WithRunID adds a conversion run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// GetRunID retrieves the conversion run ID from the context.
func GetRunID(ctx context.Context) string {
	if runID, ok := ctx.Value(RunIDKey).(string); ok {
		return runID
	}
	return ""
}

// LoggerFromContext returns a logger with context values attached.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	logger := defaultLogger
	if runID := GetRunID(ctx); runID != "" {
		logger = logger.With("run_id", runID)
	}
	return logger
}

// Helper functions for common logging patterns

// Debug logs a debug message with optional key-value pairs.
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// Info logs an info message with optional key-value pairs.
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// Warn logs a warning message with optional key-value pairs.
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// Error logs an error message with optional key-value pairs.
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}

// DebugContext logs a debug message with context.
func DebugContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Debug(msg, args...)
}

// InfoContext logs an info message with context.
func InfoContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Info(msg, args...)
}

// WarnContext logs a warning message with context.
func WarnContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Warn(msg, args...)
}

// ErrorContext logs an error message with context.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Error(msg, args...)
}

// Replacement logs a placeholder replacement inside a document.
func Replacement(ctx context.Context, document, old, new string, args ...any) {
	allArgs := []any{
		"document", document,
		"old", old,
		"new", new,
	}
	allArgs = append(allArgs, args...)
	LoggerFromContext(ctx).Info("replacement", allArgs...)
}

// TagInserted logs a template tag inserted after a label.
func TagInserted(ctx context.Context, document, label, tag string, args ...any) {
	allArgs := []any{
		"document", document,
		"label", label,
		"tag", tag,
	}
	allArgs = append(allArgs, args...)
	LoggerFromContext(ctx).Info("tag_inserted", allArgs...)
}

// PartCleared logs a header/footer part reset to an empty paragraph.
func PartCleared(ctx context.Context, document, part string, args ...any) {
	allArgs := []any{
		"document", document,
		"part", part,
	}
	allArgs = append(allArgs, args...)
	LoggerFromContext(ctx).Info("part_cleared", allArgs...)
}

// ArtifactWritten logs a finished output package.
func ArtifactWritten(ctx context.Context, kind, source, dest string, args ...any) {
	allArgs := []any{
		"kind", kind,
		"source", source,
		"dest", dest,
	}
	allArgs = append(allArgs, args...)
	LoggerFromContext(ctx).Info("artifact_written", allArgs...)
}

// Styled logs the outcome of a styling pass over one target.
func Styled(ctx context.Context, path string, tables, paragraphs, spacersRemoved int, args ...any) {
	allArgs := []any{
		"path", path,
		"tables", tables,
		"paragraphs", paragraphs,
		"spacers_removed", spacersRemoved,
	}
	allArgs = append(allArgs, args...)
	LoggerFromContext(ctx).Info("styled", allArgs...)
}

// EvaluationMode logs the degraded-mode warning used when no license applies.
func EvaluationMode(reason string, args ...any) {
	allArgs := []any{
		"reason", reason,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Warn("evaluation_mode", allArgs...)
}
