// Package logctx provides context-based logger injection and extraction.
//
// Every run carries a logger enriched with its run_id; per-object workers
// derive child loggers carrying the object name. Extracting from the
// context keeps those fields attached through the whole call stack without
// threading a logger argument everywhere.
//
// Usage:
//
//	// At the top level, attach the run-scoped logger:
//	ctx := logctx.WithRun(ctx, baseLogger, runID)
//
//	// In functions, extract the logger:
//	logger := logctx.FromContext(ctx)
//
//	// For a per-object sub-operation:
//	objCtx := logctx.WithObject(ctx, ref.Name)
package logctx

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// loggerKey is the private key type for storing loggers in context.
// Using a private type prevents collisions with other packages.
type loggerKey struct{}

var (
	defaultLogger     zerolog.Logger
	defaultLoggerOnce sync.Once
)

// DefaultLogger returns the process-wide default logger used when no
// context logger is available. This logger outputs JSON to stderr with
// timestamps.
func DefaultLogger() zerolog.Logger {
	defaultLoggerOnce.Do(func() {
		defaultLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	})
	return defaultLogger
}

// WithLogger returns a new context with the given logger attached.
// The logger can be retrieved using FromContext.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext extracts the logger from the context. If the context is nil
// or does not contain a logger, returns the default logger.
//
// This function never returns a zero-value logger or panics.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx == nil {
		return DefaultLogger()
	}
	if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
		return logger
	}
	return DefaultLogger()
}

// WithRun attaches the given base logger enriched with the run_id field.
// All events logged through the returned context belong to that run.
func WithRun(ctx context.Context, base zerolog.Logger, runID string) context.Context {
	logger := base.With().Str("run_id", runID).Logger()
	return WithLogger(ctx, logger)
}

// WithObject returns a new context whose logger carries the object name.
func WithObject(ctx context.Context, name string) context.Context {
	return WithStr(ctx, "object", name)
}

// WithStr returns a new context with a logger that has the specified string field added.
func WithStr(ctx context.Context, key, value string) context.Context {
	logger := FromContext(ctx).With().Str(key, value).Logger()
	return WithLogger(ctx, logger)
}

// WithInt returns a new context with a logger that has the specified int field added.
func WithInt(ctx context.Context, key string, value int) context.Context {
	logger := FromContext(ctx).With().Int(key, value).Logger()
	return WithLogger(ctx, logger)
}

// NewConfiguredLogger creates a new logger with the specified configuration.
// If debug is true, sets log level to Debug.
// If human is true, uses a human-friendly console writer.
func NewConfiguredLogger(debug, human bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	var output zerolog.LevelWriter
	if human {
		output = zerolog.LevelWriterAdapter{Writer: zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			NoColor:    false,
		}}
	} else {
		output = zerolog.LevelWriterAdapter{Writer: os.Stderr}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}
