// Package logging provides structured logging for loaddock using zerolog.
package logging

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	logger *zerolog.Logger
	pretty atomic.Bool
)

func init() {
	// Default to JSON logging at info level
	l := zerolog.New(os.Stderr).With().Timestamp().Logger()
	logger = &l
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Init configures the global logger.
// If debug is true, sets log level to Debug.
// If human is true, uses a human-friendly console writer and enables
// human-readable companion fields on summary events.
func Init(debug bool, human bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	pretty.Store(human)

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

	l := zerolog.New(output).With().Timestamp().Logger()
	logger = &l
}

// L returns the base logger.
func L() *zerolog.Logger {
	return logger
}

// WithStep returns a logger with the run step field set.
func WithStep(step string) zerolog.Logger {
	return logger.With().Str("step", step).Logger()
}

// IsPrettyMode reports whether human-readable companion fields should be
// attached to log events.
func IsPrettyMode() bool {
	return pretty.Load()
}

// SetPrettyMode overrides the pretty-mode flag (useful for testing).
func SetPrettyMode(on bool) {
	pretty.Store(on)
}

// SetLogger allows overriding the global logger (useful for testing).
func SetLogger(l zerolog.Logger) {
	logger = &l
}
