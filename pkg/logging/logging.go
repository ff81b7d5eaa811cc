// Package logging configures the process-wide zerolog logger used by both
// the client and server engines.
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger that writes human-readable, colorized lines
// to stderr when pretty is true, and newline-delimited JSON otherwise. The
// level string is parsed with zerolog's own names ("debug", "info",
// "warn", "error"); an unrecognized level falls back to info.
func New(levelName string, pretty bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(levelName))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
