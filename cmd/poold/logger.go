// logger.go - zerolog setup for the pool daemon.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// newLogger builds a console logger at the configured level. Unknown levels
// fall back to info.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
}
