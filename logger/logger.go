// Package logger provides the shared zerolog construction used by all
// three binaries.
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// New returns a console-writer zerolog.Logger tagged with the given
// component name (e.g. "worker", "balancer", "supervisor"). Level
// defaults to info; set LOG_LEVEL=debug to raise verbosity.
func New(component string) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: os.Stderr}

	lvl := zerolog.InfoLevel
	if os.Getenv("LOG_LEVEL") == "debug" {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)

	return zerolog.New(out).With().Timestamp().Str("component", component).Logger()
}
