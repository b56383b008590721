package logger

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New returns the process logger: human-readable console output during
// development, JSON everywhere else.
func New(development bool) zerolog.Logger {
	if development {
		return log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
