package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger creates the process-wide structured logger. Unknown levels fall
// back to info rather than failing startup.
func NewLogger(level string) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "authgate").
		Logger()

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	return logger.Level(lvl)
}
