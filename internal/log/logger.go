package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

func New(environment string) zerolog.Logger {
	logger := newConsole(os.Stdout, environment)

	if environment != "production" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	return logger
}

// NewWithLevel is New with an explicit level; unknown levels fall back to info.
func NewWithLevel(environment, level string) zerolog.Logger {
	logger := New(environment)
	parsed := parseLevel(level)
	zerolog.SetGlobalLevel(parsed)
	return logger.Level(parsed)
}

// NewCLI logs to w without touching the global level, so command output on
// stdout stays clean.
func NewCLI(w io.Writer, environment, level string) zerolog.Logger {
	return newConsole(w, environment).Level(parseLevel(level))
}

func newConsole(w io.Writer, environment string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    environment == "production",
	}

	return zerolog.New(output).With().
		Timestamp().
		Str("env", environment).
		Logger()
}

func parseLevel(level string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}
