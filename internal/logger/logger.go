// Package logger wires the process-wide zerolog instance.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Setup builds the root logger. format selects the encoding: "pretty" wraps
// stdout in a console writer for local development, anything else stays raw
// JSON. An unparseable level falls back to info.
func Setup(level, format string) zerolog.Logger {
	out := io.Writer(os.Stdout)
	if format == "pretty" {
		out = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)

	return zerolog.New(out).
		With().
		Timestamp().
		Caller().
		Logger()
}
