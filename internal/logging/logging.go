// Package logging builds the broker's structured logger, grounded in
// the teacher's NewLogger: zerolog with a JSON or console writer,
// timestamps and caller info, one level for the whole process.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger from a level string (debug/info/warn/error)
// and a format string (json/console). Unknown levels fall back to info.
func New(level, format string) zerolog.Logger {
	var zlevel zerolog.Level
	switch level {
	case "debug":
		zlevel = zerolog.DebugLevel
	case "info":
		zlevel = zerolog.InfoLevel
	case "warn":
		zlevel = zerolog.WarnLevel
	case "error":
		zlevel = zerolog.ErrorLevel
	default:
		zlevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(zlevel)

	var output io.Writer = os.Stdout
	if format == "console" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Str("service", "odin-broker").
		Logger()
}
