// Package logger provides the process-wide structured logger for termwebd.
// Every component-scoped logger below attaches a "component" field so log
// aggregation can filter by subsystem without string-matching messages.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the process-wide logger. Initialize must be called once at
// startup before any component logger is used.
var Log zerolog.Logger

// Initialize configures the global logger's level and output format.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().Str("service", "termwebd").Logger()
	Log.Info().Str("level", logLevel.String()).Bool("pretty", pretty).Msg("logger initialized")
}

// GetLogger returns the global logger instance.
func GetLogger() *zerolog.Logger {
	return &Log
}

// Security creates a logger for auth/token-store/rate-limiter events.
func Security() *zerolog.Logger {
	l := Log.With().Str("component", "security").Logger()
	return &l
}

// Gateway creates a logger for the connection gateway.
func Gateway() *zerolog.Logger {
	l := Log.With().Str("component", "gateway").Logger()
	return &l
}

// OAuth creates a logger for the OAuth bridge.
func OAuth() *zerolog.Logger {
	l := Log.With().Str("component", "oauth").Logger()
	return &l
}

// Transfer creates a logger for file-transfer sessions.
func Transfer() *zerolog.Logger {
	l := Log.With().Str("component", "transfer").Logger()
	return &l
}

// Encoder creates a logger for the video encoder / quality controller.
func Encoder() *zerolog.Logger {
	l := Log.With().Str("component", "encoder").Logger()
	return &l
}
