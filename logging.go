package notifyexec

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is the diagnostic-output seam used throughout the dispatcher and
// executor. It deliberately exposes only the handful of structured-logging
// calls this module needs, rather than the full zerolog API, so callers can
// plug in any backend without taking a zerolog dependency of their own.
type Logger interface {
	Warn(msg string, fields map[string]any)
	Error(msg string, err error, fields map[string]any)
}

// zerologLogger adapts a zerolog.Logger to the Logger interface. This is the
// default backend: see DESIGN.md for why zerolog, specifically, was chosen.
type zerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog.Logger.
func NewZerologLogger(logger zerolog.Logger) Logger {
	return zerologLogger{logger: logger}
}

func defaultLogger() Logger {
	return zerologLogger{logger: zerolog.New(os.Stderr).With().Timestamp().Logger()}
}

func (z zerologLogger) Warn(msg string, fields map[string]any) {
	z.logger.Warn().Fields(fields).Msg(msg)
}

func (z zerologLogger) Error(msg string, err error, fields map[string]any) {
	z.logger.Error().Err(err).Fields(fields).Msg(msg)
}
