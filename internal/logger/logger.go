// Package logger provides leveled structured logging.
package logger

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var defaultLogger atomic.Pointer[zerolog.Logger]

// Init initializes the default logger on stderr with the specified level
// ("debug", "info", "warn", "error") and format ("json" or "text").
func Init(level string, format string) {
	InitWriter(os.Stderr, level, format)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, level string, format string) {
	lvl := parseLevel(level)

	out := w
	if strings.ToLower(format) == "text" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	l := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	defaultLogger.Store(&l)
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// L returns the default logger, or a disabled one before Init.
func L() *zerolog.Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	nop := zerolog.Nop()
	return &nop
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return L().With().Str("component", name).Logger()
}

func Debug(format string, args ...interface{}) {
	if l := defaultLogger.Load(); l != nil {
		l.Debug().Msgf(format, args...)
	}
}

func Info(format string, args ...interface{}) {
	if l := defaultLogger.Load(); l != nil {
		l.Info().Msgf(format, args...)
	}
}

func Warn(format string, args ...interface{}) {
	if l := defaultLogger.Load(); l != nil {
		l.Warn().Msgf(format, args...)
	}
}

func Error(format string, args ...interface{}) {
	if l := defaultLogger.Load(); l != nil {
		l.Error().Msgf(format, args...)
	}
}
