// Package logger configures zerolog for the OCR service: pretty console
// output in development, JSON to stdout everywhere else.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the service-wide zerolog instance. Subsystems derive their
// own tagged loggers with WithComponent rather than sharing this one.
type Logger struct {
	zerolog.Logger
}

// New builds the root logger. Every line carries a timestamp and the
// service name; deployed environments emit JSON for log shippers.
func New(serviceName, environment string) *Logger {
	var out io.Writer = os.Stdout
	if environment == "development" {
		out = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	root := zerolog.New(out).With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	return &Logger{Logger: root}
}

// WithComponent tags every line with the subsystem that produced it,
// e.g. "gateway" or "fetcher".
func (l *Logger) WithComponent(component string) *Logger {
	child := l.With().Str("component", component).Logger()
	return &Logger{Logger: child}
}
