package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

type ZerologAdapter struct {
	logger zerolog.Logger
}

func NewZerolog(writer io.Writer, level zerolog.Level) *ZerologAdapter {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.DurationFieldInteger = true

	logger := zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &ZerologAdapter{logger: logger}
}

// NewConsoleLogger writes human readable lines to stderr, used by the CLI.
func NewConsoleLogger(level zerolog.Level) *ZerologAdapter {
	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}
	return NewZerolog(consoleWriter, level)
}

// NewJSONLogger writes one JSON object per line to stdout, used by the server.
func NewJSONLogger(level zerolog.Level) *ZerologAdapter {
	return NewZerolog(os.Stdout, level)
}

// Discard returns a logger that drops everything.
func Discard() *ZerologAdapter {
	return NewZerolog(io.Discard, zerolog.Disabled)
}

// ParseLevel maps a config or env value to a zerolog level. Unknown values
// fall back to info.
func ParseLevel(value string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (z *ZerologAdapter) Info(component, message string, fields Fields) {
	z.emit(z.logger.Info(), component, message, fields)
}

func (z *ZerologAdapter) Error(component string, err error, fields Fields) {
	event := z.logger.Error()
	if !event.Enabled() {
		return
	}
	z.emit(event.Err(err), component, "operation failed", fields)
}

func (z *ZerologAdapter) Warning(component, message string, fields Fields) {
	z.emit(z.logger.Warn(), component, message, fields)
}

func (z *ZerologAdapter) Debug(component, message string, fields Fields) {
	z.emit(z.logger.Debug(), component, message, fields)
}

func (z *ZerologAdapter) emit(event *zerolog.Event, component, message string, fields Fields) {
	if !event.Enabled() {
		return
	}

	event = event.Str("component", component)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(message)
}
