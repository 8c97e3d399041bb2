package impersonate

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/exp/slog"
)

// Level is the severity threshold of a Logger.
type Level int

// The levels of logs.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger is a logger interface that output logs with a format. Its Debugf
// method also receives the certificate diagnostics of the TLS engine.
type Logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
	SetLevel(level Level)
}

// SlogLogger writes through a slog text handler.
type SlogLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

// Debugf logs a message at the Debug level.
func (l *SlogLogger) Debugf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

// Infof logs a message at the Info level.
func (l *SlogLogger) Infof(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

// Warnf logs a message at the Warn level.
func (l *SlogLogger) Warnf(format string, v ...any) {
	l.logger.Warn(fmt.Sprintf(format, v...))
}

// Errorf logs a message at the Error level.
func (l *SlogLogger) Errorf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

// SetLevel sets the log level of the logger.
func (l *SlogLogger) SetLevel(level Level) {
	l.level.Set(level.slog())
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// ParseLevel maps a configuration string to a Level. Unknown names
// select LevelError.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	default:
		return LevelError
	}
}

// NewSlogLogger returns a Logger writing text records to output.
func NewSlogLogger(output io.Writer, level slog.Level) Logger {
	levelVar := &slog.LevelVar{}
	levelVar.Set(level)

	textHandler := slog.NewTextHandler(output, &slog.HandlerOptions{
		Level: levelVar,
	})

	return &SlogLogger{
		logger: slog.New(textHandler),
		level:  levelVar,
	}
}

// NewDefaultLogger returns a text Logger at the given level.
func NewDefaultLogger(output io.Writer, level Level) Logger {
	return NewSlogLogger(output, level.slog())
}

// DefaultLogger logs errors to stderr.
var DefaultLogger Logger = NewSlogLogger(os.Stderr, slog.LevelError)
