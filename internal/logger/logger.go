// Package logger provides the structured logger shared by the compiler,
// the CLI and the HTTP service.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger so components can take it as a dependency.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithGroup(name string) Logger
}

// SlogLogger is a Logger implementation that wraps slog.Logger.
type SlogLogger struct {
	logger *slog.Logger
}

// New creates a Logger writing through handler.
func New(handler slog.Handler) Logger {
	return &SlogLogger{logger: slog.New(handler)}
}

// Default writes text records at info level to stderr.
func Default() Logger {
	return Text(os.Stderr, slog.LevelInfo)
}

// Text creates a Logger with the key=value handler.
func Text(w io.Writer, level slog.Level) Logger {
	return New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// JSON creates a Logger with the JSON handler, used by the server.
func JSON(w io.Writer, level slog.Level) Logger {
	return New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: true,
		Level:     level,
	}))
}

// Nop discards everything.
func Nop() Logger {
	return New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ForFormat picks the handler by name: "json" or anything else for text.
func ForFormat(w io.Writer, format, level string) Logger {
	if format == "json" {
		return JSON(w, ParseLevel(level))
	}
	return Text(w, ParseLevel(level))
}

// FromContext retrieves a Logger from the context, or Default.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return logger
	}
	return Default()
}

// WithContext adds the logger to the context.
func WithContext(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

type loggerKey struct{}

func (l *SlogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

func (l *SlogLogger) Info(msg string, args ...any) { l.logger.Info(msg, args...) }

func (l *SlogLogger) Warn(msg string, args ...any) { l.logger.Warn(msg, args...) }

func (l *SlogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{logger: l.logger.With(args...)}
}

func (l *SlogLogger) WithGroup(name string) Logger {
	return &SlogLogger{logger: l.logger.WithGroup(name)}
}

// ParseLevel converts a level name to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
