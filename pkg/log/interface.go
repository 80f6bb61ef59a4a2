// Package log provides the structured logging interface used by the churn
// pipeline, backed by zerolog.
//
// Example usage:
//
//	logger := log.GetLoggerWithName("PCA").With(log.ModelNameKey, "PCA")
//	logger.Info("PCA completed",
//	    log.OperationKey, log.OperationFit,
//	    log.ComponentsKey, 7,
//	)
package log

import (
	"context"
)

// Logger is a leveled, structured logger. Fields are alternating key/value
// pairs. Error treats a leading error value in fields specially.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)

	// Error logs at error level. If the first field is an error it is
	// attached as the error of the record.
	Error(msg string, fields ...any)

	// With returns a Logger that adds fields to every record.
	With(fields ...any) Logger

	// Enabled reports whether records at level would be emitted.
	Enabled(ctx context.Context, level Level) bool
}

// Level is a logging level. Values match slog.Level.
type Level int

const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider creates loggers that share one configuration.
type LoggerProvider interface {
	GetLogger() Logger
	GetLoggerWithName(name string) Logger
	SetLevel(level Level)
}
