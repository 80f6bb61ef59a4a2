package log

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	scigoErrors "github.com/ezoic/churn/pkg/errors"
)

// SetupLogger configures process-wide logging: the zerolog provider used by
// the pipeline, the slog default, and the sink for pkg/errors warnings.
func SetupLogger(loglevel string, w io.Writer) error {
	level, err := ParseLevel(loglevel)
	if err != nil {
		return err
	}

	provider := NewZerologProviderWithWriter(w, level)
	SetProvider(provider)

	ops := slog.HandlerOptions{
		AddSource: true,
		Level:     slog.Level(level),
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				attr.Key = "severity"
			case slog.MessageKey:
				attr.Key = "message"
			}
			return attr
		},
	}
	slog.SetDefault(slog.New(WithStacktrace(slog.NewJSONHandler(w, &ops))))

	warnings := provider.GetLoggerWithName("warnings")
	scigoErrors.SetZerologWarnFunc(func(warning error) {
		warnings.Warn(warning.Error(), "warning", warning)
	})
	return nil
}

// ParseLevel converts a level name to a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, scigoErrors.NewValidationError("log_level", fmt.Sprintf("unknown level %q", level), level)
	}
}

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// ErrAttr is a wrapper to pass err to slog.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}
