package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	scigoErrors "github.com/ezoic/churn/pkg/errors"
)

type zerologLogger struct {
	logger zerolog.Logger
}

func toZerologLevel(level Level) zerolog.Level {
	switch {
	case level <= LevelDebug:
		return zerolog.DebugLevel
	case level <= LevelInfo:
		return zerolog.InfoLevel
	case level <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func addFields(e *zerolog.Event, fields []any) *zerolog.Event {
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		switch v := fields[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		case zerolog.LogObjectMarshaler:
			e = e.Object(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	return e
}

func (z *zerologLogger) Debug(msg string, fields ...any) {
	addFields(z.logger.Debug(), fields).Msg(msg)
}

func (z *zerologLogger) Info(msg string, fields ...any) {
	addFields(z.logger.Info(), fields).Msg(msg)
}

func (z *zerologLogger) Warn(msg string, fields ...any) {
	addFields(z.logger.Warn(), fields).Msg(msg)
}

func (z *zerologLogger) Error(msg string, fields ...any) {
	e := z.logger.Error()
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			e = e.Err(err)
			var m zerolog.LogObjectMarshaler
			if scigoErrors.As(err, &m) {
				e = e.Object("error_detail", m)
			}
			fields = fields[1:]
		}
	}
	addFields(e, fields).Msg(msg)
}

func (z *zerologLogger) With(fields ...any) Logger {
	ctx := z.logger.With()
	for i := 0; i+1 < len(fields); i += 2 {
		ctx = ctx.Interface(fmt.Sprint(fields[i]), fields[i+1])
	}
	return &zerologLogger{logger: ctx.Logger()}
}

func (z *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return toZerologLevel(level) >= z.logger.GetLevel()
}

// ZerologProvider hands out zerolog-backed loggers writing JSON lines to a
// shared writer.
type ZerologProvider struct {
	mu   sync.Mutex
	base zerolog.Logger
}

// NewZerologProvider returns a provider writing to stderr at level.
func NewZerologProvider(level Level) *ZerologProvider {
	return NewZerologProviderWithWriter(os.Stderr, level)
}

// NewZerologProviderWithWriter returns a provider writing to w at level.
func NewZerologProviderWithWriter(w io.Writer, level Level) *ZerologProvider {
	return &ZerologProvider{
		base: zerolog.New(w).Level(toZerologLevel(level)).With().Timestamp().Logger(),
	}
}

// GetLogger implements LoggerProvider.
func (p *ZerologProvider) GetLogger() Logger {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &zerologLogger{logger: p.base}
}

// GetLoggerWithName implements LoggerProvider.
func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &zerologLogger{logger: p.base.With().Str(ComponentKey, name).Logger()}
}

// SetLevel implements LoggerProvider. Loggers handed out earlier keep their level.
func (p *ZerologProvider) SetLevel(level Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = p.base.Level(toZerologLevel(level))
}

// Zerolog exposes the underlying logger for libraries that take one directly.
func (p *ZerologProvider) Zerolog() zerolog.Logger {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.base
}

var globalProvider atomic.Value // LoggerProvider

type providerBox struct{ p LoggerProvider }

// SetProvider replaces the process-wide provider.
func SetProvider(p LoggerProvider) {
	globalProvider.Store(providerBox{p: p})
}

// Provider returns the process-wide provider, creating an info-level zerolog
// provider on first use.
func Provider() LoggerProvider {
	if b, ok := globalProvider.Load().(providerBox); ok {
		return b.p
	}
	p := NewZerologProvider(LevelInfo)
	globalProvider.CompareAndSwap(nil, providerBox{p: p})
	return globalProvider.Load().(providerBox).p
}

// GetLogger returns a logger from the process-wide provider.
func GetLogger() Logger {
	return Provider().GetLogger()
}

// GetLoggerWithName returns a named logger from the process-wide provider.
func GetLoggerWithName(name string) Logger {
	return Provider().GetLoggerWithName(name)
}
