// Package logger provides structured, context-aware logging backed by zerolog.
package logger

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Level is a logging verbosity level.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// LoggerInterface is the contract every component depends on, never the
// concrete zerolog type, so components stay testable against a fake.
type LoggerInterface interface {
	Debug(ctx context.Context, msg string, kv ...interface{})
	Info(ctx context.Context, msg string, kv ...interface{})
	Warn(ctx context.Context, msg string, kv ...interface{})
	Error(ctx context.Context, msg string, kv ...interface{})
	With(kv ...interface{}) LoggerInterface
}

// Logger is the zerolog-backed implementation of LoggerInterface.
type Logger struct {
	zl zerolog.Logger
}

// New builds a Logger writing to output at the given level. name becomes the
// "service" field on every line; fields are additional static key/values
// attached to every line (nil is fine).
func New(output io.Writer, level Level, name string, fields map[string]interface{}) *Logger {
	if output == nil {
		output = os.Stderr
	}

	zerolog.SetGlobalLevel(toZerologLevel(level))

	ctx := zerolog.New(output).With().Timestamp()
	if name != "" {
		ctx = ctx.Str("service", name)
	}
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}

	return &Logger{zl: ctx.Logger()}
}

func toZerologLevel(level Level) zerolog.Level {
	switch level {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *Logger) Debug(ctx context.Context, msg string, kv ...interface{}) {
	l.log(l.zl.Debug(), msg, kv...)
}

func (l *Logger) Info(ctx context.Context, msg string, kv ...interface{}) {
	l.log(l.zl.Info(), msg, kv...)
}

func (l *Logger) Warn(ctx context.Context, msg string, kv ...interface{}) {
	l.log(l.zl.Warn(), msg, kv...)
}

func (l *Logger) Error(ctx context.Context, msg string, kv ...interface{}) {
	l.log(l.zl.Error(), msg, kv...)
}

// With returns a child logger carrying the given static key/values.
func (l *Logger) With(kv ...interface{}) LoggerInterface {
	ctx := l.zl.With()
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, kv[i+1])
	}
	return &Logger{zl: ctx.Logger()}
}

// log appends kv pairs (key must be a string; odd trailing value is dropped)
// to the event and writes msg.
func (l *Logger) log(ev *zerolog.Event, msg string, kv ...interface{}) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, kv[i+1])
	}
	ev.Msg(msg)
}
