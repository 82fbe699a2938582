// Package blog provides the context-scoped structured logger used by every
// package in the engine, mirroring the teacher's repo/logging.GetContextLoggerFunc
// convention (see apiclient.go: `var log = logging.GetContextLoggerFunc("client")`).
package blog

import (
	"context"
	"os"

	"github.com/rs/zerolog"
)

type loggerContextKey struct{}

// Logger is the subset of zerolog.Logger methods used by this engine.
type Logger = zerolog.Logger

var base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()

// WithLogger returns a child context carrying the given logger, overriding
// whatever GetContextLoggerFunc would otherwise return for it.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, l)
}

// GetContextLoggerFunc returns a function that, given a context, returns a
// *Logger module is the static name that tags every line emitted through it
// (e.g. "mirror", "offsite", "datastore.localfs").
func GetContextLoggerFunc(module string) func(ctx context.Context) *Logger {
	moduleLogger := base.With().Str("module", module).Logger()

	return func(ctx context.Context) *Logger {
		if ctx != nil {
			if l, ok := ctx.Value(loggerContextKey{}).(Logger); ok {
				scoped := l.With().Str("module", module).Logger()
				return &scoped
			}
		}

		return &moduleLogger
	}
}
