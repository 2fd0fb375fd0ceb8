package safeq

import (
	"context"
	"time"

	"github.com/tendermint/tendermint/libs/log"
)

type contextKey int // local to the safeq module

const (
	contextKeyLogger contextKey = iota
	contextKeyNow
)

// DefaultLogger is used for all context that have not set anything
// themselves.
var DefaultLogger = log.NewNopLogger()

// WithLogger sets the logger for this context.
func WithLogger(ctx context.Context, logger log.Logger) context.Context {
	return context.WithValue(ctx, contextKeyLogger, logger)
}

// WithLogInfo accepts keyvalue pairs, and returns another context like this,
// after passing all the keyvals to the Logger.
func WithLogInfo(ctx context.Context, keyvals ...interface{}) context.Context {
	logger := GetLogger(ctx).With(keyvals...)
	return WithLogger(ctx, logger)
}

// GetLogger returns the currently set logger, or DefaultLogger if none was
// set.
func GetLogger(ctx context.Context) log.Logger {
	val, ok := ctx.Value(contextKeyLogger).(log.Logger)
	if !ok {
		return DefaultLogger
	}
	return val
}

// WithNow pins the wall clock used by the evaluation functions. Tests use it
// to move through recovery delays and mining timeouts.
func WithNow(ctx context.Context, now time.Time) context.Context {
	return context.WithValue(ctx, contextKeyNow, now)
}

// Now returns the time set with WithNow or the current wall clock time.
func Now(ctx context.Context) time.Time {
	if now, ok := ctx.Value(contextKeyNow).(time.Time); ok {
		return now
	}
	return time.Now()
}
