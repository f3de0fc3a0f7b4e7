// Package logging builds the zap logger and carries it through contexts.
package logging

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

// New builds a logger at the given level. Development loggers write
// human-readable console output; production loggers write JSON.
func New(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// WithLogger returns a context carrying logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the context's logger, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

func Debugw(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Sugar().Debugw(msg, keysAndValues...)
}

func Infow(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Sugar().Infow(msg, keysAndValues...)
}

func Warnw(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Sugar().Warnw(msg, keysAndValues...)
}

func Errorw(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Sugar().Errorw(msg, keysAndValues...)
}
