package telemetry

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogrusLogger adapts a *logrus.Logger to the telemetry.Logger interface,
// for installing on a Runtime via Options.Logger (the Runtime's own default
// is NoopLogger). Keyvals are expected
// as (key, value, key, value, ...) pairs; non-string keys are skipped.
type LogrusLogger struct {
	logger *logrus.Logger
}

// NewLogrusLogger wraps logger. A nil logger falls back to logrus's
// package-level standard logger.
func NewLogrusLogger(logger *logrus.Logger) Logger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return LogrusLogger{logger: logger}
}

func (l LogrusLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	l.entry(ctx, keyvals).Debug(msg)
}

func (l LogrusLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	l.entry(ctx, keyvals).Info(msg)
}

func (l LogrusLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	l.entry(ctx, keyvals).Warn(msg)
}

func (l LogrusLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	l.entry(ctx, keyvals).Error(msg)
}

func (l LogrusLogger) entry(ctx context.Context, keyvals []any) *logrus.Entry {
	fields := make(logrus.Fields, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		if k, ok := keyvals[i].(string); ok {
			fields[k] = keyvals[i+1]
		}
	}
	return l.logger.WithContext(ctx).WithFields(fields)
}

var _ Logger = LogrusLogger{}
