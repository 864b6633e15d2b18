package logger

import (
	"fmt"
	"strings"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap/zapcore"
)

// sentryCore 把 Error 及以上级别的日志转发到 Sentry
type sentryCore struct {
	zapcore.LevelEnabler
	fields []zapcore.Field
}

func newSentryCore(enab zapcore.LevelEnabler) *sentryCore {
	return &sentryCore{LevelEnabler: enab}
}

func (c *sentryCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &sentryCore{LevelEnabler: c.LevelEnabler, fields: merged}
}

func (c *sentryCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *sentryCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	hub := sentry.CurrentHub()
	if hub.Client() == nil {
		return nil
	}

	enc := zapcore.NewMapObjectEncoder()
	var errs []string
	for _, f := range append(c.fields, fields...) {
		if f.Type == zapcore.ErrorType {
			if err, ok := f.Interface.(error); ok {
				errs = append(errs, err.Error())
			}
			continue
		}
		f.AddTo(enc)
	}

	event := sentry.NewEvent()
	event.Level = sentry.LevelError
	if ent.Level > zapcore.ErrorLevel {
		event.Level = sentry.LevelFatal
	}
	event.Message = ent.Message
	event.Extra = enc.Fields

	value := ent.Message
	if len(errs) > 0 {
		value = fmt.Sprintf("%s: %s", ent.Message, strings.Join(errs, "; "))
	}
	event.Exception = []sentry.Exception{{
		Value:      value,
		Type:       ent.Caller.Function,
		Stacktrace: sentry.NewStacktrace(),
	}}
	hub.CaptureEvent(event)
	return nil
}

func (c *sentryCore) Sync() error { return nil }
