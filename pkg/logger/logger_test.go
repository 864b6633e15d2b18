package logger

import (
	"errors"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetAndLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(nil) })

	Debug("hidden")
	Info("shown", zap.String("k", "v"))
	Warn("warned")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "shown", logs.All()[0].Message)
	assert.Equal(t, "v", logs.All()[0].ContextMap()["k"])
}

func TestInitRejectsBadLevel(t *testing.T) {
	assert.Error(t, Init("loud", "json"))
}

type captureTransport struct{ events []*sentry.Event }

func (t *captureTransport) Configure(sentry.ClientOptions) {}

func (t *captureTransport) SendEvent(e *sentry.Event) { t.events = append(t.events, e) }

func (t *captureTransport) Flush(time.Duration) bool { return true }

func (t *captureTransport) Close() {}

func TestSentryCoreForwardsErrors(t *testing.T) {
	tr := &captureTransport{}
	client, err := sentry.NewClient(sentry.ClientOptions{Dsn: "https://key@sentry.example.com/1", Transport: tr})
	require.NoError(t, err)
	hub := sentry.CurrentHub()
	prev := hub.Client()
	hub.BindClient(client)
	t.Cleanup(func() { hub.BindClient(prev) })

	l := zap.New(newSentryCore(zapcore.ErrorLevel)).With(zap.String("user", "u1"))
	l.Warn("ignored")
	l.Error("write failed", zap.Error(errors.New("disk full")))

	require.Len(t, tr.events, 1)
	ev := tr.events[0]
	assert.Equal(t, "write failed", ev.Message)
	assert.Equal(t, "u1", ev.Extra["user"])
	assert.Equal(t, "write failed: disk full", ev.Exception[0].Value)
}
