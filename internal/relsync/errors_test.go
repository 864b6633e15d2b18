package relsync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &Error{Kind: KindConflict, Op: "follow", TargetID: "2", Message: "already following"})

	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrRejected)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, "wrapped: follow 2: conflict: already following", err.Error())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKind(0), KindOf(nil))
	assert.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindNetwork, KindOf(errors.New("dial tcp: refused")))
	assert.Equal(t, KindUnauthorized, KindOf(NewError(KindUnauthorized, "snapshot", "", nil)))
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify(context.Background(), "follow", "2", nil))

	cause := errors.New("connection reset")
	got := classify(context.Background(), "follow", "2", cause)
	assert.Equal(t, KindNetwork, got.Kind)
	assert.ErrorIs(t, got, cause)
	assert.Equal(t, "follow 2: network_error: connection reset", got.Error())

	got = classify(context.Background(), "unfollow", "2", &Error{Kind: KindConflict, Message: "not following"})
	assert.Equal(t, KindConflict, got.Kind)
	assert.Equal(t, "not following", got.Message)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	got = classify(ctx, "follow", "2", cause)
	assert.Equal(t, KindTimeout, got.Kind)
	assert.ErrorIs(t, got, ErrTimeout)
	assert.NotEmpty(t, got.Message)
}

func TestErrorMessageFallback(t *testing.T) {
	assert.Equal(t, "busy: busy", ErrBusy.Error())
	assert.Equal(t, "hydrate: timeout: deadline", (&Error{Kind: KindTimeout, Op: "hydrate", Err: errors.New("deadline")}).Error())
	assert.False(t, KindBusy.Rollback())
	assert.True(t, KindTimeout.Rollback())
}
