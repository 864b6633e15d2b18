package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	m := NewTokenManager("0123456789abcdef", "followsync", time.Hour)

	tok, err := m.Issue("u1")
	require.NoError(t, err)

	uid, err := m.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)
}

func TestParseRejects(t *testing.T) {
	m := NewTokenManager("0123456789abcdef", "followsync", time.Hour)
	other := NewTokenManager("fedcba9876543210", "followsync", time.Hour)
	tok, err := other.Issue("u1")
	require.NoError(t, err)

	_, err = m.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Parse("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = m.Parse("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseExpired(t *testing.T) {
	m := NewTokenManager("0123456789abcdef", "followsync", time.Minute)
	m.now = func() time.Time { return time.Now().Add(-time.Hour) }
	tok, err := m.Issue("u1")
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHash(t *testing.T) {
	h, err := HashPassword("secret")
	require.NoError(t, err)
	assert.True(t, CheckPassword(h, "secret"))
	assert.False(t, CheckPassword(h, "other"))
}
