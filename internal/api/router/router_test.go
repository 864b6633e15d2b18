package router_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/followsync/internal/testutil"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func call(t *testing.T, srv *testutil.Server, method, path, token string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestFollowRoutes(t *testing.T) {
	srv := testutil.NewServer(t, testutil.Config(t), "u1", "u2")
	tok := srv.Token(t, "u1")

	code, env := call(t, srv, http.MethodPost, "/api/v1/follow/u2", tok)
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.JSONEq(t, `{"ok":true,"followers_count":1}`, string(env.Data))

	code, env = call(t, srv, http.MethodPost, "/api/v1/follow/u2", tok)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "already following this user", env.Message)

	code, _ = call(t, srv, http.MethodPost, "/api/v1/follow/u1", tok)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, srv, http.MethodPost, "/api/v1/follow/ghost", tok)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = call(t, srv, http.MethodDelete, "/api/v1/unfollow/u2", tok)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"ok":true,"followers_count":0}`, string(env.Data))

	code, _ = call(t, srv, http.MethodDelete, "/api/v1/unfollow/u2", tok)
	assert.Equal(t, http.StatusConflict, code)
}

func TestRoutesRequireToken(t *testing.T) {
	srv := testutil.NewServer(t, testutil.Config(t), "u1", "u2")

	code, env := call(t, srv, http.MethodPost, "/api/v1/follow/u2", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "missing bearer token", env.Message)

	code, _ = call(t, srv, http.MethodGet, "/api/v1/profile", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestSnapshotAndProfile(t *testing.T) {
	srv := testutil.NewServer(t, testutil.Config(t), "u1", "u2", "u3")
	tok := srv.Token(t, "u1")

	code, _ := call(t, srv, http.MethodPost, "/api/v1/follow/u3", tok)
	require.Equal(t, http.StatusOK, code)
	code, _ = call(t, srv, http.MethodPost, "/api/v1/follow/u1", srv.Token(t, "u2"))
	require.Equal(t, http.StatusOK, code)

	code, env := call(t, srv, http.MethodGet, "/api/v1/relations/snapshot?user_ids=u2,u3", tok)
	require.Equal(t, http.StatusOK, code)
	var snap struct {
		UserID         string `json:"user_id"`
		FollowingCount int64  `json:"following_count"`
		FollowersCount int64  `json:"followers_count"`
		Users          []struct {
			ID             string `json:"id"`
			FollowersCount int64  `json:"followers_count"`
			IsFollowing    bool   `json:"is_following"`
		} `json:"users"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, "u1", snap.UserID)
	assert.Equal(t, int64(1), snap.FollowingCount)
	assert.Equal(t, int64(1), snap.FollowersCount)
	require.Len(t, snap.Users, 2)
	byID := map[string]bool{}
	for _, u := range snap.Users {
		byID[u.ID] = u.IsFollowing
	}
	assert.Equal(t, map[string]bool{"u2": false, "u3": true}, byID)

	code, env = call(t, srv, http.MethodGet, "/api/v1/profile", tok)
	require.Equal(t, http.StatusOK, code)
	var profile struct {
		ID             string `json:"id"`
		FollowersCount int64  `json:"followers_count"`
		FollowingCount int64  `json:"following_count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.Equal(t, "u1", profile.ID)
	assert.Equal(t, int64(1), profile.FollowersCount)
	assert.Equal(t, int64(1), profile.FollowingCount)

	code, env = call(t, srv, http.MethodGet, "/api/v1/relations/u1/following", tok)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"page":1,"page_size":10,"list":["u3"]}`, string(env.Data))
}

func TestMutationsRateLimited(t *testing.T) {
	cfg := testutil.Config(t)
	cfg.RateLimit.MutationsPerSecond = 0.001
	cfg.RateLimit.Burst = 1
	srv := testutil.NewServer(t, cfg, "u1", "u2", "u3")
	tok := srv.Token(t, "u1")

	code, _ := call(t, srv, http.MethodPost, "/api/v1/follow/u2", tok)
	assert.Equal(t, http.StatusOK, code)
	code, _ = call(t, srv, http.MethodPost, "/api/v1/follow/u3", tok)
	assert.Equal(t, http.StatusTooManyRequests, code)

	// reads are not limited
	code, _ = call(t, srv, http.MethodGet, "/api/v1/profile", tok)
	assert.Equal(t, http.StatusOK, code)

	// limits are per user
	code, _ = call(t, srv, http.MethodPost, "/api/v1/follow/u3", srv.Token(t, "u2"))
	assert.Equal(t, http.StatusOK, code)
}
