// Package testutil starts a complete relation server for tests.
package testutil

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/followsync/config"
	"github.com/d60-Lab/followsync/internal/model"
	"github.com/d60-Lab/followsync/internal/server"
	"github.com/d60-Lab/followsync/pkg/database"
)

// Server is a relation server on an in-memory sqlite database and miniredis.
type Server struct {
	*server.Server
	HTTP   *httptest.Server
	Config *config.Config
	Redis  *miniredis.Miniredis
}

// Config returns a test configuration backed by an in-memory database named
// after the test.
func Config(t testing.TB) *config.Config {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return &config.Config{
		Server:    config.ServerConfig{Addr: ":0", Mode: "test"},
		Database:  config.DatabaseConfig{Driver: "sqlite", DSN: "file:" + name + "?mode=memory&cache=shared"},
		Redis:     config.RedisConfig{CountTTL: time.Minute},
		JWT:       config.JWTConfig{Secret: "test-secret-0123456789", Issuer: "followsync-test", TTL: time.Hour},
		Log:       config.LogConfig{Level: "error", Format: "json"},
		Gateway:   config.GatewayConfig{RequestTimeout: 2 * time.Second, Burst: 1},
		Sync:      config.SyncConfig{ConfirmTimeout: 2 * time.Second},
		RateLimit: config.RateLimitConfig{Burst: 1},
		Telemetry: config.TelemetryConfig{ServiceName: "followsync-test"},
	}
}

// NewServer starts a server with the given user ids already registered. The
// server is closed when the test ends.
func NewServer(t testing.TB, cfg *config.Config, userIDs ...string) *Server {
	t.Helper()
	db, err := database.InitDB(cfg)
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}

	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	srv := server.New(cfg, db, rdb)
	for _, id := range userIDs {
		u := &model.User{ID: id, Username: "user-" + id, Email: id + "@example.com", Password: "secret"}
		if err := srv.Users.Create(context.Background(), u); err != nil {
			t.Fatalf("create user %s: %v", id, err)
		}
	}

	hs := httptest.NewServer(srv.Engine)
	cfg.Gateway.BaseURL = hs.URL
	t.Cleanup(func() {
		hs.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		_ = rdb.Close()
		mr.Close()
		_ = sqlDB.Close()
	})
	return &Server{Server: srv, HTTP: hs, Config: cfg, Redis: mr}
}

// Token mints a bearer token for userID.
func (s *Server) Token(t testing.TB, userID string) string {
	t.Helper()
	tok, err := s.Tokens.Issue(userID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}
