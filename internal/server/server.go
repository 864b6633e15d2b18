// Package server 组装关系链服务：仓储、缓存、异步冗余与 HTTP 路由
package server

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/d60-Lab/followsync/config"
	"github.com/d60-Lab/followsync/internal/api/handler"
	"github.com/d60-Lab/followsync/internal/api/router"
	"github.com/d60-Lab/followsync/internal/cache"
	"github.com/d60-Lab/followsync/internal/repository"
	"github.com/d60-Lab/followsync/internal/service"
	"github.com/d60-Lab/followsync/pkg/auth"
)

const (
	replicatorQueue   = 10000
	replicatorWorkers = 4
)

// Server 已装配好的服务
type Server struct {
	Engine   *gin.Engine
	Tokens   *auth.TokenManager
	Users    repository.UserRepository
	Relation service.RelationshipService

	stopReplicator func(context.Context) error
}

// New rdb 为 nil 时不启用计数缓存
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *Server {
	userRepo := repository.NewUserRepository(db)
	followRepo := repository.NewFollowRepository(db)
	fanRepo := repository.NewFanRepository(db)

	var counts *cache.CountCache
	if rdb != nil {
		counts = cache.NewCountCache(rdb, cfg.Redis.CountTTL)
	}

	replicator := service.NewFanReplicator(fanRepo, replicatorQueue)
	workers := replicatorWorkers
	if cfg.Database.Driver == "sqlite" {
		workers = 1
	}
	stop := replicator.Start(workers)

	relService := service.NewRelationshipService(userRepo, followRepo, fanRepo, replicator, counts)
	tokens := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)

	return &Server{
		Engine:         router.Setup(cfg, handler.New(relService), tokens),
		Tokens:         tokens,
		Users:          userRepo,
		Relation:       relService,
		stopReplicator: stop,
	}
}

// Shutdown 排空粉丝表冗余队列
func (s *Server) Shutdown(ctx context.Context) error {
	return s.stopReplicator(ctx)
}
