package router

import (
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/followsync/config"
	"github.com/d60-Lab/followsync/internal/api/handler"
	"github.com/d60-Lab/followsync/internal/api/middleware"
	"github.com/d60-Lab/followsync/pkg/auth"
)

// Setup 注册路由；所有 /api/v1 接口需要 Bearer 令牌
func Setup(cfg *config.Config, h *handler.Handler, tm *auth.TokenManager) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(
		middleware.Recovery(),
		otelgin.Middleware(cfg.Telemetry.ServiceName),
		middleware.Logger(),
		gzip.Gzip(gzip.DefaultCompression),
	)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	limiter := middleware.NewUserLimiter(cfg.RateLimit.MutationsPerSecond, cfg.RateLimit.Burst)

	v1 := r.Group("/api/v1", middleware.Auth(tm))
	{
		v1.POST("/follow/:user_id", middleware.RateLimit(limiter), h.Follow)
		v1.DELETE("/unfollow/:user_id", middleware.RateLimit(limiter), h.Unfollow)
		v1.GET("/profile", h.Profile)

		rel := v1.Group("/relations")
		rel.GET("/snapshot", h.Snapshot)
		rel.GET("/:user_id/following", h.ListFollowing)
		rel.GET("/:user_id/fans", h.ListFans)
	}
	return r
}
