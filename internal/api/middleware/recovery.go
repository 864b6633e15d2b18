package middleware

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/followsync/pkg/logger"
	"github.com/d60-Lab/followsync/pkg/response"
)

// Recovery 捕获 panic，上报 Sentry（已配置 DSN 时）并返回 500
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := sentry.CurrentHub().Clone()
		hub.Scope().SetRequest(c.Request)
		ctx := sentry.SetHubOnContext(c.Request.Context(), hub)
		c.Request = c.Request.WithContext(ctx)

		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			hub.WithScope(func(scope *sentry.Scope) {
				scope.SetTag("route", c.FullPath())
				if id := UserID(c); id != "" {
					scope.SetUser(sentry.User{ID: id})
				}
				hub.RecoverWithContext(ctx, rec)
			})
			logger.Error("panic recovered", zap.String("path", c.FullPath()), zap.Any("panic", rec))
			c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
				Code:    http.StatusInternalServerError,
				Message: "internal error",
			})
		}()
		c.Next()
	}
}
