package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/followsync/pkg/auth"
	"github.com/d60-Lab/followsync/pkg/response"
)

// ContextUserID 鉴权后当前用户 ID 在 gin.Context 中的键
const ContextUserID = "user_id"

// Auth 校验 Authorization: Bearer 令牌
func Auth(tm *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			response.Unauthorized(c, auth.ErrMissingToken.Error())
			return
		}
		userID, err := tm.Parse(strings.TrimSpace(token))
		if err != nil {
			response.Unauthorized(c, err.Error())
			return
		}
		c.Set(ContextUserID, userID)
		c.Next()
	}
}

// UserID 返回当前用户 ID
func UserID(c *gin.Context) string { return c.GetString(ContextUserID) }
