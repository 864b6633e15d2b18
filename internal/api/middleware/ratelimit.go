package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/followsync/pkg/logger"
	"github.com/d60-Lab/followsync/pkg/response"
)

// UserLimiter 按用户的令牌桶，空闲超过 idle 的桶会被回收
type UserLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	idle     time.Duration
	limiters map[string]*userBucket
	now      func() time.Time
}

type userBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewUserLimiter(perSecond float64, burst int) *UserLimiter {
	return &UserLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idle:     10 * time.Minute,
		limiters: make(map[string]*userBucket),
		now:      time.Now,
	}
}

// Allow 消耗 userID 的一个令牌
func (l *UserLimiter) Allow(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b, ok := l.limiters[userID]
	if !ok {
		l.sweep(now)
		b = &userBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[userID] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (l *UserLimiter) sweep(now time.Time) {
	for id, b := range l.limiters {
		if now.Sub(b.lastSeen) > l.idle {
			delete(l.limiters, id)
		}
	}
}

// RateLimit 限制关注/取关频率，需在 Auth 之后使用；perSecond 为 0 表示不限
func RateLimit(l *UserLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || l.limit == 0 {
			c.Next()
			return
		}
		userID := UserID(c)
		if !l.Allow(userID) {
			logger.Warn("relation mutation rate limited", zap.String("user", userID), zap.String("path", c.FullPath()))
			response.TooManyRequests(c, "too many requests, slow down")
			return
		}
		c.Next()
	}
}
