// Package ratelimit throttles API clients with a Redis fixed-window
// counter. Redis being unreachable fails open so the API stays up without
// its cache tier.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"arbscan/internal/config"
)

// Counter is the window-counter surface the limiter needs; *redis.Client
// satisfies it.
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

type Limiter struct {
	Redis  Counter
	Logger *zap.Logger
	Config config.RateLimitConfig

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func (l *Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func keyFor(clientIP string, window time.Duration, now time.Time) string {
	bucket := now.Unix() / int64(window.Seconds())
	return "ratelimit:" + clientIP + ":" + strconv.FormatInt(bucket, 10)
}

// Middleware counts requests per client IP per window and rejects with 429
// once the configured budget is spent. Health endpoints are exempt.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || l.Redis == nil || l.Config.Requests <= 0 || l.Config.Window <= 0 {
			c.Next()
			return
		}
		switch c.FullPath() {
		case "/healthz", "/readyz":
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := keyFor(c.ClientIP(), l.Config.Window, l.now())
		count, err := l.Redis.Incr(ctx, key).Result()
		if err != nil {
			if l.Logger != nil {
				l.Logger.Warn("rate limit check failed, allowing request", zap.Error(err))
			}
			c.Next()
			return
		}
		if count == 1 {
			l.Redis.Expire(ctx, key, l.Config.Window)
		}
		if count > int64(l.Config.Requests) {
			retryAfter := int(l.Config.Window.Seconds())
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    http.StatusTooManyRequests,
				"message": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
