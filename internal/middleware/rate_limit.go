package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// RateLimitMiddleware caps trigger calls per client IP in a fixed window.
// Without a Redis client it lets everything through.
func RateLimitMiddleware(redisClient *redis.Client, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if redisClient == nil || limit <= 0 {
			c.Next()
			return
		}

		key := "whatsapp:rate_limit:" + c.ClientIP()

		ctx := c.Request.Context()
		pipe := redisClient.Pipeline()
		incr := pipe.Incr(ctx, key)
		ttl := pipe.TTL(ctx, key)
		if _, err := pipe.Exec(ctx); err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to execute redis pipeline"})
			return
		}
		// The window starts with the first hit and is never extended.
		if ttl.Val() < 0 {
			if err := redisClient.Expire(ctx, key, window).Err(); err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to set rate limit window"})
				return
			}
		}

		if incr.Val() > int64(limit) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"success": false, "error": "rate limit exceeded"})
			return
		}

		c.Next()
	}
}
