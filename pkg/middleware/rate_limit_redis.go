package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/codecollab/collab-server/pkg/logger"
	"github.com/codecollab/collab-server/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const redisLimiterPrefix = "collab:rl:"

// RedisRateLimitMiddleware is a fixed-window limiter whose counters live in
// Redis, so every instance behind the load balancer shares one budget per
// caller (user id when authenticated, client IP otherwise). A window admits
// floor(rps*window)+burst requests. Redis errors let the request through.
func RedisRateLimitMiddleware(client *redis.Client, rps float64, burst int, window time.Duration) gin.HandlerFunc {
	if client == nil {
		return RateLimitMiddleware(rps, burst)
	}
	windowSeconds := int64(window / time.Second)
	if windowSeconds <= 0 {
		windowSeconds = 1
	}
	allowed := int64(rps*float64(windowSeconds)) + int64(burst)
	ttl := time.Duration(windowSeconds+1) * time.Second

	return func(c *gin.Context) {
		bucket := time.Now().Unix() / windowSeconds
		key := redisLimiterPrefix + rateKey(c) + ":" + strconv.FormatInt(bucket, 10)

		count, err := incrWindow(c.Request.Context(), client, key, ttl)
		if err != nil {
			logger.Warnf("rate limiter: redis unavailable, admitting request: %v", err)
			c.Next()
			return
		}
		if count > allowed {
			metrics.RateLimitRejected.WithLabelValues("redis").Inc()
			c.Header("Retry-After", strconv.FormatInt(windowSeconds, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("redis").Inc()
		c.Next()
	}
}

func incrWindow(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
