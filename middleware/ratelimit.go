package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"fileswift/config"
	"fileswift/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const BypassHeader = "X-RateLimit-Bypass"

// CounterStore is the shared fixed-window counter behind the limiter. Incr
// returns the count after incrementing; the implementation sets the window
// expiry only on the increment that creates the key.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type RedisCounterStore struct {
	redis *redis.Client
}

func NewRedisCounterStore(redisClient *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{redis: redisClient}
}

func (s *RedisCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := s.redis.Expire(ctx, key, window).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// RateLimitMiddleware gates the upload entry points with a per-client-IP
// fixed window. Preflight and health traffic is always exempt, as is anything
// carrying the configured bypass token. If the counter store is unreachable
// the request is allowed: availability wins over strict enforcement.
func RateLimitMiddleware(store CounterStore, cfg *config.RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		if cfg.BypassToken != "" && c.GetHeader(BypassHeader) == cfg.BypassToken {
			c.Next()
			return
		}

		window := time.Duration(cfg.WindowSeconds) * time.Second
		key := "rate_limit:ip:" + c.ClientIP()

		count, err := store.Incr(c.Request.Context(), key, window)
		if err != nil {
			logger.Warnf("rate limit store unreachable, allowing request: %v", err)
			c.Next()
			return
		}

		remaining := cfg.MaxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.MaxRequests))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if count > cfg.MaxRequests {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "Rate limit exceeded",
				"message":    "Too many requests. Please wait before trying again.",
				"retryAfter": cfg.WindowSeconds,
			})
			return
		}

		c.Next()
	}
}
