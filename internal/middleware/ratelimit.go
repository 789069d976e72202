package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/daddykev/stardust-distro-sub000/internal/logger"
	"github.com/daddykev/stardust-distro-sub000/pkg/response"
)

// RateLimiter is a fixed-window counter in Redis, shared by every API
// instance.
type RateLimiter struct {
	redis *redis.Client
	log   logger.Logger
}

func NewRateLimiter(redisClient *redis.Client, log logger.Logger) *RateLimiter {
	return &RateLimiter{redis: redisClient, log: log}
}

// Limit creates a rate limiting middleware keyed by the authenticated caller
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := GetUserID(c)
		if userID == "" {
			return c.Next() // Skip rate limiting if no user (auth middleware should catch this)
		}

		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, userID)
		ctx := c.UserContext()

		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			// Fail open while Redis is unavailable
			rl.log.Warn("Rate limiter unavailable", logger.String("key", key), logger.Error(err))
			return c.Next()
		}

		// Set expiration on first request
		if count == 1 {
			rl.redis.Expire(ctx, key, window)
		}

		if count > int64(maxRequests) {
			ttl, _ := rl.redis.TTL(ctx, key).Result()
			c.Set("Retry-After", fmt.Sprintf("%d", int(ttl.Seconds())))
			return response.RateLimited(c)
		}

		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", maxRequests))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", maxRequests-int(count)))

		return c.Next()
	}
}

// DeliveryLimit caps delivery triggers per caller per hour
func (rl *RateLimiter) DeliveryLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("deliveries", maxPerHour, time.Hour)
}
