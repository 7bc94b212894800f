package middleware

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// PaymentRateLimit limits mutating vault calls per partner using Redis if
// available. Keys roll over every minute; cache failures fail open.
func PaymentRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 10
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		participant, _ := c.Locals("participant_id").(string)
		if participant == "" {
			participant = c.IP()
		}
		key := "rl:vault:" + participant
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err == nil && cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many vault operations, try again later")
		}
		return c.Next()
	}
}
