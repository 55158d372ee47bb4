package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/worksheet-grader/internal/utils"
)

// RateLimit creates a limiter scoped by identifier. Authenticated callers are
// keyed by token subject and anonymous callers by IP.
func RateLimit(identifier string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Second
	}

	return limiter.New(limiter.Config{
		Max:          max,
		Expiration:   window,
		KeyGenerator: func(c *fiber.Ctx) string { return identifier + ":" + clientKey(c) },
		LimitReached: func(c *fiber.Ctx) error {
			return utils.SendError(c, fiber.StatusTooManyRequests, "too many requests, slow down")
		},
	})
}

func clientKey(c *fiber.Ctx) string {
	if principal, ok := GetPrincipal(c); ok {
		return "sub:" + principal.Subject
	}
	return "ip:" + c.IP()
}
