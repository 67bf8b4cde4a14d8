package middleware

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/storefront/pkg/mylogger"
	"github.com/sakashimaa/storefront/pkg/ratelimit"
	"go.uber.org/zap"
)

// SensitiveOperation throttles per authenticated user. Limiter failures let the request through.
func SensitiveOperation(limiter ratelimit.Limiter, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := UserID(c)
		if !ok {
			return unauthorized(c, "Not authorized, no token", "")
		}

		res, err := limiter.Allow(c.UserContext(), fmt.Sprintf("sensitive:%d", userID))
		if err != nil {
			mylogger.Warn(
				c.UserContext(),
				logger,
				"Rate limiter unavailable, allowing request",
				zap.Int64("user_id", userID),
				zap.Error(err),
			)

			return c.Next()
		}

		c.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if !res.Allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(res.ResetIn.Seconds())+1))

			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"message": "Too many sensitive operations, please try again later",
			})
		}

		return c.Next()
	}
}
