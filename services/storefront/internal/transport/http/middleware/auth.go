package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/storefront/pkg/mylogger"
	"github.com/sakashimaa/storefront/services/storefront/internal/auth"
	"github.com/sakashimaa/storefront/services/storefront/internal/domain"
	"github.com/sakashimaa/storefront/services/storefront/internal/service"
	"go.uber.org/zap"
)

const (
	localUserID = "userID"
	localRole   = "role"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

func unauthorized(c *fiber.Ctx, message, code string) error {
	body := fiber.Map{
		"success": false,
		"message": message,
	}
	if code != "" {
		body["code"] = code
	}

	return c.Status(fiber.StatusUnauthorized).JSON(body)
}

// Protect resolves the bearer token to a user and stores its id and role in locals.
func Protect(authenticator Authenticator, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return unauthorized(c, "Not authorized, no token", "")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return unauthorized(c, "Not authorized, invalid header format", "")
		}

		user, err := authenticator.Authenticate(c.UserContext(), parts[1])
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrTokenExpired):
				return unauthorized(c, "Token expired", "TokenExpired")
			case errors.Is(err, auth.ErrTokenInvalid):
				return unauthorized(c, "Invalid token", "TokenInvalid")
			case errors.Is(err, service.ErrAccountLocked):
				return unauthorized(c, "Account is locked", "")
			case errors.Is(err, service.ErrAccountInactive):
				return unauthorized(c, "Account is deactivated", "")
			}

			mylogger.Error(c.UserContext(), logger, "Authentication failed", zap.Error(err))

			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Internal server error",
			})
		}

		c.Locals(localUserID, user.ID)
		c.Locals(localRole, user.Role)

		return c.Next()
	}
}

// Authorize must run after Protect.
func Authorize(roles ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role := Role(c)
		for _, allowed := range roles {
			if role == allowed {
				return c.Next()
			}
		}

		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"message": "Not authorized to access this route",
		})
	}
}

func UserID(c *fiber.Ctx) (int64, bool) {
	id, ok := c.Locals(localUserID).(int64)
	return id, ok && id != 0
}

func Role(c *fiber.Ctx) domain.Role {
	role, _ := c.Locals(localRole).(domain.Role)
	return role
}
