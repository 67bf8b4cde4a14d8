package handler

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/storefront/pkg/mylogger"
	"github.com/sakashimaa/storefront/pkg/utils"
	"github.com/sakashimaa/storefront/services/storefront/internal/domain"
	"github.com/sakashimaa/storefront/services/storefront/internal/transport/http/middleware"
	"go.uber.org/zap"
)

func respond(c *fiber.Ctx, status int, message string, payload fiber.Map) error {
	body := fiber.Map{"success": true}
	if message != "" {
		body["message"] = message
	}
	for k, v := range payload {
		body[k] = v
	}

	return c.Status(status).JSON(body)
}

func failure(c *fiber.Ctx, status int, message string, extra fiber.Map) error {
	body := fiber.Map{
		"success": false,
		"message": message,
	}
	for k, v := range extra {
		body[k] = v
	}

	return c.Status(status).JSON(body)
}

// fail writes the envelope for a service error. Unknown errors are logged and hidden.
func fail(c *fiber.Ctx, logger *zap.Logger, op string, err error) error {
	status, message, known := StatusFor(err)
	if !known {
		mylogger.Error(c.UserContext(), logger, op+" failed", zap.Error(err))
		return failure(c, status, message, nil)
	}

	mylogger.Warn(
		c.UserContext(),
		logger,
		op+" rejected",
		zap.Int("http_status", status),
		zap.Error(err),
	)

	var reorderErr *domain.ReorderUnavailableError
	if errors.As(err, &reorderErr) {
		return failure(c, status, message, fiber.Map{"unavailable_items": reorderErr.Items})
	}

	return failure(c, status, message, nil)
}

// ErrorHandler renders errors returned from handlers and middleware in the response envelope.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return failure(c, fiberErr.Code, fiberErr.Message, nil)
		}

		return fail(c, logger, "request", err)
	}
}

// bind parses and validates the body into dst. It writes the 400 itself and returns false on failure.
func bind(c *fiber.Ctx, validate *validator.Validate, dst any) (bool, error) {
	if err := c.BodyParser(dst); err != nil {
		return false, failure(c, fiber.StatusBadRequest, "Invalid request body", nil)
	}

	if err := validate.Struct(dst); err != nil {
		return false, failure(c, fiber.StatusBadRequest, "Validation failed", fiber.Map{
			"errors": utils.FormatValidationError(err),
		})
	}

	return true, nil
}

func pagination[T any](page domain.Page[T]) fiber.Map {
	return fiber.Map{
		"page":  page.Page,
		"limit": page.Limit,
		"total": page.Total,
		"pages": page.Pages,
	}
}

func pathID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid "+name)
	}

	return id, nil
}

func currentUser(c *fiber.Ctx) (int64, domain.Role, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return 0, "", fiber.NewError(fiber.StatusUnauthorized, "Not authorized, no token")
	}

	return id, middleware.Role(c), nil
}
