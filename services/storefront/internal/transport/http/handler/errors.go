package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/storefront/services/storefront/internal/auth"
	"github.com/sakashimaa/storefront/services/storefront/internal/domain"
	"github.com/sakashimaa/storefront/services/storefront/internal/repository"
	"github.com/sakashimaa/storefront/services/storefront/internal/service"
	"github.com/sony/gobreaker"
)

type errorMapping struct {
	target  error
	status  int
	message string
}

// errorTable is checked in order. An empty message means err.Error() is safe to show.
var errorTable = []errorMapping{
	{repository.ErrOrderNotFound, fiber.StatusNotFound, "Order not found"},
	{repository.ErrProductNotFound, fiber.StatusNotFound, "Product not found"},
	{repository.ErrUserNotFound, fiber.StatusNotFound, "User not found"},
	{repository.ErrUserAlreadyExists, fiber.StatusConflict, "User already exists"},

	{domain.ErrForbidden, fiber.StatusForbidden, ""},
	{domain.ErrNotProductOwner, fiber.StatusForbidden, ""},

	{domain.ErrInvalidTransition, fiber.StatusBadRequest, ""},
	{domain.ErrReturnWindowExpired, fiber.StatusBadRequest, "Return window has expired (30 days)"},
	{domain.ErrExchangeWindowExpired, fiber.StatusBadRequest, "Exchange window has expired (15 days)"},
	{domain.ErrInsufficientStock, fiber.StatusBadRequest, ""},
	{domain.ErrProductUnavailable, fiber.StatusBadRequest, ""},
	{domain.ErrNothingAvailable, fiber.StatusBadRequest, "None of the items from this order are currently available"},
	{domain.ErrSignatureMismatch, fiber.StatusBadRequest, "Payment verification failed"},
	{domain.ErrRefundNotAllowed, fiber.StatusBadRequest, "Refund can only be processed for completed payments"},
	{domain.ErrInvalidRefundAmount, fiber.StatusBadRequest, ""},
	{domain.ErrAmountMismatch, fiber.StatusBadRequest, ""},
	{domain.ErrPaymentAlreadyProcessed, fiber.StatusBadRequest, "Payment already processed"},
	{auth.ErrPasswordTooShort, fiber.StatusBadRequest, ""},
	{auth.ErrPasswordTooWeak, fiber.StatusBadRequest, ""},

	{service.ErrInvalidCredentials, fiber.StatusUnauthorized, "Invalid credentials"},
	{service.ErrAccountLocked, fiber.StatusUnauthorized, "Account is locked due to too many failed login attempts"},
	{service.ErrAccountInactive, fiber.StatusUnauthorized, "Account is deactivated"},
	{auth.ErrTokenExpired, fiber.StatusUnauthorized, "Token expired"},
	{auth.ErrTokenInvalid, fiber.StatusUnauthorized, "Invalid token"},

	{gobreaker.ErrOpenState, fiber.StatusServiceUnavailable, "Payment service temporarily unavailable"},
	{gobreaker.ErrTooManyRequests, fiber.StatusServiceUnavailable, "Payment service temporarily unavailable"},
	{domain.ErrUpstreamGateway, fiber.StatusBadGateway, "Payment gateway error"},
}

// StatusFor maps a service error to an HTTP status and client-facing message.
// ok is false for errors that must not leak and should be logged.
func StatusFor(err error) (status int, message string, ok bool) {
	for _, m := range errorTable {
		if !errors.Is(err, m.target) {
			continue
		}

		message = m.message
		if message == "" {
			message = err.Error()
		}

		return m.status, message, true
	}

	return fiber.StatusInternalServerError, "Internal server error", false
}
