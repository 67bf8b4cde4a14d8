package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/storefront/pkg/mylogger"
	"github.com/sakashimaa/storefront/services/storefront/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	payments service.PaymentService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewPaymentHandler(payments service.PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		validate: validator.New(),
		logger:   logger,
	}
}

type CreatePaymentInput struct {
	OrderID int64           `json:"order_id" validate:"required,gt=0"`
	Amount  decimal.Decimal `json:"amount"`
}

type VerifyPaymentInput struct {
	OrderID           int64  `json:"order_id" validate:"required,gt=0"`
	RazorpayOrderID   string `json:"razorpay_order_id" validate:"required"`
	RazorpayPaymentID string `json:"razorpay_payment_id" validate:"required"`
	RazorpaySignature string `json:"razorpay_signature" validate:"required,hexadecimal"`
}

type PaymentFailureInput struct {
	OrderID int64  `json:"order_id" validate:"required,gt=0"`
	Error   string `json:"error" validate:"max=1000"`
}

type RefundInput struct {
	OrderID int64           `json:"order_id" validate:"required,gt=0"`
	Amount  decimal.Decimal `json:"amount"`
	Reason  string          `json:"reason" validate:"required,max=500"`
}

func (h *PaymentHandler) CreateOrder(c *fiber.Ctx) error {
	userID, _, err := currentUser(c)
	if err != nil {
		return err
	}

	input := new(CreatePaymentInput)
	if ok, err := bind(c, h.validate, input); !ok {
		return err
	}

	intent, err := h.payments.CreatePaymentIntent(c.UserContext(), userID, input.OrderID, input.Amount)
	if err != nil {
		return fail(c, h.logger, "create payment order", err)
	}

	return respond(c, fiber.StatusOK, "", fiber.Map{"payment": intent})
}

func (h *PaymentHandler) Verify(c *fiber.Ctx) error {
	userID, _, err := currentUser(c)
	if err != nil {
		return err
	}

	input := new(VerifyPaymentInput)
	if ok, err := bind(c, h.validate, input); !ok {
		return err
	}

	order, err := h.payments.VerifyPayment(c.UserContext(), userID, service.VerifyPaymentInput{
		OrderID:          input.OrderID,
		GatewayOrderID:   input.RazorpayOrderID,
		GatewayPaymentID: input.RazorpayPaymentID,
		Signature:        input.RazorpaySignature,
	})
	if err != nil {
		return fail(c, h.logger, "verify payment", err)
	}

	mylogger.Info(
		c.UserContext(),
		h.logger,
		"payment verified",
		zap.Int64("order_id", order.ID),
	)

	return respond(c, fiber.StatusOK, "Payment verified successfully", fiber.Map{"order": order})
}

func (h *PaymentHandler) Failure(c *fiber.Ctx) error {
	userID, _, err := currentUser(c)
	if err != nil {
		return err
	}

	input := new(PaymentFailureInput)
	if ok, err := bind(c, h.validate, input); !ok {
		return err
	}

	details := input.Error
	if details == "" {
		details = "Payment failed"
	}

	order, err := h.payments.RecordPaymentFailure(c.UserContext(), userID, input.OrderID, details)
	if err != nil {
		return fail(c, h.logger, "record payment failure", err)
	}

	return respond(c, fiber.StatusOK, "Payment failure recorded", fiber.Map{"order": order})
}

func (h *PaymentHandler) Refund(c *fiber.Ctx) error {
	adminID, _, err := currentUser(c)
	if err != nil {
		return err
	}

	input := new(RefundInput)
	if ok, err := bind(c, h.validate, input); !ok {
		return err
	}

	order, err := h.payments.ProcessRefund(c.UserContext(), adminID, input.OrderID, input.Amount, input.Reason)
	if err != nil {
		return fail(c, h.logger, "process refund", err)
	}

	return respond(c, fiber.StatusOK, "Refund processed successfully", fiber.Map{"order": order})
}

func (h *PaymentHandler) History(c *fiber.Ctx) error {
	userID, _, err := currentUser(c)
	if err != nil {
		return err
	}

	page, err := h.payments.PaymentHistory(c.UserContext(), userID, c.QueryInt("page", 1), c.QueryInt("limit", 10))
	if err != nil {
		return fail(c, h.logger, "payment history", err)
	}

	return respond(c, fiber.StatusOK, "", fiber.Map{
		"payments":   page.Items,
		"pagination": pagination(page),
	})
}
