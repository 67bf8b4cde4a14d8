package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/storefront/pkg/mylogger"
	"github.com/sakashimaa/storefront/pkg/utils"
	"github.com/sakashimaa/storefront/services/storefront/internal/domain"
	"github.com/sakashimaa/storefront/services/storefront/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderHandler struct {
	orders   service.OrderService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewOrderHandler(orders service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		validate: validator.New(),
		logger:   logger,
	}
}

type OrderItemInput struct {
	ProductID int64          `json:"product_id" validate:"required,gt=0"`
	Quantity  int32          `json:"quantity" validate:"required,min=1,max=100"`
	Variant   domain.Variant `json:"variant"`
}

type CouponInput struct {
	Code     string          `json:"code" validate:"required,max=50"`
	Discount decimal.Decimal `json:"discount"`
}

type CreateOrderInput struct {
	Items           []OrderItemInput `json:"items" validate:"required,min=1,dive"`
	ShippingAddress domain.Address   `json:"shipping_address"`
	BillingAddress  *domain.Address  `json:"billing_address" validate:"-"`
	PaymentMethod   string           `json:"payment_method" validate:"required,oneof=razorpay cod wallet upi"`
	Coupon          *CouponInput     `json:"coupon" validate:"omitempty"`
	Notes           string           `json:"notes" validate:"max=500"`
}

type ReasonInput struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type ExchangeInput struct {
	Reason       string `json:"reason" validate:"required,max=500"`
	NewProductID int64  `json:"new_product_id" validate:"required,gt=0"`
}

type UpdateStatusInput struct {
	Status         string `json:"status" validate:"required,oneof=processing shipped delivered"`
	Note           string `json:"note" validate:"max=500"`
	TrackingNumber string `json:"tracking_number" validate:"required_if=Status shipped,max=100"`
	Carrier        string `json:"carrier" validate:"max=100"`
	Location       string `json:"location" validate:"max=200"`
}

type ReturnStatusInput struct {
	Status string `json:"status" validate:"required,oneof=approved rejected picked_up received refunded"`
	Note   string `json:"note" validate:"max=500"`
}

type ExchangeStatusInput struct {
	Status string `json:"status" validate:"required,oneof=approved rejected picked_up received shipped delivered"`
	Note   string `json:"note" validate:"max=500"`
}

func (h *OrderHandler) Create(c *fiber.Ctx) error {
	userID, _, err := currentUser(c)
	if err != nil {
		return err
	}

	input := new(CreateOrderInput)
	if ok, err := bind(c, h.validate, input); !ok {
		return err
	}

	billing := input.BillingAddress
	if billing != nil && !billing.SameAsShipping {
		if err := h.validate.Struct(billing); err != nil {
			return failure(c, fiber.StatusBadRequest, "Validation failed", fiber.Map{
				"errors": utils.FormatValidationError(err),
			})
		}
	}

	lines := make([]service.OrderLine, 0, len(input.Items))
	for _, item := range input.Items {
		lines = append(lines, service.OrderLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Variant:   item.Variant,
		})
	}

	var coupon *service.Coupon
	if input.Coupon != nil {
		coupon = &service.Coupon{Code: input.Coupon.Code, Discount: input.Coupon.Discount}
	}

	order, err := h.orders.CreateOrder(c.UserContext(), userID, service.CreateOrderInput{
		Items:           lines,
		ShippingAddress: input.ShippingAddress,
		BillingAddress:  billing,
		PaymentMethod:   domain.PaymentMethod(input.PaymentMethod),
		Coupon:          coupon,
		Notes:           input.Notes,
	})
	if err != nil {
		return fail(c, h.logger, "create order", err)
	}

	mylogger.Info(
		c.UserContext(),
		h.logger,
		"create order succeeded",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
	)

	return respond(c, fiber.StatusCreated, "Order created successfully", fiber.Map{"order": order})
}

func (h *OrderHandler) List(c *fiber.Ctx) error {
	userID, _, err := currentUser(c)
	if err != nil {
		return err
	}

	status := domain.OrderStatus(c.Query("status"))
	switch status {
	case "", domain.OrderStatusPending, domain.OrderStatusConfirmed, domain.OrderStatusProcessing,
		domain.OrderStatusShipped, domain.OrderStatusDelivered, domain.OrderStatusCancelled,
		domain.OrderStatusReturned, domain.OrderStatusExchanged:
	default:
		return failure(c, fiber.StatusBadRequest, "Invalid status filter", nil)
	}

	page, err := h.orders.ListOrders(c.UserContext(), userID, service.ListOrdersFilter{
		Page:   c.QueryInt("page", 1),
		Limit:  c.QueryInt("limit", 10),
		Status: status,
	})
	if err != nil {
		return fail(c, h.logger, "list orders", err)
	}

	return respond(c, fiber.StatusOK, "", fiber.Map{
		"orders":     page.Items,
		"pagination": pagination(page),
	})
}

func (h *OrderHandler) Get(c *fiber.Ctx) error {
	userID, role, err := currentUser(c)
	if err != nil {
		return err
	}

	orderID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	order, err := h.orders.GetOrder(c.UserContext(), userID, role, orderID)
	if err != nil {
		return fail(c, h.logger, "get order", err)
	}

	return respond(c, fiber.StatusOK, "", fiber.Map{"order": order})
}

func (h *OrderHandler) Cancel(c *fiber.Ctx) error {
	userID, _, err := currentUser(c)
	if err != nil {
		return err
	}

	orderID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	input := new(ReasonInput)
	if ok, err := bind(c, h.validate, input); !ok {
		return err
	}

	order, err := h.orders.CancelOrder(c.UserContext(), userID, orderID, input.Reason)
	if err != nil {
		return fail(c, h.logger, "cancel order", err)
	}

	return respond(c, fiber.StatusOK, "Order cancelled successfully", fiber.Map{"order": order})
}

func (h *OrderHandler) Return(c *fiber.Ctx) error {
	userID, _, err := currentUser(c)
	if err != nil {
		return err
	}

	orderID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	input := new(ReasonInput)
	if ok, err := bind(c, h.validate, input); !ok {
		return err
	}

	order, err := h.orders.RequestReturn(c.UserContext(), userID, orderID, input.Reason)
	if err != nil {
		return fail(c, h.logger, "request return", err)
	}

	return respond(c, fiber.StatusOK, "Return request submitted successfully", fiber.Map{"order": order})
}

func (h *OrderHandler) Exchange(c *fiber.Ctx) error {
	userID, _, err := currentUser(c)
	if err != nil {
		return err
	}

	orderID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	input := new(ExchangeInput)
	if ok, err := bind(c, h.validate, input); !ok {
		return err
	}

	order, err := h.orders.RequestExchange(c.UserContext(), userID, orderID, input.Reason, input.NewProductID)
	if err != nil {
		return fail(c, h.logger, "request exchange", err)
	}

	return respond(c, fiber.StatusOK, "Exchange request submitted successfully", fiber.Map{"order": order})
}

func (h *OrderHandler) Reorder(c *fiber.Ctx) error {
	userID, _, err := currentUser(c)
	if err != nil {
		return err
	}

	orderID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	result, err := h.orders.Reorder(c.UserContext(), userID, orderID)
	if err != nil {
		return fail(c, h.logger, "reorder", err)
	}

	message := "Order created successfully"
	if len(result.Unavailable) > 0 {
		message = "Order created with available items"
	}

	return respond(c, fiber.StatusCreated, message, fiber.Map{
		"order":             result.Order,
		"unavailable_items": result.Unavailable,
	})
}

func (h *OrderHandler) Track(c *fiber.Ctx) error {
	userID, role, err := currentUser(c)
	if err != nil {
		return err
	}

	orderID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	view, err := h.orders.TrackOrder(c.UserContext(), userID, role, orderID)
	if err != nil {
		return fail(c, h.logger, "track order", err)
	}

	return respond(c, fiber.StatusOK, "", fiber.Map{"tracking": view})
}

func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	adminID, _, err := currentUser(c)
	if err != nil {
		return err
	}

	orderID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	input := new(UpdateStatusInput)
	if ok, err := bind(c, h.validate, input); !ok {
		return err
	}

	order, err := h.orders.UpdateStatus(c.UserContext(), adminID, orderID, service.UpdateStatusInput{
		Status:         domain.OrderStatus(input.Status),
		Note:           input.Note,
		TrackingNumber: input.TrackingNumber,
		Carrier:        input.Carrier,
		Location:       input.Location,
	})
	if err != nil {
		return fail(c, h.logger, "update order status", err)
	}

	return respond(c, fiber.StatusOK, "Order status updated", fiber.Map{"order": order})
}

func (h *OrderHandler) UpdateReturnStatus(c *fiber.Ctx) error {
	adminID, _, err := currentUser(c)
	if err != nil {
		return err
	}

	orderID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	input := new(ReturnStatusInput)
	if ok, err := bind(c, h.validate, input); !ok {
		return err
	}

	order, err := h.orders.UpdateReturnStatus(c.UserContext(), adminID, orderID, domain.ReturnStatus(input.Status), input.Note)
	if err != nil {
		return fail(c, h.logger, "update return status", err)
	}

	return respond(c, fiber.StatusOK, "Return status updated", fiber.Map{"order": order})
}

func (h *OrderHandler) UpdateExchangeStatus(c *fiber.Ctx) error {
	adminID, _, err := currentUser(c)
	if err != nil {
		return err
	}

	orderID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	input := new(ExchangeStatusInput)
	if ok, err := bind(c, h.validate, input); !ok {
		return err
	}

	order, err := h.orders.UpdateExchangeStatus(c.UserContext(), adminID, orderID, domain.ExchangeStatus(input.Status), input.Note)
	if err != nil {
		return fail(c, h.logger, "update exchange status", err)
	}

	return respond(c, fiber.StatusOK, "Exchange status updated", fiber.Map{"order": order})
}
