package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/storefront/pkg/db"
	generalDomain "github.com/sakashimaa/storefront/pkg/domain"
	"github.com/sakashimaa/storefront/pkg/mylogger"
	"github.com/sakashimaa/storefront/pkg/outbox/worker"
	"github.com/sakashimaa/storefront/services/storefront/internal/domain"
	"github.com/sakashimaa/storefront/services/storefront/internal/metrics"
	"github.com/sakashimaa/storefront/services/storefront/internal/repository"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OrderService interface {
	CreateOrder(ctx context.Context, userID int64, input CreateOrderInput) (*domain.Order, error)
	GetOrder(ctx context.Context, actorID int64, role domain.Role, orderID int64) (*domain.Order, error)
	ListOrders(ctx context.Context, userID int64, filter ListOrdersFilter) (domain.Page[domain.Order], error)
	CancelOrder(ctx context.Context, actorID, orderID int64, reason string) (*domain.Order, error)
	RequestReturn(ctx context.Context, actorID, orderID int64, reason string) (*domain.Order, error)
	RequestExchange(ctx context.Context, actorID, orderID int64, reason string, newProductID int64) (*domain.Order, error)
	Reorder(ctx context.Context, actorID, orderID int64) (*ReorderResult, error)
	TrackOrder(ctx context.Context, actorID int64, role domain.Role, orderID int64) (*domain.TrackingView, error)
	UpdateStatus(ctx context.Context, adminID, orderID int64, input UpdateStatusInput) (*domain.Order, error)
	UpdateReturnStatus(ctx context.Context, adminID, orderID int64, status domain.ReturnStatus, note string) (*domain.Order, error)
	UpdateExchangeStatus(ctx context.Context, adminID, orderID int64, status domain.ExchangeStatus, note string) (*domain.Order, error)
}

type OrderLine struct {
	ProductID int64
	Quantity  int32
	Variant   domain.Variant
}

type Coupon struct {
	Code     string
	Discount decimal.Decimal
}

type CreateOrderInput struct {
	Items           []OrderLine
	ShippingAddress domain.Address
	BillingAddress  *domain.Address
	PaymentMethod   domain.PaymentMethod
	Coupon          *Coupon
	Notes           string
}

type ListOrdersFilter struct {
	Page   int
	Limit  int
	Status domain.OrderStatus
}

type UpdateStatusInput struct {
	Status         domain.OrderStatus
	Note           string
	TrackingNumber string
	Carrier        string
	Location       string
}

type ReorderResult struct {
	Order       *domain.Order            `json:"order"`
	Unavailable []domain.UnavailableItem `json:"unavailable_items"`
}

// Policy holds the post-delivery windows.
type Policy struct {
	ReturnWindow   time.Duration
	ExchangeWindow time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		ReturnWindow:   domain.ReturnWindow,
		ExchangeWindow: domain.ExchangeWindow,
	}
}

type orderService struct {
	pool       *pgxpool.Pool
	logger     *zap.Logger
	orderRepo  repository.OrderRepository
	userRepo   repository.UserRepository
	outboxRepo worker.OutboxRepository
	products   repository.ProductRepository
	inventory  *inventory
	stock      StockObserver
	metrics    *metrics.Metrics
	policy     Policy
	now        func() time.Time
	tracer     trace.Tracer
}

type OrderServiceDeps struct {
	Pool     *pgxpool.Pool
	Logger   *zap.Logger
	Orders   repository.OrderRepository
	Products repository.ProductRepository
	Users    repository.UserRepository
	Outbox   worker.OutboxRepository
	Stock    StockObserver
	Metrics  *metrics.Metrics
	Policy   Policy
	Clock    func() time.Time
}

func NewOrderService(deps OrderServiceDeps) OrderService {
	if deps.Stock == nil {
		deps.Stock = noopStockObserver{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Policy == (Policy{}) {
		deps.Policy = DefaultPolicy()
	}

	return &orderService{
		pool:       deps.Pool,
		logger:     deps.Logger,
		orderRepo:  deps.Orders,
		userRepo:   deps.Users,
		outboxRepo: deps.Outbox,
		products:   deps.Products,
		inventory:  &inventory{products: deps.Products, outboxRepo: deps.Outbox},
		stock:      deps.Stock,
		metrics:    deps.Metrics,
		policy:     deps.Policy,
		now:        deps.Clock,
		tracer:     otel.Tracer("order_service"),
	}
}

func (s *orderService) CreateOrder(ctx context.Context, userID int64, input CreateOrderInput) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CreateOrder")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", userID),
		attribute.Int("items_count", len(input.Items)),
		attribute.String("payment_method", string(input.PaymentMethod)),
	)

	recipient := lookupRecipient(ctx, s.userRepo, s.logger, userID)

	var order *domain.Order
	err := db.WithRetry(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		var err error
		order, err = s.placeOrder(ctx, tx, userID, input, recipient)
		return err
	})
	if err != nil {
		span.RecordError(err)

		mylogger.Warn(
			ctx,
			s.logger,
			"Failed to create order",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)

		return nil, err
	}

	s.metrics.OrdersCreated.Inc()
	s.stock.StockChanged(ctx, productIDs(linesOf(order.Items))...)

	mylogger.Info(
		ctx,
		s.logger,
		"Order created",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
	)

	return order, nil
}

// placeOrder reserves stock, prices the order and persists it together with its first history entry and events.
func (s *orderService) placeOrder(
	ctx context.Context,
	tx pgx.Tx,
	userID int64,
	input CreateOrderInput,
	recipient generalDomain.Recipient,
) (*domain.Order, error) {
	lines := make([]stockLine, 0, len(input.Items))
	for _, line := range input.Items {
		lines = append(lines, stockLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}

	products, err := s.inventory.reserve(ctx, tx, lines)
	if err != nil {
		return nil, err
	}

	items := make([]domain.OrderItem, 0, len(input.Items))
	for _, line := range input.Items {
		product := products[line.ProductID]

		items = append(items, domain.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Image:     product.PrimaryImage(),
			Quantity:  line.Quantity,
			Price:     product.Price,
			Variant:   line.Variant,
			Status:    domain.ItemStatusPending,
		})
	}

	discount := decimal.Zero
	couponCode := ""
	if input.Coupon != nil {
		couponCode = input.Coupon.Code
		discount = input.Coupon.Discount
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}

	pricing := domain.CalculatePricing(items, discount)
	if pricing.Total.IsNegative() {
		pricing = domain.CalculatePricing(items, pricing.Subtotal.Add(pricing.Shipping).Add(pricing.Tax))
	}

	billing := input.ShippingAddress
	billing.SameAsShipping = true
	if input.BillingAddress != nil && !input.BillingAddress.SameAsShipping {
		billing = *input.BillingAddress
	}

	now := s.now().UTC()
	number, err := s.orderRepo.NextOrderNumber(ctx, tx, now)
	if err != nil {
		return nil, err
	}

	estimated := now.Add(domain.DeliveryEstimate)
	order := &domain.Order{
		OrderNumber:     number,
		UserID:          userID,
		Items:           items,
		ShippingAddress: input.ShippingAddress,
		BillingAddress:  billing,
		Pricing:         pricing,
		Payment: domain.Payment{
			Method: input.PaymentMethod,
			Status: domain.PaymentStatusPending,
		},
		Status:            domain.OrderStatusPending,
		Tracking:          domain.Tracking{History: []domain.TrackingEvent{}},
		CouponCode:        couponCode,
		Notes:             input.Notes,
		EstimatedDelivery: &estimated,
		StockReserved:     true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	entry := order.Annotate("Order placed successfully", &userID, now)

	if err := s.orderRepo.Create(ctx, tx, order); err != nil {
		return nil, err
	}

	if err := s.orderRepo.AppendHistory(ctx, tx, order.ID, entry); err != nil {
		return nil, err
	}

	if err := s.inventory.record(ctx, tx, "order_created", order.ID, lines, -1); err != nil {
		return nil, err
	}

	if err := emitEvent(ctx, tx, s.outboxRepo, aggregateOrder, order.ID, generalDomain.EventOrderCreated, generalDomain.TopicOrderEvents, generalDomain.OrderCreatedEvent{
		OrderID:           order.ID,
		OrderNumber:       order.OrderNumber,
		Recipient:         recipient,
		Items:             eventItems(order.Items),
		Total:             order.Pricing.Total,
		PaymentMethod:     string(order.Payment.Method),
		EstimatedDelivery: estimated,
	}); err != nil {
		return nil, err
	}

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, actorID int64, role domain.Role, orderID int64) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.GetOrder")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.Int64("actor_id", actorID),
	)

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if !canView(order, actorID, role) {
		return nil, domain.ErrForbidden
	}

	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, userID int64, filter ListOrdersFilter) (domain.Page[domain.Order], error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.ListOrders")
	defer span.End()

	page, limit, offset := domain.NormalizePage(filter.Page, filter.Limit)

	span.SetAttributes(
		attribute.Int64("user_id", userID),
		attribute.Int("page", page),
		attribute.Int("limit", limit),
		attribute.String("status", string(filter.Status)),
	)

	orders, total, err := s.orderRepo.ListByUser(ctx, userID, filter.Status, limit, offset)
	if err != nil {
		span.RecordError(err)
		return domain.Page[domain.Order]{}, err
	}

	return domain.NewPage(orders, page, limit, total), nil
}

func (s *orderService) CancelOrder(ctx context.Context, actorID, orderID int64, reason string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CancelOrder")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.Int64("actor_id", actorID),
	)

	var (
		order    *domain.Order
		released []stockLine
	)

	err := db.WithRetry(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		var err error
		released = nil

		order, err = s.lockOwned(ctx, tx, actorID, orderID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		entry, err := order.Apply(domain.EventCancel, "Order cancelled: "+reason, &actorID, now)
		if err != nil {
			return err
		}

		order.Cancellation = &domain.Cancellation{
			Reason:       reason,
			CancelledBy:  actorID,
			CancelledAt:  now,
			RefundStatus: domain.CancelRefundState,
		}
		order.SetItemStatus(domain.ItemStatusCancelled)

		if order.StockReserved {
			released = linesOf(order.Items)

			if err := s.inventory.release(ctx, tx, released); err != nil {
				return err
			}
			if err := s.inventory.record(ctx, tx, "order_cancelled", order.ID, released, 1); err != nil {
				return err
			}

			order.StockReserved = false
		}

		if err := s.persist(ctx, tx, order, entry); err != nil {
			return err
		}

		if err := s.orderRepo.UpdateItemStatuses(ctx, tx, order.ID, domain.ItemStatusCancelled); err != nil {
			return err
		}

		return emitEvent(ctx, tx, s.outboxRepo, aggregateOrder, order.ID, generalDomain.EventOrderCancelled, generalDomain.TopicOrderEvents, generalDomain.OrderCancelledEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Recipient:   lookupRecipient(ctx, s.userRepo, s.logger, order.UserID),
			Reason:      reason,
			Items:       eventItems(order.Items),
		})
	})
	if err != nil {
		span.RecordError(err)
		mylogger.Warn(ctx, s.logger, "Cancel order failed", zap.Int64("order_id", orderID), zap.Error(err))

		return nil, err
	}

	s.metrics.OrdersCancelled.Inc()
	if len(released) > 0 {
		s.stock.StockChanged(ctx, productIDs(released)...)
	}

	return order, nil
}

func (s *orderService) RequestReturn(ctx context.Context, actorID, orderID int64, reason string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.RequestReturn")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.Int64("actor_id", actorID),
	)

	var order *domain.Order
	err := db.WithRetry(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		var err error
		order, err = s.lockOwned(ctx, tx, actorID, orderID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if _, err := domain.Transition(order.Status, domain.EventRequestReturn); err != nil {
			return err
		}
		if !order.WithinWindow(now, s.policy.ReturnWindow) {
			return domain.ErrReturnWindowExpired
		}

		entry, err := order.Apply(domain.EventRequestReturn, "Return requested: "+reason, &actorID, now)
		if err != nil {
			return err
		}

		order.Return = &domain.ReturnRequest{
			Reason:      reason,
			Status:      domain.ReturnRequested,
			RequestedAt: now,
		}

		if err := s.persist(ctx, tx, order, entry); err != nil {
			return err
		}

		return emitEvent(ctx, tx, s.outboxRepo, aggregateOrder, order.ID, generalDomain.EventReturnRequested, generalDomain.TopicOrderEvents, generalDomain.ReturnRequestedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Recipient:   lookupRecipient(ctx, s.userRepo, s.logger, order.UserID),
			Reason:      reason,
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return order, nil
}

func (s *orderService) RequestExchange(ctx context.Context, actorID, orderID int64, reason string, newProductID int64) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.RequestExchange")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.Int64("actor_id", actorID),
		attribute.Int64("new_product_id", newProductID),
	)

	var order *domain.Order
	err := db.WithRetry(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		var err error
		order, err = s.lockOwned(ctx, tx, actorID, orderID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if _, err := domain.Transition(order.Status, domain.EventRequestExchange); err != nil {
			return err
		}
		if !order.WithinWindow(now, s.policy.ExchangeWindow) {
			return domain.ErrExchangeWindowExpired
		}

		replacement, err := s.products.GetByID(ctx, newProductID)
		if err != nil {
			if errors.Is(err, repository.ErrProductNotFound) {
				return &domain.UnavailableError{ProductID: newProductID}
			}
			return err
		}
		if !replacement.IsActive {
			return &domain.UnavailableError{ProductID: newProductID}
		}

		entry, err := order.Apply(domain.EventRequestExchange, "Exchange requested: "+reason, &actorID, now)
		if err != nil {
			return err
		}

		order.Exchange = &domain.ExchangeRequest{
			Reason:          reason,
			Status:          domain.ExchangeRequested,
			RequestedAt:     now,
			NewProductID:    newProductID,
			PriceDifference: replacement.Price.Sub(order.Pricing.Subtotal),
		}

		if err := s.persist(ctx, tx, order, entry); err != nil {
			return err
		}

		return emitEvent(ctx, tx, s.outboxRepo, aggregateOrder, order.ID, generalDomain.EventExchangeRequested, generalDomain.TopicOrderEvents, generalDomain.ExchangeRequestedEvent{
			OrderID:         order.ID,
			OrderNumber:     order.OrderNumber,
			Recipient:       lookupRecipient(ctx, s.userRepo, s.logger, order.UserID),
			Reason:          reason,
			NewProductID:    newProductID,
			PriceDifference: order.Exchange.PriceDifference,
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return order, nil
}

// Reorder places a fresh order at current prices for whatever is still purchasable.
func (s *orderService) Reorder(ctx context.Context, actorID, orderID int64) (*ReorderResult, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.Reorder")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.Int64("actor_id", actorID),
	)

	original, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if !original.IsOwnedBy(actorID) {
		return nil, domain.ErrForbidden
	}

	ids := productIDs(linesOf(original.Items))
	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var (
		available   []OrderLine
		unavailable []domain.UnavailableItem
	)

	for _, item := range original.Items {
		product, ok := products[item.ProductID]

		switch {
		case !ok:
			unavailable = append(unavailable, domain.UnavailableItem{ProductID: item.ProductID, Name: item.Name, Reason: "Product no longer exists"})
		case !product.IsActive:
			unavailable = append(unavailable, domain.UnavailableItem{ProductID: item.ProductID, Name: item.Name, Reason: "Product is no longer available"})
		case product.Stock < item.Quantity:
			unavailable = append(unavailable, domain.UnavailableItem{
				ProductID: item.ProductID,
				Name:      item.Name,
				Reason:    fmt.Sprintf("Only %d items available", product.Stock),
			})
		default:
			available = append(available, OrderLine{ProductID: item.ProductID, Quantity: item.Quantity, Variant: item.Variant})
		}
	}

	if len(available) == 0 {
		return nil, &domain.ReorderUnavailableError{Items: unavailable}
	}

	billing := original.BillingAddress
	order, err := s.CreateOrder(ctx, actorID, CreateOrderInput{
		Items:           available,
		ShippingAddress: original.ShippingAddress,
		BillingAddress:  &billing,
		PaymentMethod:   original.Payment.Method,
	})
	if err != nil {
		return nil, err
	}

	if unavailable == nil {
		unavailable = []domain.UnavailableItem{}
	}

	return &ReorderResult{Order: order, Unavailable: unavailable}, nil
}

func (s *orderService) TrackOrder(ctx context.Context, actorID int64, role domain.Role, orderID int64) (*domain.TrackingView, error) {
	order, err := s.GetOrder(ctx, actorID, role, orderID)
	if err != nil {
		return nil, err
	}

	view := order.TrackingView()
	return &view, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, adminID, orderID int64, input UpdateStatusInput) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.UpdateStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.String("status", string(input.Status)),
	)

	event, err := domain.FulfilmentEvent(input.Status)
	if err != nil {
		return nil, err
	}

	var order *domain.Order
	err = db.WithRetry(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		var err error
		order, err = s.orderRepo.GetByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		note := input.Note
		if note == "" {
			note = fmt.Sprintf("Order %s", input.Status)
		}

		now := s.now().UTC()
		entry, err := order.Apply(event, note, &adminID, now)
		if err != nil {
			return err
		}

		var itemStatus domain.ItemStatus
		switch input.Status {
		case domain.OrderStatusShipped:
			if input.TrackingNumber != "" {
				order.Tracking.Number = input.TrackingNumber
			}
			if input.Carrier != "" {
				order.Tracking.Carrier = input.Carrier
			}
			itemStatus = domain.ItemStatusShipped
		case domain.OrderStatusDelivered:
			order.ActualDelivery = &now
			itemStatus = domain.ItemStatusDelivered
		}

		order.Tracking.History = append(order.Tracking.History, domain.TrackingEvent{
			Status:      string(input.Status),
			Location:    input.Location,
			Description: note,
			Timestamp:   now,
		})

		if err := s.persist(ctx, tx, order, entry); err != nil {
			return err
		}

		if itemStatus != "" {
			order.SetItemStatus(itemStatus)
			if err := s.orderRepo.UpdateItemStatuses(ctx, tx, order.ID, itemStatus); err != nil {
				return err
			}
		}

		return s.emitStatusChanged(ctx, tx, order, note)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return order, nil
}

func (s *orderService) UpdateReturnStatus(ctx context.Context, adminID, orderID int64, status domain.ReturnStatus, note string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.UpdateReturnStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.String("return_status", string(status)),
	)

	var (
		order    *domain.Order
		restored []stockLine
	)

	err := db.WithRetry(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		var err error
		restored = nil

		order, err = s.orderRepo.GetByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if order.Return == nil {
			return fmt.Errorf("%w: order has no return request", domain.ErrInvalidTransition)
		}
		if err := domain.NextReturnStatus(order.Return.Status, status); err != nil {
			return err
		}

		now := s.now().UTC()
		message := fmt.Sprintf("Return %s", status)
		if note != "" {
			message += ": " + note
		}

		var entry domain.StatusEntry
		if status == domain.ReturnRejected {
			entry, err = order.Apply(domain.EventReturnRejected, message, &adminID, now)
			if err != nil {
				return err
			}
		} else {
			entry = order.Annotate(message, &adminID, now)
		}

		order.Return.Status = status

		switch status {
		case domain.ReturnApproved:
			order.Return.ApprovedAt = &now
		case domain.ReturnRefunded:
			amount := order.Pricing.Total
			order.Return.RefundAmount = &amount

			if order.StockReserved {
				restored = linesOf(order.Items)

				if err := s.inventory.release(ctx, tx, restored); err != nil {
					return err
				}
				if err := s.inventory.record(ctx, tx, "order_returned", order.ID, restored, 1); err != nil {
					return err
				}

				order.StockReserved = false
			}

			order.SetItemStatus(domain.ItemStatusReturned)
			if err := s.orderRepo.UpdateItemStatuses(ctx, tx, order.ID, domain.ItemStatusReturned); err != nil {
				return err
			}
		}

		if err := s.persist(ctx, tx, order, entry); err != nil {
			return err
		}

		return s.emitStatusChanged(ctx, tx, order, message)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if len(restored) > 0 {
		s.stock.StockChanged(ctx, productIDs(restored)...)
	}

	return order, nil
}

func (s *orderService) UpdateExchangeStatus(ctx context.Context, adminID, orderID int64, status domain.ExchangeStatus, note string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.UpdateExchangeStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.String("exchange_status", string(status)),
	)

	var order *domain.Order
	err := db.WithRetry(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		var err error
		order, err = s.orderRepo.GetByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if order.Exchange == nil {
			return fmt.Errorf("%w: order has no exchange request", domain.ErrInvalidTransition)
		}
		if err := domain.NextExchangeStatus(order.Exchange.Status, status); err != nil {
			return err
		}

		now := s.now().UTC()
		message := fmt.Sprintf("Exchange %s", status)
		if note != "" {
			message += ": " + note
		}

		var entry domain.StatusEntry
		if status == domain.ExchangeRejected {
			entry, err = order.Apply(domain.EventExchangeRejected, message, &adminID, now)
			if err != nil {
				return err
			}
		} else {
			entry = order.Annotate(message, &adminID, now)
		}

		order.Exchange.Status = status

		if err := s.persist(ctx, tx, order, entry); err != nil {
			return err
		}

		return s.emitStatusChanged(ctx, tx, order, message)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return order, nil
}

func (s *orderService) lockOwned(ctx context.Context, tx pgx.Tx, actorID, orderID int64) (*domain.Order, error) {
	order, err := s.orderRepo.GetByIDForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	if !order.IsOwnedBy(actorID) {
		return nil, domain.ErrForbidden
	}

	return order, nil
}

func (s *orderService) persist(ctx context.Context, tx pgx.Tx, order *domain.Order, entry domain.StatusEntry) error {
	return saveOrder(ctx, tx, s.orderRepo, order, entry)
}

// saveOrder writes the order row and its new history entry in the same transaction.
func saveOrder(ctx context.Context, tx pgx.Tx, orders repository.OrderRepository, order *domain.Order, entry domain.StatusEntry) error {
	if err := orders.Update(ctx, tx, order); err != nil {
		return err
	}

	return orders.AppendHistory(ctx, tx, order.ID, entry)
}

func (s *orderService) emitStatusChanged(ctx context.Context, tx pgx.Tx, order *domain.Order, note string) error {
	return emitEvent(ctx, tx, s.outboxRepo, aggregateOrder, order.ID, generalDomain.EventOrderStatusChanged, generalDomain.TopicOrderEvents, generalDomain.OrderStatusChangedEvent{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Recipient:      lookupRecipient(ctx, s.userRepo, s.logger, order.UserID),
		Status:         string(order.Status),
		Note:           note,
		TrackingNumber: order.Tracking.Number,
		Carrier:        order.Tracking.Carrier,
	})
}

func canView(order *domain.Order, actorID int64, role domain.Role) bool {
	return order.IsOwnedBy(actorID) || role == domain.RoleAdmin
}
