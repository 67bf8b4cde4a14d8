package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/storefront/pkg/db"
	generalDomain "github.com/sakashimaa/storefront/pkg/domain"
	"github.com/sakashimaa/storefront/pkg/mylogger"
	"github.com/sakashimaa/storefront/pkg/outbox/worker"
	"github.com/sakashimaa/storefront/services/storefront/internal/domain"
	"github.com/sakashimaa/storefront/services/storefront/internal/gateway"
	"github.com/sakashimaa/storefront/services/storefront/internal/metrics"
	"github.com/sakashimaa/storefront/services/storefront/internal/repository"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type PaymentService interface {
	CreatePaymentIntent(ctx context.Context, userID, orderID int64, amount decimal.Decimal) (*PaymentIntent, error)
	VerifyPayment(ctx context.Context, userID int64, input VerifyPaymentInput) (*domain.Order, error)
	RecordPaymentFailure(ctx context.Context, userID, orderID int64, details string) (*domain.Order, error)
	ProcessRefund(ctx context.Context, adminID, orderID int64, amount decimal.Decimal, reason string) (*domain.Order, error)
	PaymentHistory(ctx context.Context, userID int64, page, limit int) (domain.Page[domain.Order], error)
}

type PaymentIntent struct {
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	KeyID          string `json:"key_id"`
}

type VerifyPaymentInput struct {
	OrderID          int64
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

type paymentService struct {
	pool       *pgxpool.Pool
	logger     *zap.Logger
	orderRepo  repository.OrderRepository
	userRepo   repository.UserRepository
	outboxRepo worker.OutboxRepository
	gateway    gateway.PaymentGateway
	inventory  *inventory
	stock      StockObserver
	metrics    *metrics.Metrics
	currency   string
	now        func() time.Time
	tracer     trace.Tracer
}

type PaymentServiceDeps struct {
	Pool     *pgxpool.Pool
	Logger   *zap.Logger
	Orders   repository.OrderRepository
	Products repository.ProductRepository
	Users    repository.UserRepository
	Outbox   worker.OutboxRepository
	Gateway  gateway.PaymentGateway
	Stock    StockObserver
	Metrics  *metrics.Metrics
	Currency string
	Clock    func() time.Time
}

func NewPaymentService(deps PaymentServiceDeps) PaymentService {
	if deps.Stock == nil {
		deps.Stock = noopStockObserver{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Currency == "" {
		deps.Currency = "INR"
	}

	return &paymentService{
		pool:       deps.Pool,
		logger:     deps.Logger,
		orderRepo:  deps.Orders,
		userRepo:   deps.Users,
		outboxRepo: deps.Outbox,
		gateway:    deps.Gateway,
		inventory:  &inventory{products: deps.Products, outboxRepo: deps.Outbox},
		stock:      deps.Stock,
		metrics:    deps.Metrics,
		currency:   deps.Currency,
		now:        deps.Clock,
		tracer:     otel.Tracer("payment_service"),
	}
}

func (s *paymentService) CreatePaymentIntent(ctx context.Context, userID, orderID int64, amount decimal.Decimal) (*PaymentIntent, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.CreatePaymentIntent")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.Int64("user_id", userID),
		attribute.String("amount", amount.String()),
	)

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := checkPayable(order, userID); err != nil {
		return nil, err
	}

	if !amount.Equal(order.Pricing.Total) {
		return nil, fmt.Errorf("%w: expected %s", domain.ErrAmountMismatch, order.Pricing.Total.StringFixed(2))
	}

	paise := domain.ToPaise(order.Pricing.Total)

	gatewayOrderID, err := s.gateway.CreateOrder(ctx, paise, s.currency, order.OrderNumber)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var reserved []stockLine
	err = db.WithRetry(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		reserved = nil

		locked, err := s.orderRepo.GetByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if err := checkPayable(locked, userID); err != nil {
			return err
		}

		if !locked.StockReserved {
			reserved = linesOf(locked.Items)

			if _, err := s.inventory.reserve(ctx, tx, reserved); err != nil {
				return err
			}
			if err := s.inventory.record(ctx, tx, "payment_retry", locked.ID, reserved, -1); err != nil {
				return err
			}

			locked.StockReserved = true
		}

		locked.Payment.GatewayOrderID = gatewayOrderID
		locked.Payment.Status = domain.PaymentStatusPending
		locked.Payment.FailureReason = ""
		locked.UpdatedAt = s.now().UTC()

		return s.orderRepo.Update(ctx, tx, locked)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if len(reserved) > 0 {
		s.stock.StockChanged(ctx, productIDs(reserved)...)
	}

	return &PaymentIntent{
		GatewayOrderID: gatewayOrderID,
		Amount:         paise,
		Currency:       s.currency,
		KeyID:          s.gateway.KeyID(),
	}, nil
}

func checkPayable(order *domain.Order, userID int64) error {
	if !order.IsOwnedBy(userID) {
		return domain.ErrForbidden
	}

	switch order.Payment.Status {
	case domain.PaymentStatusPending, domain.PaymentStatusFailed:
	default:
		return domain.ErrPaymentAlreadyProcessed
	}

	if order.Status != domain.OrderStatusPending {
		return fmt.Errorf("%w: order is %s", domain.ErrInvalidTransition, order.Status)
	}

	return nil
}

func (s *paymentService) VerifyPayment(ctx context.Context, userID int64, input VerifyPaymentInput) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.VerifyPayment")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", input.OrderID),
		attribute.String("gateway_order_id", input.GatewayOrderID),
		attribute.String("gateway_payment_id", input.GatewayPaymentID),
	)

	if !s.gateway.VerifySignature(input.GatewayOrderID, input.GatewayPaymentID, input.Signature) {
		s.metrics.SignatureFailures.Inc()

		mylogger.Warn(
			ctx,
			s.logger,
			"Payment signature mismatch",
			zap.Int64("order_id", input.OrderID),
			zap.Int64("user_id", userID),
		)

		return nil, domain.ErrSignatureMismatch
	}

	var (
		order    *domain.Order
		reserved []stockLine
	)

	err := db.WithRetry(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		var err error
		reserved = nil

		order, err = s.orderRepo.GetByIDForUpdate(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}

		if !order.IsOwnedBy(userID) {
			return domain.ErrForbidden
		}

		if order.Payment.GatewayOrderID == "" || order.Payment.GatewayOrderID != input.GatewayOrderID {
			return domain.ErrSignatureMismatch
		}

		if order.Payment.Status == domain.PaymentStatusCompleted ||
			order.Payment.Status == domain.PaymentStatusRefunded ||
			order.Payment.Status == domain.PaymentStatusPartiallyRefunded {
			return domain.ErrPaymentAlreadyProcessed
		}

		now := s.now().UTC()
		entry, err := order.Apply(domain.EventPaymentVerified, "Payment completed successfully", &userID, now)
		if err != nil {
			return err
		}

		// a retried checkout can settle after the failure path released stock
		if !order.StockReserved {
			reserved = linesOf(order.Items)

			if _, err := s.inventory.reserve(ctx, tx, reserved); err != nil {
				return err
			}
			if err := s.inventory.record(ctx, tx, "payment_completed", order.ID, reserved, -1); err != nil {
				return err
			}

			order.StockReserved = true
		}

		order.Payment.Status = domain.PaymentStatusCompleted
		order.Payment.GatewayPaymentID = input.GatewayPaymentID
		order.Payment.GatewaySignature = input.Signature
		order.Payment.PaidAt = &now
		order.Payment.FailureReason = ""
		order.Invoice = &domain.Invoice{
			Number:      domain.InvoiceNumber(order.OrderNumber),
			GeneratedAt: now,
		}
		order.SetItemStatus(domain.ItemStatusConfirmed)

		if err := saveOrder(ctx, tx, s.orderRepo, order, entry); err != nil {
			return err
		}

		if err := s.orderRepo.UpdateItemStatuses(ctx, tx, order.ID, domain.ItemStatusConfirmed); err != nil {
			return err
		}

		return emitEvent(ctx, tx, s.outboxRepo, aggregateOrder, order.ID, generalDomain.EventPaymentCompleted, generalDomain.TopicPaymentEvents, generalDomain.PaymentCompletedEvent{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			Recipient:     lookupRecipient(ctx, s.userRepo, s.logger, order.UserID),
			Amount:        order.Pricing.Total,
			PaymentID:     input.GatewayPaymentID,
			InvoiceNumber: order.Invoice.Number,
			PaidAt:        now,
		})
	})
	if err != nil {
		span.RecordError(err)

		mylogger.Warn(
			ctx,
			s.logger,
			"Payment verification failed",
			zap.Int64("order_id", input.OrderID),
			zap.Error(err),
		)

		return nil, err
	}

	s.metrics.PaymentsVerified.Inc()
	if len(reserved) > 0 {
		s.stock.StockChanged(ctx, productIDs(reserved)...)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Payment verified",
		zap.Int64("order_id", order.ID),
		zap.String("gateway_payment_id", input.GatewayPaymentID),
	)

	return order, nil
}

func (s *paymentService) RecordPaymentFailure(ctx context.Context, userID, orderID int64, details string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.RecordPaymentFailure")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.Int64("user_id", userID),
	)

	var (
		order    *domain.Order
		released []stockLine
	)

	err := db.WithRetry(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		var err error
		released = nil

		order, err = s.orderRepo.GetByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if !order.IsOwnedBy(userID) {
			return domain.ErrForbidden
		}

		if order.Payment.Status != domain.PaymentStatusPending {
			return fmt.Errorf("%w: payment is %s", domain.ErrInvalidTransition, order.Payment.Status)
		}

		now := s.now().UTC()
		entry, err := order.Apply(domain.EventPaymentFailed, "Payment failed: "+details, &userID, now)
		if err != nil {
			return err
		}

		order.Payment.Status = domain.PaymentStatusFailed
		order.Payment.FailureReason = details

		if order.StockReserved {
			released = linesOf(order.Items)

			if err := s.inventory.release(ctx, tx, released); err != nil {
				return err
			}
			if err := s.inventory.record(ctx, tx, "payment_failed", order.ID, released, 1); err != nil {
				return err
			}

			order.StockReserved = false
		}

		if err := saveOrder(ctx, tx, s.orderRepo, order, entry); err != nil {
			return err
		}

		return emitEvent(ctx, tx, s.outboxRepo, aggregateOrder, order.ID, generalDomain.EventPaymentFailed, generalDomain.TopicPaymentEvents, generalDomain.PaymentFailedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Recipient:   lookupRecipient(ctx, s.userRepo, s.logger, order.UserID),
			Reason:      details,
			FailedAt:    now,
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if len(released) > 0 {
		s.stock.StockChanged(ctx, productIDs(released)...)
	}

	return order, nil
}

func (s *paymentService) ProcessRefund(ctx context.Context, adminID, orderID int64, amount decimal.Decimal, reason string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.ProcessRefund")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.Int64("admin_id", adminID),
		attribute.String("amount", amount.String()),
	)

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := checkRefundable(order, amount); err != nil {
		return nil, err
	}

	refundID, err := s.gateway.Refund(ctx, order.Payment.GatewayPaymentID, domain.ToPaise(amount))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	status := domain.PaymentStatusPartiallyRefunded
	if amount.GreaterThanOrEqual(order.Pricing.Total) {
		status = domain.PaymentStatusRefunded
	}

	err = db.WithRetry(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		var err error
		order, err = s.orderRepo.GetByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if err := checkRefundable(order, amount); err != nil {
			return err
		}

		now := s.now().UTC()
		refunded := amount

		order.Payment.Status = status
		order.Payment.RefundID = refundID
		order.Payment.RefundAmount = &refunded
		order.Payment.RefundedAt = &now
		order.Payment.RefundReason = reason

		entry := order.Annotate("Refund processed: "+reason, &adminID, now)

		if err := saveOrder(ctx, tx, s.orderRepo, order, entry); err != nil {
			return err
		}

		return emitEvent(ctx, tx, s.outboxRepo, aggregateOrder, order.ID, generalDomain.EventRefundProcessed, generalDomain.TopicPaymentEvents, generalDomain.RefundProcessedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Recipient:   lookupRecipient(ctx, s.userRepo, s.logger, order.UserID),
			Amount:      amount,
			RefundID:    refundID,
			Status:      string(status),
			RefundedAt:  now,
		})
	})
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			s.logger,
			"Refund issued at gateway but not recorded",
			zap.Int64("order_id", orderID),
			zap.String("refund_id", refundID),
			zap.Error(err),
		)

		return nil, err
	}

	s.metrics.Refunds.WithLabelValues(string(status)).Inc()

	return order, nil
}

func checkRefundable(order *domain.Order, amount decimal.Decimal) error {
	if order.Payment.Status != domain.PaymentStatusCompleted {
		return domain.ErrRefundNotAllowed
	}

	if !amount.IsPositive() || amount.GreaterThan(order.Pricing.Total) {
		return domain.ErrInvalidRefundAmount
	}

	return nil
}

func (s *paymentService) PaymentHistory(ctx context.Context, userID int64, page, limit int) (domain.Page[domain.Order], error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.PaymentHistory")
	defer span.End()

	page, limit, offset := domain.NormalizePage(page, limit)

	span.SetAttributes(
		attribute.Int64("user_id", userID),
		attribute.Int("page", page),
		attribute.Int("limit", limit),
	)

	orders, total, err := s.orderRepo.ListPaymentHistory(ctx, userID, limit, offset)
	if err != nil {
		span.RecordError(err)
		return domain.Page[domain.Order]{}, err
	}

	return domain.NewPage(orders, page, limit, total), nil
}
