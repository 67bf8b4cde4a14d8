package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	eventDomain "github.com/sakashimaa/storefront/pkg/domain"
	"github.com/sakashimaa/storefront/pkg/mylogger"
	outboxUtils "github.com/sakashimaa/storefront/pkg/outbox/utils"
	"github.com/sakashimaa/storefront/services/notification/internal/domain"
	"github.com/sakashimaa/storefront/services/notification/internal/infrastructure/email"
	"github.com/sakashimaa/storefront/services/notification/internal/infrastructure/sms"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const statusShipped = "shipped"

type NotificationService struct {
	emailSender email.Sender
	smsSender   sms.Sender
	logger      *zap.Logger
	pool        *pgxpool.Pool
	tracer      trace.Tracer
}

func NewNotificationService(emailSender email.Sender, smsSender sms.Sender, logger *zap.Logger, pool *pgxpool.Pool) *NotificationService {
	return &NotificationService{
		emailSender: emailSender,
		smsSender:   smsSender,
		logger:      logger,
		pool:        pool,
		tracer:      otel.Tracer("notification-service"),
	}
}

func (s *NotificationService) HandleOrderCreated(ctx context.Context, eventID int64, event eventDomain.OrderCreatedEvent) error {
	ctx, span := s.start(ctx, "NotificationService.HandleOrderCreated", eventID, event.OrderNumber)
	defer span.End()

	msg, err := orderCreatedEmail(event)
	if err != nil {
		return err
	}

	text := orderCreatedSMS(event)
	return s.deliver(ctx, eventID, msg, &text)
}

func (s *NotificationService) HandleOrderCancelled(ctx context.Context, eventID int64, event eventDomain.OrderCancelledEvent) error {
	ctx, span := s.start(ctx, "NotificationService.HandleOrderCancelled", eventID, event.OrderNumber)
	defer span.End()

	msg, err := orderCancelledEmail(event)
	if err != nil {
		return err
	}

	return s.deliver(ctx, eventID, msg, nil)
}

func (s *NotificationService) HandleOrderStatusChanged(ctx context.Context, eventID int64, event eventDomain.OrderStatusChangedEvent) error {
	ctx, span := s.start(ctx, "NotificationService.HandleOrderStatusChanged", eventID, event.OrderNumber)
	defer span.End()

	span.SetAttributes(attribute.String("status", event.Status))

	msg, err := statusChangedEmail(event)
	if err != nil {
		return err
	}

	var text *domain.SMS
	if event.Status == statusShipped {
		shipped := shippedSMS(event)
		text = &shipped
	}

	return s.deliver(ctx, eventID, msg, text)
}

func (s *NotificationService) HandleReturnRequested(ctx context.Context, eventID int64, event eventDomain.ReturnRequestedEvent) error {
	ctx, span := s.start(ctx, "NotificationService.HandleReturnRequested", eventID, event.OrderNumber)
	defer span.End()

	msg, err := returnRequestedEmail(event)
	if err != nil {
		return err
	}

	return s.deliver(ctx, eventID, msg, nil)
}

func (s *NotificationService) HandleExchangeRequested(ctx context.Context, eventID int64, event eventDomain.ExchangeRequestedEvent) error {
	ctx, span := s.start(ctx, "NotificationService.HandleExchangeRequested", eventID, event.OrderNumber)
	defer span.End()

	msg, err := exchangeRequestedEmail(event)
	if err != nil {
		return err
	}

	return s.deliver(ctx, eventID, msg, nil)
}

func (s *NotificationService) HandlePaymentCompleted(ctx context.Context, eventID int64, event eventDomain.PaymentCompletedEvent) error {
	ctx, span := s.start(ctx, "NotificationService.HandlePaymentCompleted", eventID, event.OrderNumber)
	defer span.End()

	msg, err := paymentCompletedEmail(event)
	if err != nil {
		return err
	}

	text := paymentCompletedSMS(event)
	return s.deliver(ctx, eventID, msg, &text)
}

func (s *NotificationService) HandlePaymentFailed(ctx context.Context, eventID int64, event eventDomain.PaymentFailedEvent) error {
	ctx, span := s.start(ctx, "NotificationService.HandlePaymentFailed", eventID, event.OrderNumber)
	defer span.End()

	msg, err := paymentFailedEmail(event)
	if err != nil {
		return err
	}

	return s.deliver(ctx, eventID, msg, nil)
}

func (s *NotificationService) HandleRefundProcessed(ctx context.Context, eventID int64, event eventDomain.RefundProcessedEvent) error {
	ctx, span := s.start(ctx, "NotificationService.HandleRefundProcessed", eventID, event.OrderNumber)
	defer span.End()

	msg, err := refundProcessedEmail(event)
	if err != nil {
		return err
	}

	return s.deliver(ctx, eventID, msg, nil)
}

func (s *NotificationService) start(ctx context.Context, name string, eventID int64, orderNumber string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, name)
	span.SetAttributes(
		attribute.Int64("event_id", eventID),
		attribute.String("order_number", orderNumber),
	)
	return ctx, span
}

// deliver sends the email at most once per event. A failed email is retried and eventually
// redelivered by Kafka; SMS is secondary and its failures are only logged.
func (s *NotificationService) deliver(ctx context.Context, eventID int64, msg domain.Email, text *domain.SMS) error {
	return outboxUtils.ProcessWithDeduplication(ctx, s.pool, s.logger, eventID, func() error {
		if err := s.emailSender.Send(ctx, msg); err != nil {
			if !errors.Is(err, domain.ErrNoRecipient) {
				return err
			}
			mylogger.Warn(ctx, s.logger, "Skipping email, no address", zap.Int64("event_id", eventID))
		}

		if text == nil {
			return nil
		}

		if err := s.smsSender.Send(ctx, *text); err != nil && !errors.Is(err, domain.ErrNoRecipient) {
			mylogger.Warn(
				ctx,
				s.logger,
				"SMS delivery failed",
				zap.Int64("event_id", eventID),
				zap.Error(err),
			)
		}

		return nil
	})
}
