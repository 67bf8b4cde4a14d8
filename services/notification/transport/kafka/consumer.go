package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/sakashimaa/storefront/pkg/domain"
	"github.com/sakashimaa/storefront/pkg/kafka"
	"github.com/sakashimaa/storefront/pkg/mylogger"
	"go.uber.org/zap"
)

type Notifier interface {
	HandleOrderCreated(ctx context.Context, eventID int64, event domain.OrderCreatedEvent) error
	HandleOrderCancelled(ctx context.Context, eventID int64, event domain.OrderCancelledEvent) error
	HandleOrderStatusChanged(ctx context.Context, eventID int64, event domain.OrderStatusChangedEvent) error
	HandleReturnRequested(ctx context.Context, eventID int64, event domain.ReturnRequestedEvent) error
	HandleExchangeRequested(ctx context.Context, eventID int64, event domain.ExchangeRequestedEvent) error
	HandlePaymentCompleted(ctx context.Context, eventID int64, event domain.PaymentCompletedEvent) error
	HandlePaymentFailed(ctx context.Context, eventID int64, event domain.PaymentFailedEvent) error
	HandleRefundProcessed(ctx context.Context, eventID int64, event domain.RefundProcessedEvent) error
}

var Topics = []string{domain.TopicOrderEvents, domain.TopicPaymentEvents}

type Consumer struct {
	notifier Notifier
	logger   *zap.Logger
}

func NewConsumer(notifier Notifier, logger *zap.Logger) *Consumer {
	return &Consumer{
		notifier: notifier,
		logger:   logger,
	}
}

func (c *Consumer) Start(ctx context.Context, brokers []string, groupID string) error {
	consumerGroup := kafka.NewConsumerGroup(
		brokers,
		groupID,
		Topics,
		c.processMessage,
		c.logger,
	)

	return consumerGroup.Run(ctx)
}

type envelope struct {
	Event   string          `json:"event"`
	EventID int64           `json:"event_id"`
	Payload json.RawMessage `json:"payload"`
}

func (c *Consumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	mylogger.Info(
		ctx,
		c.logger,
		"Processing message",
		zap.String("topic", msg.Topic),
	)

	var env envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		// Malformed messages would block the partition forever; drop them.
		mylogger.Error(ctx, c.logger, "Error unmarshalling envelope", zap.Error(err))
		return nil
	}

	if env.EventID == 0 {
		mylogger.Warn(ctx, c.logger, "Message without event_id, skipping", zap.String("event", env.Event))
		return nil
	}

	switch env.Event {
	case domain.EventOrderCreated:
		return dispatch(ctx, c, env, c.notifier.HandleOrderCreated)
	case domain.EventOrderCancelled:
		return dispatch(ctx, c, env, c.notifier.HandleOrderCancelled)
	case domain.EventOrderStatusChanged:
		return dispatch(ctx, c, env, c.notifier.HandleOrderStatusChanged)
	case domain.EventReturnRequested:
		return dispatch(ctx, c, env, c.notifier.HandleReturnRequested)
	case domain.EventExchangeRequested:
		return dispatch(ctx, c, env, c.notifier.HandleExchangeRequested)
	case domain.EventPaymentCompleted:
		return dispatch(ctx, c, env, c.notifier.HandlePaymentCompleted)
	case domain.EventPaymentFailed:
		return dispatch(ctx, c, env, c.notifier.HandlePaymentFailed)
	case domain.EventRefundProcessed:
		return dispatch(ctx, c, env, c.notifier.HandleRefundProcessed)
	default:
		mylogger.Info(ctx, c.logger, "Ignored event type", zap.String("event", env.Event))
		return nil
	}
}

func dispatch[T any](
	ctx context.Context,
	c *Consumer,
	env envelope,
	handle func(ctx context.Context, eventID int64, event T) error,
) error {
	var event T
	if err := json.Unmarshal(env.Payload, &event); err != nil {
		mylogger.Error(
			ctx,
			c.logger,
			"Error parsing event payload",
			zap.String("event", env.Event),
			zap.Int64("event_id", env.EventID),
			zap.Error(err),
		)
		return nil
	}

	if err := handle(ctx, env.EventID, event); err != nil {
		return fmt.Errorf("handle %s (%d): %w", env.Event, env.EventID, err)
	}

	return nil
}
