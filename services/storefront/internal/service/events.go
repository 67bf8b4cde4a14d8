package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	generalDomain "github.com/sakashimaa/storefront/pkg/domain"
	"github.com/sakashimaa/storefront/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/storefront/pkg/outbox/domain"
	"github.com/sakashimaa/storefront/pkg/outbox/worker"
	"github.com/sakashimaa/storefront/services/storefront/internal/domain"
	"github.com/sakashimaa/storefront/services/storefront/internal/repository"
	"go.uber.org/zap"
)

const (
	aggregateOrder   = "Order"
	aggregateProduct = "Product"
)

func emitEvent(
	ctx context.Context,
	tx pgx.Tx,
	outboxRepo worker.OutboxRepository,
	aggregateType string,
	aggregateID int64,
	eventType, topic string,
	payload any,
) error {
	event, err := outboxDomain.NewOutboxEvent(ctx, aggregateType, strconv.FormatInt(aggregateID, 10), eventType, topic, payload)
	if err != nil {
		return err
	}

	if err := outboxRepo.SaveOutboxEvent(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to save %s outbox event: %w", eventType, err)
	}

	return nil
}

// lookupRecipient resolves contact details for notifications. A failed lookup degrades to the bare id.
func lookupRecipient(ctx context.Context, users repository.UserRepository, logger *zap.Logger, userID int64) generalDomain.Recipient {
	user, err := users.GetByID(ctx, userID)
	if err != nil {
		mylogger.Warn(ctx, logger, "Recipient lookup failed", zap.Int64("user_id", userID), zap.Error(err))

		return generalDomain.Recipient{UserID: userID}
	}

	return generalDomain.Recipient{
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Phone:  user.Phone,
	}
}

func eventItems(items []domain.OrderItem) []generalDomain.OrderItem {
	out := make([]generalDomain.OrderItem, 0, len(items))
	for _, item := range items {
		out = append(out, generalDomain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
		})
	}

	return out
}
