package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/storefront/pkg/db"
	"github.com/sakashimaa/storefront/pkg/mylogger"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	deliveryAttempts = 3
	retryDelay       = 500 * time.Millisecond
)

// ProcessWithDeduplication runs action at most once per eventID. The processed_events row and the
// action share one transaction, so a failed action leaves the event eligible for redelivery.
func ProcessWithDeduplication(
	ctx context.Context,
	pool *pgxpool.Pool,
	logger *zap.Logger,
	eventID int64,
	action func() error,
) error {
	span := trace.SpanFromContext(ctx)

	return db.WithTx(ctx, pool, logger, func(tx pgx.Tx) error {
		query := `
			INSERT INTO processed_events (event_id)
			VALUES ($1)
			ON CONFLICT (event_id) DO NOTHING
		`

		tag, err := tx.Exec(ctx, query, eventID)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to record event %d: %w", eventID, err)
		}

		if tag.RowsAffected() == 0 {
			mylogger.Info(
				ctx,
				logger,
				"Event already processed, skipping",
				zap.Int64("event_id", eventID),
			)

			return nil
		}

		for attempt := 1; ; attempt++ {
			err = action()
			if err == nil {
				return nil
			}

			if attempt == deliveryAttempts {
				break
			}

			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		span.RecordError(err)
		mylogger.Error(
			ctx,
			logger,
			"Failed to deliver after retries",
			zap.Int64("event_id", eventID),
			zap.Int("attempts", deliveryAttempts),
			zap.Error(err),
		)

		return fmt.Errorf("failed to deliver event %d: %w", eventID, err)
	})
}
