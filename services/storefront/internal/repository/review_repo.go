package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/storefront/pkg/mylogger"
	"github.com/sakashimaa/storefront/services/storefront/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ReviewRepository interface {
	Upsert(ctx context.Context, tx pgx.Tx, review *domain.Review) error
	RefreshRating(ctx context.Context, tx pgx.Tx, productID int64) (domain.Rating, error)
	ListByProduct(ctx context.Context, productID int64, limit, offset int) ([]domain.Review, int, error)
}

type reviewRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewReviewRepository(pool *pgxpool.Pool, logger *zap.Logger) ReviewRepository {
	return &reviewRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/review_repo"),
	}
}

// Upsert replaces the user's previous review of the product. Verified is recomputed on every write
// from the user's delivered orders.
func (r *reviewRepo) Upsert(ctx context.Context, tx pgx.Tx, review *domain.Review) error {
	ctx, span := r.tracer.Start(ctx, "ReviewRepository.Upsert")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("product_id", review.ProductID),
		attribute.Int64("user_id", review.UserID),
	)

	if review.Images == nil {
		review.Images = []string{}
	}

	query := `
		INSERT INTO product_reviews (product_id, user_id, rating, comment, images, verified)
		VALUES ($1, $2, $3, $4, $5, EXISTS (
			SELECT 1
			FROM orders o
			JOIN order_items i ON i.order_id = o.id
			WHERE o.user_id = $2 AND i.product_id = $1 AND o.status = 'delivered'
		))
		ON CONFLICT (product_id, user_id) DO UPDATE
		SET rating = EXCLUDED.rating,
			comment = EXCLUDED.comment,
			images = EXCLUDED.images,
			verified = EXCLUDED.verified,
			updated_at = NOW()
		RETURNING id, verified, created_at, updated_at
	`

	err := tx.QueryRow(
		ctx,
		query,
		review.ProductID,
		review.UserID,
		review.Rating,
		review.Comment,
		review.Images,
	).Scan(&review.ID, &review.Verified, &review.CreatedAt, &review.UpdatedAt)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error upserting review",
			zap.Int64("product_id", review.ProductID),
			zap.Int64("user_id", review.UserID),
			zap.Error(err),
		)

		return fmt.Errorf("error saving review: %w", err)
	}

	return nil
}

func (r *reviewRepo) RefreshRating(ctx context.Context, tx pgx.Tx, productID int64) (domain.Rating, error) {
	ctx, span := r.tracer.Start(ctx, "ReviewRepository.RefreshRating")
	defer span.End()

	span.SetAttributes(attribute.Int64("product_id", productID))

	query := `
		UPDATE products p
		SET rating_average = agg.average, rating_count = agg.count
		FROM (
			SELECT COALESCE(ROUND(AVG(rating), 2), 0) AS average, COUNT(*)::INT AS count
			FROM product_reviews
			WHERE product_id = $1
		) agg
		WHERE p.id = $1
		RETURNING p.rating_average, p.rating_count
	`

	var rating domain.Rating
	if err := tx.QueryRow(ctx, query, productID).Scan(&rating.Average, &rating.Count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Rating{}, ErrProductNotFound
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Error refreshing rating", zap.Int64("product_id", productID), zap.Error(err))

		return domain.Rating{}, fmt.Errorf("error refreshing rating: %w", err)
	}

	return rating, nil
}

func (r *reviewRepo) ListByProduct(ctx context.Context, productID int64, limit, offset int) ([]domain.Review, int, error) {
	ctx, span := r.tracer.Start(ctx, "ReviewRepository.ListByProduct")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("product_id", productID),
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM product_reviews WHERE product_id = $1`, productID).Scan(&total); err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("failed to count reviews: %w", err)
	}

	query := `
		SELECT r.id, r.product_id, r.user_id, u.name, r.rating, r.comment, r.images, r.verified, r.created_at, r.updated_at
		FROM product_reviews r
		JOIN users u ON u.id = r.user_id
		WHERE r.product_id = $1
		ORDER BY r.updated_at DESC, r.id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, productID, limit, offset)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error listing reviews",
			zap.Int64("product_id", productID),
			zap.Error(err),
		)

		return nil, 0, fmt.Errorf("error selecting reviews: %w", err)
	}

	reviews, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Review, error) {
		var rv domain.Review
		err := row.Scan(
			&rv.ID,
			&rv.ProductID,
			&rv.UserID,
			&rv.UserName,
			&rv.Rating,
			&rv.Comment,
			&rv.Images,
			&rv.Verified,
			&rv.CreatedAt,
			&rv.UpdatedAt,
		)
		return rv, err
	})
	if err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("error scanning reviews: %w", err)
	}

	return reviews, total, nil
}
