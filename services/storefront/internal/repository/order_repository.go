package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/storefront/pkg/mylogger"
	"github.com/sakashimaa/storefront/services/storefront/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OrderRepository interface {
	NextOrderNumber(ctx context.Context, tx pgx.Tx, now time.Time) (string, error)
	Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	AppendHistory(ctx context.Context, tx pgx.Tx, orderID int64, entry domain.StatusEntry) error
	Update(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	UpdateItemStatuses(ctx context.Context, tx pgx.Tx, orderID int64, status domain.ItemStatus) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Order, error)
	ListByUser(ctx context.Context, userID int64, status domain.OrderStatus, limit, offset int) ([]domain.Order, int, error)
	ListPaymentHistory(ctx context.Context, userID int64, limit, offset int) ([]domain.Order, int, error)
}

type orderRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewOrderRepository(pool *pgxpool.Pool, logger *zap.Logger) OrderRepository {
	return &orderRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/order_repository"),
	}
}

const orderColumns = `
	o.id, o.order_number, o.user_id, o.status,
	o.shipping_address, o.billing_address,
	o.subtotal, o.shipping, o.tax, o.discount, o.total,
	o.payment_method, o.payment_status,
	COALESCE(o.gateway_order_id, ''), COALESCE(o.gateway_payment_id, ''), COALESCE(o.gateway_signature, ''),
	o.paid_at, COALESCE(o.failure_reason, ''),
	COALESCE(o.refund_id, ''), o.refund_amount, o.refunded_at, COALESCE(o.refund_reason, ''),
	COALESCE(o.tracking_number, ''), COALESCE(o.carrier, ''), o.tracking_history,
	o.cancellation, o.return_request, o.exchange_request, o.invoice,
	COALESCE(o.coupon_code, ''), COALESCE(o.notes, ''),
	o.estimated_delivery, o.actual_delivery, o.stock_reserved,
	o.created_at, o.updated_at
`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.Status,
		&o.ShippingAddress, &o.BillingAddress,
		&o.Pricing.Subtotal, &o.Pricing.Shipping, &o.Pricing.Tax, &o.Pricing.Discount, &o.Pricing.Total,
		&o.Payment.Method, &o.Payment.Status,
		&o.Payment.GatewayOrderID, &o.Payment.GatewayPaymentID, &o.Payment.GatewaySignature,
		&o.Payment.PaidAt, &o.Payment.FailureReason,
		&o.Payment.RefundID, &o.Payment.RefundAmount, &o.Payment.RefundedAt, &o.Payment.RefundReason,
		&o.Tracking.Number, &o.Tracking.Carrier, &o.Tracking.History,
		&o.Cancellation, &o.Return, &o.Exchange, &o.Invoice,
		&o.CouponCode, &o.Notes,
		&o.EstimatedDelivery, &o.ActualDelivery, &o.StockReserved,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &o, nil
}

func (r *orderRepo) NextOrderNumber(ctx context.Context, tx pgx.Tx, now time.Time) (string, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.NextOrderNumber")
	defer span.End()

	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('order_number_seq')`).Scan(&seq); err != nil {
		span.RecordError(err)

		return "", fmt.Errorf("failed to get order sequence: %w", err)
	}

	return fmt.Sprintf("ORD-%d-%04d", now.UnixMilli(), seq), nil
}

func (r *orderRepo) Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", order.UserID),
		attribute.String("order_number", order.OrderNumber),
		attribute.Int("items_count", len(order.Items)),
	)

	queryOrder := `
		INSERT INTO orders (
			order_number, user_id, status, shipping_address, billing_address,
			subtotal, shipping, tax, discount, total,
			payment_method, payment_status, tracking_history,
			coupon_code, notes, estimated_delivery, stock_reserved,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NULLIF($14, ''), NULLIF($15, ''), $16, $17, $18, $18)
		RETURNING id
	`

	if err := tx.QueryRow(
		ctx,
		queryOrder,
		order.OrderNumber,
		order.UserID,
		string(order.Status),
		order.ShippingAddress,
		order.BillingAddress,
		order.Pricing.Subtotal,
		order.Pricing.Shipping,
		order.Pricing.Tax,
		order.Pricing.Discount,
		order.Pricing.Total,
		string(order.Payment.Method),
		string(order.Payment.Status),
		trackingHistory(order),
		order.CouponCode,
		order.Notes,
		order.EstimatedDelivery,
		order.StockReserved,
		order.CreatedAt,
	).Scan(&order.ID); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to insert order",
			zap.Int64("user_id", order.UserID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to insert order: %w", err)
	}

	queryItem := `
		INSERT INTO order_items (order_id, position, product_id, name, image, quantity, price, variant, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	for i := range order.Items {
		item := &order.Items[i]

		if err := tx.QueryRow(
			ctx,
			queryItem,
			order.ID,
			i,
			item.ProductID,
			item.Name,
			item.Image,
			item.Quantity,
			item.Price,
			item.Variant,
			string(item.Status),
		).Scan(&item.ID); err != nil {
			span.RecordError(err)

			mylogger.Error(
				ctx,
				r.logger,
				"Failed to insert item",
				zap.Int64("order_id", order.ID),
				zap.Int64("product_id", item.ProductID),
				zap.Error(err),
			)

			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return nil
}

func (r *orderRepo) AppendHistory(ctx context.Context, tx pgx.Tx, orderID int64, entry domain.StatusEntry) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.AppendHistory")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.String("status", string(entry.Status)),
	)

	query := `
		INSERT INTO order_status_history (order_id, status, note, updated_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := tx.Exec(ctx, query, orderID, string(entry.Status), entry.Note, entry.UpdatedBy, entry.Timestamp); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to append status history",
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to append status history: %w", err)
	}

	return nil
}

// Update persists every mutable column. Identity, items and pricing are immutable after creation.
func (r *orderRepo) Update(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Update")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", order.ID),
		attribute.String("status", string(order.Status)),
		attribute.String("payment_status", string(order.Payment.Status)),
	)

	query := `
		UPDATE orders
		SET status = $2,
			payment_status = $3,
			gateway_order_id = NULLIF($4, ''),
			gateway_payment_id = NULLIF($5, ''),
			gateway_signature = NULLIF($6, ''),
			paid_at = $7,
			failure_reason = NULLIF($8, ''),
			refund_id = NULLIF($9, ''),
			refund_amount = $10,
			refunded_at = $11,
			refund_reason = NULLIF($12, ''),
			tracking_number = NULLIF($13, ''),
			carrier = NULLIF($14, ''),
			tracking_history = $15,
			cancellation = $16,
			return_request = $17,
			exchange_request = $18,
			invoice = $19,
			actual_delivery = $20,
			stock_reserved = $21,
			updated_at = $22
		WHERE id = $1
	`

	commandTag, err := tx.Exec(
		ctx,
		query,
		order.ID,
		string(order.Status),
		string(order.Payment.Status),
		order.Payment.GatewayOrderID,
		order.Payment.GatewayPaymentID,
		order.Payment.GatewaySignature,
		order.Payment.PaidAt,
		order.Payment.FailureReason,
		order.Payment.RefundID,
		order.Payment.RefundAmount,
		order.Payment.RefundedAt,
		order.Payment.RefundReason,
		order.Tracking.Number,
		order.Tracking.Carrier,
		trackingHistory(order),
		order.Cancellation,
		order.Return,
		order.Exchange,
		order.Invoice,
		order.ActualDelivery,
		order.StockReserved,
		order.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to update order",
			zap.Int64("order_id", order.ID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to update order: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		mylogger.Warn(ctx, r.logger, "Order not found", zap.Int64("order_id", order.ID))

		return ErrOrderNotFound
	}

	return nil
}

func (r *orderRepo) UpdateItemStatuses(ctx context.Context, tx pgx.Tx, orderID int64, status domain.ItemStatus) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.UpdateItemStatuses")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.String("status", string(status)),
	)

	if _, err := tx.Exec(ctx, `UPDATE order_items SET status = $2 WHERE order_id = $1`, orderID, string(status)); err != nil {
		span.RecordError(err)

		return fmt.Errorf("failed to update item statuses: %w", err)
	}

	return nil
}

func (r *orderRepo) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", id))

	order, err := r.load(ctx, r.pool, id, false)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return order, nil
}

// GetByIDForUpdate locks the order row until tx ends.
func (r *orderRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetByIDForUpdate")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", id))

	order, err := r.load(ctx, tx, id, true)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return order, nil
}

func (r *orderRepo) load(ctx context.Context, q Querier, id int64, forUpdate bool) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	order, err := scanOrder(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}

		mylogger.Error(ctx, r.logger, "Failed to query order", zap.Int64("order_id", id), zap.Error(err))

		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	items, err := r.loadItems(ctx, q, []int64{id})
	if err != nil {
		return nil, err
	}
	order.Items = items[id]

	order.StatusHistory, err = r.loadHistory(ctx, q, id)
	if err != nil {
		return nil, err
	}

	return order, nil
}

func (r *orderRepo) loadItems(ctx context.Context, q Querier, orderIDs []int64) (map[int64][]domain.OrderItem, error) {
	query := `
		SELECT order_id, id, product_id, name, image, quantity, price, variant, status
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`

	rows, err := q.Query(ctx, query, orderIDs)
	if err != nil {
		mylogger.Error(ctx, r.logger, "Failed to query order_items", zap.Error(err))

		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	result := make(map[int64][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID int64
			item    domain.OrderItem
		)
		if err := rows.Scan(
			&orderID,
			&item.ID,
			&item.ProductID,
			&item.Name,
			&item.Image,
			&item.Quantity,
			&item.Price,
			&item.Variant,
			&item.Status,
		); err != nil {
			mylogger.Error(ctx, r.logger, "Failed to scan order item", zap.Error(err))

			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}

		result[orderID] = append(result[orderID], item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order items rows: %w", err)
	}

	return result, nil
}

func (r *orderRepo) loadHistory(ctx context.Context, q Querier, orderID int64) ([]domain.StatusEntry, error) {
	query := `
		SELECT status, note, updated_by, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY id
	`

	rows, err := q.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query status history: %w", err)
	}

	history, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.StatusEntry, error) {
		var e domain.StatusEntry
		err := row.Scan(&e.Status, &e.Note, &e.UpdatedBy, &e.Timestamp)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan status history: %w", err)
	}

	return history, nil
}

func (r *orderRepo) ListByUser(ctx context.Context, userID int64, status domain.OrderStatus, limit, offset int) ([]domain.Order, int, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.ListByUser")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", userID),
		attribute.String("status", string(status)),
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	where := `o.user_id = $1 AND ($2::text = '' OR o.status = $2::text)`

	return r.list(ctx, where, `o.created_at DESC`, limit, offset, userID, string(status))
}

func (r *orderRepo) ListPaymentHistory(ctx context.Context, userID int64, limit, offset int) ([]domain.Order, int, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.ListPaymentHistory")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", userID),
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	where := `o.user_id = $1 AND o.payment_status IN ('completed', 'refunded', 'partially_refunded')`

	return r.list(ctx, where, `o.paid_at DESC NULLS LAST, o.id DESC`, limit, offset, userID)
}

func (r *orderRepo) list(ctx context.Context, where, orderBy string, limit, offset int, args ...any) ([]domain.Order, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders o WHERE `+where, args...).Scan(&total); err != nil {
		mylogger.Error(ctx, r.logger, "Failed to count orders", zap.Error(err))

		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(
		`SELECT %s FROM orders o WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		orderColumns, where, orderBy, n+1, n+2,
	)

	rows, err := r.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		mylogger.Error(ctx, r.logger, "Failed to list orders", zap.Error(err))

		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Order, error) {
		o, err := scanOrder(row)
		if err != nil {
			return domain.Order{}, err
		}
		return *o, nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan orders: %w", err)
	}

	if len(orders) == 0 {
		return orders, total, nil
	}

	ids := make([]int64, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}

	items, err := r.loadItems(ctx, r.pool, ids)
	if err != nil {
		return nil, 0, err
	}

	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}

	return orders, total, nil
}

func trackingHistory(order *domain.Order) []domain.TrackingEvent {
	if order.Tracking.History == nil {
		return []domain.TrackingEvent{}
	}

	return order.Tracking.History
}
