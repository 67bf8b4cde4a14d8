package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/storefront/pkg/mylogger"
	"github.com/sakashimaa/storefront/services/storefront/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Product, error)
	List(ctx context.Context, filter domain.ProductFilter, limit, offset int) ([]domain.Product, int, error)
	Update(ctx context.Context, id int64, input *domain.UpdateProductInput) error
	Deactivate(ctx context.Context, id int64) error
	LockForUpdate(ctx context.Context, tx pgx.Tx, ids []int64) (map[int64]*domain.Product, error)
	DecreaseStock(ctx context.Context, tx pgx.Tx, id int64, quantity int32) error
	IncreaseStock(ctx context.Context, tx pgx.Tx, id int64, quantity int32) error
	AdjustStock(ctx context.Context, tx pgx.Tx, id int64, delta int32) (int32, error)
	Categories(ctx context.Context) ([]string, error)
	Brands(ctx context.Context) ([]string, error)
}

type productRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewProductRepository(pool *pgxpool.Pool, logger *zap.Logger) ProductRepository {
	return &productRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/product_repo"),
	}
}

const productColumns = `
	id, seller_id, name, description, category, brand, images,
	price, original_price, discount, stock, tags, is_featured, sales_count,
	rating_average, rating_count, is_active, created_at, updated_at
`

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	if err := row.Scan(
		&p.ID,
		&p.SellerID,
		&p.Name,
		&p.Description,
		&p.Category,
		&p.Brand,
		&p.Images,
		&p.Price,
		&p.OriginalPrice,
		&p.Discount,
		&p.Stock,
		&p.Tags,
		&p.IsFeatured,
		&p.SalesCount,
		&p.Rating.Average,
		&p.Rating.Count,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	return &p, nil
}

func (r *productRepo) Create(ctx context.Context, product *domain.Product) error {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("name", product.Name),
		attribute.Int64("seller_id", product.SellerID),
	)

	if product.Images == nil {
		product.Images = []string{}
	}
	if product.Tags == nil {
		product.Tags = []string{}
	}

	query := `
		INSERT INTO products (seller_id, name, description, category, brand, images, price, original_price, discount, stock, tags, is_featured, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, TRUE)
		RETURNING id, is_active, created_at, updated_at
	`

	err := r.pool.QueryRow(
		ctx,
		query,
		product.SellerID,
		product.Name,
		product.Description,
		product.Category,
		product.Brand,
		product.Images,
		product.Price,
		product.OriginalPrice,
		product.Discount,
		product.Stock,
		product.Tags,
		product.IsFeatured,
	).Scan(&product.ID, &product.IsActive, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error creating product",
			zap.Error(err),
		)

		return fmt.Errorf("error creating product: %w", err)
	}

	return nil
}

func (r *productRepo) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.GetByID")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", id),
	)

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error get by id",
			zap.Int64("id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error getting product: %w", err)
	}

	return product, nil
}

func (r *productRepo) GetByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.GetByIDs")
	defer span.End()

	span.SetAttributes(attribute.Int64Slice("ids", ids))

	products, err := r.selectByIDs(ctx, r.pool, ids, false)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return products, nil
}

// LockForUpdate row-locks the products in ascending id order. Missing ids are absent from the result.
func (r *productRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, ids []int64) (map[int64]*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.LockForUpdate")
	defer span.End()

	span.SetAttributes(attribute.Int64Slice("ids", ids))

	products, err := r.selectByIDs(ctx, tx, ids, true)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return products, nil
}

func (r *productRepo) selectByIDs(ctx context.Context, q Querier, ids []int64, lock bool) (map[int64]*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`
	if lock {
		query += ` FOR UPDATE`
	}

	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		mylogger.Error(
			ctx,
			r.logger,
			"Error selecting products by ids",
			zap.Int64s("ids", ids),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error selecting products: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]*domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning product: %w", err)
		}

		result[p.ID] = p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

func (r *productRepo) List(ctx context.Context, filter domain.ProductFilter, limit, offset int) ([]domain.Product, int, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.List")
	defer span.End()

	span.SetAttributes(
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
		attribute.String("search", filter.Search),
		attribute.String("category", filter.Category),
		attribute.String("sort", string(filter.Sort)),
	)

	where := []string{"is_active = TRUE"}
	var args []interface{}
	argId := 1

	cond := func(format string, value interface{}) {
		where = append(where, fmt.Sprintf(format, argId))
		args = append(args, value)
		argId++
	}

	if filter.Category != "" {
		cond("category = $%d", filter.Category)
	}
	if filter.Brand != "" {
		cond("LOWER(brand) = LOWER($%d)", filter.Brand)
	}
	if filter.Search != "" {
		cond("(name ILIKE $%[1]d OR description ILIKE $%[1]d)", "%"+filter.Search+"%")
	}
	if filter.MinPrice != nil {
		cond("price >= $%d", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		cond("price <= $%d", *filter.MaxPrice)
	}
	if filter.MinRating != nil {
		cond("rating_average >= $%d", *filter.MinRating)
	}
	if len(filter.Tags) > 0 {
		cond("tags && $%d", filter.Tags)
	}
	if filter.InStock {
		where = append(where, "stock > 0")
	}

	whereClause := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`+whereClause, args...).Scan(&total); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to count products",
			zap.Error(err),
		)

		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	query := `SELECT ` + productColumns + ` FROM products` + whereClause +
		" ORDER BY " + orderBy(filter.Sort) +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", argId, argId+1)

	rows, err := r.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error getting products",
			zap.String("search", filter.Search),
			zap.Int("limit", limit),
			zap.Int("offset", offset),
			zap.Error(err),
		)

		return nil, 0, fmt.Errorf("error selecting products: %w", err)
	}

	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Product, error) {
		p, err := scanProduct(row)
		if err != nil {
			return domain.Product{}, err
		}
		return *p, nil
	})
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to scan rows",
			zap.Error(err),
		)

		return nil, 0, fmt.Errorf("error scanning rows: %w", err)
	}

	return products, total, nil
}

func (r *productRepo) Update(ctx context.Context, id int64, input *domain.UpdateProductInput) error {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.Update")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", id),
	)

	var updates []string
	var args []interface{}
	argId := 1

	set := func(column string, value interface{}) {
		updates = append(updates, fmt.Sprintf("%s = $%d", column, argId))
		args = append(args, value)
		argId++
	}

	if input.Name != nil {
		set("name", *input.Name)
	}
	if input.Description != nil {
		set("description", *input.Description)
	}
	if input.Category != nil {
		set("category", *input.Category)
	}
	if input.Brand != nil {
		set("brand", *input.Brand)
	}
	if input.Images != nil {
		set("images", input.Images)
	}
	if input.Price != nil {
		set("price", *input.Price)
	}
	if input.OriginalPrice != nil {
		set("original_price", *input.OriginalPrice)
	}
	if input.Discount != nil {
		set("discount", *input.Discount)
	}
	if input.Tags != nil {
		set("tags", input.Tags)
	}
	if input.IsFeatured != nil {
		set("is_featured", *input.IsFeatured)
	}
	if input.IsActive != nil {
		set("is_active", *input.IsActive)
	}

	if len(updates) == 0 {
		return nil
	}

	updates = append(updates, "updated_at = NOW()")

	query := `UPDATE products SET ` + strings.Join(updates, ", ") + fmt.Sprintf(" WHERE id = $%d", argId)
	args = append(args, id)

	commandTag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to update product",
			zap.Int64("id", id),
			zap.Error(err),
		)

		return fmt.Errorf("error updating product: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}

	return nil
}

func (r *productRepo) Deactivate(ctx context.Context, id int64) error {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.Deactivate")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", id),
	)

	query := `
		UPDATE products
		SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1
	`

	commandTag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error deactivating product",
			zap.Int64("id", id),
			zap.Error(err),
		)

		return fmt.Errorf("error deactivating product: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}

	return nil
}

// DecreaseStock clamps at zero; callers check availability under the row lock first.
// Reserved units count as sales until they are released again.
func (r *productRepo) DecreaseStock(ctx context.Context, tx pgx.Tx, id int64, quantity int32) error {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.DecreaseStock")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", id),
		attribute.Int("quantity", int(quantity)),
	)

	query := `
		UPDATE products
		SET stock = GREATEST(stock - $2, 0), sales_count = sales_count + $2, updated_at = NOW()
		WHERE id = $1
	`

	commandTag, err := tx.Exec(ctx, query, id, quantity)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error decreasing stock",
			zap.Int64("id", id),
			zap.Int32("quantity", quantity),
			zap.Error(err),
		)

		return fmt.Errorf("error decreasing stock for product %d: %w", id, err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}

	return nil
}

func (r *productRepo) IncreaseStock(ctx context.Context, tx pgx.Tx, id int64, quantity int32) error {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.IncreaseStock")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", id),
		attribute.Int("quantity", int(quantity)),
	)

	query := `
		UPDATE products
		SET stock = stock + $2, sales_count = GREATEST(sales_count - $2, 0), updated_at = NOW()
		WHERE id = $1
	`

	commandTag, err := tx.Exec(ctx, query, id, quantity)
	if err != nil {
		span.RecordError(err)
		mylogger.Warn(ctx, r.logger, "Failed to update stock", zap.Error(err))

		return fmt.Errorf("error increasing stock for product %d: %w", id, err)
	}

	if commandTag.RowsAffected() == 0 {
		mylogger.Warn(ctx, r.logger, "Product not found", zap.Int64("product_id", id))
		return ErrProductNotFound
	}

	return nil
}

// AdjustStock applies a signed delta, clamped at zero, and returns the resulting stock.
func (r *productRepo) AdjustStock(ctx context.Context, tx pgx.Tx, id int64, delta int32) (int32, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.AdjustStock")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", id),
		attribute.Int("delta", int(delta)),
	)

	query := `
		UPDATE products
		SET stock = GREATEST(stock + $2, 0), updated_at = NOW()
		WHERE id = $1
		RETURNING stock
	`

	var stock int32
	if err := tx.QueryRow(ctx, query, id, delta).Scan(&stock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrProductNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error adjusting stock",
			zap.Int64("id", id),
			zap.Int32("delta", delta),
			zap.Error(err),
		)

		return 0, fmt.Errorf("error adjusting stock for product %d: %w", id, err)
	}

	return stock, nil
}

func orderBy(sort domain.ProductSort) string {
	switch sort {
	case domain.SortPriceAsc:
		return "price ASC, id ASC"
	case domain.SortPriceDesc:
		return "price DESC, id DESC"
	case domain.SortRating:
		return "rating_average DESC, rating_count DESC, id DESC"
	case domain.SortNewest:
		return "created_at DESC, id DESC"
	case domain.SortPopular:
		return "sales_count DESC, id DESC"
	default:
		return "is_featured DESC, created_at DESC, id DESC"
	}
}

func (r *productRepo) Categories(ctx context.Context) ([]string, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.Categories")
	defer span.End()

	values, err := r.distinct(ctx, `SELECT DISTINCT category FROM products WHERE is_active = TRUE AND category <> '' ORDER BY category`)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error listing categories: %w", err)
	}

	return values, nil
}

func (r *productRepo) Brands(ctx context.Context) ([]string, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.Brands")
	defer span.End()

	values, err := r.distinct(ctx, `SELECT DISTINCT brand FROM products WHERE is_active = TRUE AND brand <> '' ORDER BY brand`)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error listing brands: %w", err)
	}

	return values, nil
}

func (r *productRepo) distinct(ctx context.Context, query string) ([]string, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		mylogger.Error(ctx, r.logger, "Error selecting distinct values", zap.Error(err))
		return nil, err
	}

	values, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}

	if values == nil {
		values = []string{}
	}

	return values, nil
}
