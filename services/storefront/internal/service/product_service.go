package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/storefront/pkg/db"
	generalDomain "github.com/sakashimaa/storefront/pkg/domain"
	"github.com/sakashimaa/storefront/pkg/mylogger"
	"github.com/sakashimaa/storefront/pkg/outbox/worker"
	"github.com/sakashimaa/storefront/services/storefront/internal/domain"
	"github.com/sakashimaa/storefront/services/storefront/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ProductService interface {
	Create(ctx context.Context, product *domain.Product) (*domain.Product, error)
	FindByID(ctx context.Context, id int64) (*domain.Product, error)
	List(ctx context.Context, filter domain.ProductFilter) (domain.Page[domain.Product], error)
	Update(ctx context.Context, actorID int64, role domain.Role, id int64, input *domain.UpdateProductInput) (*domain.Product, error)
	Delete(ctx context.Context, actorID int64, role domain.Role, id int64) error
	AdjustStock(ctx context.Context, actorID int64, role domain.Role, id int64, delta int32) (*domain.Product, error)
	AddReview(ctx context.Context, userID, productID int64, input ReviewInput) (*domain.Review, domain.Rating, error)
	ListReviews(ctx context.Context, productID int64, page, limit int) (domain.Page[domain.Review], error)
	Categories(ctx context.Context) ([]string, error)
	Brands(ctx context.Context) ([]string, error)
}

type ReviewInput struct {
	Rating  int32
	Comment string
	Images  []string
}

type productService struct {
	pool        *pgxpool.Pool
	logger      *zap.Logger
	productRepo repository.ProductRepository
	reviewRepo  repository.ReviewRepository
	outboxRepo  worker.OutboxRepository
	tracer      trace.Tracer
}

func NewProductService(
	pool *pgxpool.Pool,
	logger *zap.Logger,
	productRepo repository.ProductRepository,
	reviewRepo repository.ReviewRepository,
	outboxRepo worker.OutboxRepository,
) ProductService {
	return &productService{
		pool:        pool,
		logger:      logger,
		productRepo: productRepo,
		reviewRepo:  reviewRepo,
		outboxRepo:  outboxRepo,
		tracer:      otel.Tracer("product_service"),
	}
}

func (s *productService) Create(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("name", product.Name),
		attribute.Int64("seller_id", product.SellerID),
	)

	if err := s.productRepo.Create(ctx, product); err != nil {
		span.RecordError(err)
		return nil, err
	}

	mylogger.Info(ctx, s.logger, "Product created", zap.Int64("product_id", product.ID))

	return product, nil
}

// FindByID serves the public catalog, so inactive products read as missing.
func (s *productService) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.FindByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("id", id))

	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if !product.IsActive {
		return nil, repository.ErrProductNotFound
	}

	return product, nil
}

func (s *productService) List(ctx context.Context, filter domain.ProductFilter) (domain.Page[domain.Product], error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.List")
	defer span.End()

	page, limit, offset := domain.NormalizePage(filter.Page, filter.Limit)

	products, total, err := s.productRepo.List(ctx, filter, limit, offset)
	if err != nil {
		span.RecordError(err)
		return domain.Page[domain.Product]{}, err
	}

	return domain.NewPage(products, page, limit, total), nil
}

func (s *productService) Update(ctx context.Context, actorID int64, role domain.Role, id int64, input *domain.UpdateProductInput) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.Update")
	defer span.End()

	span.SetAttributes(attribute.Int64("id", id))

	if _, err := s.ownedProduct(ctx, actorID, role, id); err != nil {
		return nil, err
	}

	if err := s.productRepo.Update(ctx, id, input); err != nil {
		span.RecordError(err)
		return nil, err
	}

	return s.productRepo.GetByID(ctx, id)
}

func (s *productService) Delete(ctx context.Context, actorID int64, role domain.Role, id int64) error {
	ctx, span := s.tracer.Start(ctx, "ProductService.Delete")
	defer span.End()

	span.SetAttributes(attribute.Int64("id", id))

	if _, err := s.ownedProduct(ctx, actorID, role, id); err != nil {
		return err
	}

	if err := s.productRepo.Deactivate(ctx, id); err != nil {
		span.RecordError(err)
		return err
	}

	return nil
}

func (s *productService) AdjustStock(ctx context.Context, actorID int64, role domain.Role, id int64, delta int32) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.AdjustStock")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", id),
		attribute.Int("delta", int(delta)),
	)

	product, err := s.ownedProduct(ctx, actorID, role, id)
	if err != nil {
		return nil, err
	}

	err = db.WithRetry(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		stock, err := s.productRepo.AdjustStock(ctx, tx, id, delta)
		if err != nil {
			return err
		}

		applied := stock - product.Stock
		product.Stock = stock

		return emitEvent(ctx, tx, s.outboxRepo, aggregateProduct, id, generalDomain.EventInventoryChanged, generalDomain.TopicInventoryEvents, generalDomain.InventoryChangedEvent{
			Reason:  "manual_adjustment",
			Changes: []generalDomain.StockChange{{ProductID: id, Delta: applied}},
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return product, nil
}

// AddReview stores the user's review and recomputes the product's rating in the same transaction.
func (s *productService) AddReview(ctx context.Context, userID, productID int64, input ReviewInput) (*domain.Review, domain.Rating, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.AddReview")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("product_id", productID),
		attribute.Int64("user_id", userID),
		attribute.Int("rating", int(input.Rating)),
	)

	if _, err := s.FindByID(ctx, productID); err != nil {
		return nil, domain.Rating{}, err
	}

	review := &domain.Review{
		ProductID: productID,
		UserID:    userID,
		Rating:    input.Rating,
		Comment:   input.Comment,
		Images:    input.Images,
	}

	var rating domain.Rating
	err := db.WithRetry(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		if err := s.reviewRepo.Upsert(ctx, tx, review); err != nil {
			return err
		}

		var err error
		rating, err = s.reviewRepo.RefreshRating(ctx, tx, productID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, domain.Rating{}, err
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Review saved",
		zap.Int64("product_id", productID),
		zap.Int64("user_id", userID),
		zap.Bool("verified", review.Verified),
	)

	return review, rating, nil
}

func (s *productService) ListReviews(ctx context.Context, productID int64, page, limit int) (domain.Page[domain.Review], error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.ListReviews")
	defer span.End()

	span.SetAttributes(attribute.Int64("product_id", productID))

	if _, err := s.FindByID(ctx, productID); err != nil {
		return domain.Page[domain.Review]{}, err
	}

	page, limit, offset := domain.NormalizePage(page, limit)

	reviews, total, err := s.reviewRepo.ListByProduct(ctx, productID, limit, offset)
	if err != nil {
		span.RecordError(err)
		return domain.Page[domain.Review]{}, err
	}

	return domain.NewPage(reviews, page, limit, total), nil
}

func (s *productService) Categories(ctx context.Context) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.Categories")
	defer span.End()

	return s.productRepo.Categories(ctx)
}

func (s *productService) Brands(ctx context.Context) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.Brands")
	defer span.End()

	return s.productRepo.Brands(ctx)
}

func (s *productService) ownedProduct(ctx context.Context, actorID int64, role domain.Role, id int64) (*domain.Product, error) {
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrProductNotFound) {
			mylogger.Error(ctx, s.logger, "Failed to load product", zap.Int64("id", id), zap.Error(err))
		}
		return nil, err
	}

	if product.SellerID != actorID && role != domain.RoleAdmin {
		return nil, domain.ErrNotProductOwner
	}

	return product, nil
}
