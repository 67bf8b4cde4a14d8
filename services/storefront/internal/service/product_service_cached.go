package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/storefront/pkg/mylogger"
	"github.com/sakashimaa/storefront/services/storefront/internal/domain"
	"go.uber.org/zap"
)

// CachedProductService fronts ProductService with a Redis read-through cache keyed by product id.
// It also observes stock movements made by orders so cached stock never outlives a commit.
type CachedProductService struct {
	next        ProductService
	redisClient *redis.Client
	cacheTTL    time.Duration
	logger      *zap.Logger
}

func NewCachedProductService(next ProductService, redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedProductService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &CachedProductService{
		next:        next,
		redisClient: redisClient,
		cacheTTL:    ttl,
		logger:      logger,
	}
}

const (
	categoriesKey = "products:meta:categories"
	brandsKey     = "products:meta:brands"
)

func productKey(id int64) string {
	return fmt.Sprintf("product:%d", id)
}

func (s *CachedProductService) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	key := productKey(id)

	val, err := s.redisClient.Get(ctx, key).Bytes()
	if err == nil {
		var product domain.Product
		if err := json.Unmarshal(val, &product); err == nil {
			return &product, nil
		}
	}

	product, err := s.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(product); err == nil {
		if err := s.redisClient.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
			mylogger.Warn(ctx, s.logger, "Failed to cache product", zap.Int64("product_id", id), zap.Error(err))
		}
	}

	return product, nil
}

func (s *CachedProductService) Create(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	product, err := s.next.Create(ctx, product)
	if err != nil {
		return nil, err
	}

	s.invalidateMeta(ctx)
	return product, nil
}

func (s *CachedProductService) List(ctx context.Context, filter domain.ProductFilter) (domain.Page[domain.Product], error) {
	return s.next.List(ctx, filter)
}

func (s *CachedProductService) Update(ctx context.Context, actorID int64, role domain.Role, id int64, input *domain.UpdateProductInput) (*domain.Product, error) {
	product, err := s.next.Update(ctx, actorID, role, id, input)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	s.invalidateMeta(ctx)
	return product, nil
}

func (s *CachedProductService) Delete(ctx context.Context, actorID int64, role domain.Role, id int64) error {
	if err := s.next.Delete(ctx, actorID, role, id); err != nil {
		return err
	}

	s.invalidate(ctx, id)
	s.invalidateMeta(ctx)
	return nil
}

func (s *CachedProductService) AdjustStock(ctx context.Context, actorID int64, role domain.Role, id int64, delta int32) (*domain.Product, error) {
	product, err := s.next.AdjustStock(ctx, actorID, role, id, delta)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	return product, nil
}

func (s *CachedProductService) AddReview(ctx context.Context, userID, productID int64, input ReviewInput) (*domain.Review, domain.Rating, error) {
	review, rating, err := s.next.AddReview(ctx, userID, productID, input)
	if err != nil {
		return nil, domain.Rating{}, err
	}

	s.invalidate(ctx, productID)
	return review, rating, nil
}

func (s *CachedProductService) ListReviews(ctx context.Context, productID int64, page, limit int) (domain.Page[domain.Review], error) {
	return s.next.ListReviews(ctx, productID, page, limit)
}

func (s *CachedProductService) Categories(ctx context.Context) ([]string, error) {
	return s.cachedList(ctx, categoriesKey, s.next.Categories)
}

func (s *CachedProductService) Brands(ctx context.Context) ([]string, error) {
	return s.cachedList(ctx, brandsKey, s.next.Brands)
}

func (s *CachedProductService) cachedList(ctx context.Context, key string, load func(context.Context) ([]string, error)) ([]string, error) {
	if val, err := s.redisClient.Get(ctx, key).Bytes(); err == nil {
		var values []string
		if err := json.Unmarshal(val, &values); err == nil {
			return values, nil
		}
	}

	values, err := load(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(values); err == nil {
		if err := s.redisClient.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
			mylogger.Warn(ctx, s.logger, "Failed to cache catalog meta", zap.String("key", key), zap.Error(err))
		}
	}

	return values, nil
}

func (s *CachedProductService) invalidateMeta(ctx context.Context) {
	if err := s.redisClient.Del(ctx, categoriesKey, brandsKey).Err(); err != nil {
		mylogger.Warn(ctx, s.logger, "Failed to invalidate catalog meta", zap.Error(err))
	}
}

func (s *CachedProductService) StockChanged(ctx context.Context, productIDs ...int64) {
	s.invalidate(ctx, productIDs...)
}

func (s *CachedProductService) invalidate(ctx context.Context, ids ...int64) {
	if len(ids) == 0 {
		return
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, productKey(id))
	}

	if err := s.redisClient.Del(ctx, keys...).Err(); err != nil {
		mylogger.Warn(ctx, s.logger, "Failed to invalidate product cache", zap.Strings("keys", keys), zap.Error(err))
	}
}
