package handler

import (
	"context"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/storefront/services/storefront/internal/domain"
	"github.com/sakashimaa/storefront/services/storefront/internal/repository"
	"github.com/sakashimaa/storefront/services/storefront/internal/service"
	"github.com/sakashimaa/storefront/services/storefront/internal/transport/http/middleware"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newCatalogApp(products service.ProductService) *fiber.App {
	logger := zap.NewNop()
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger)})

	protect := middleware.Protect(fakeAuthenticator{}, logger)

	h := NewProductHandler(products, logger)
	product := app.Group("/api/products")
	product.Get("", h.List)
	product.Get("/meta/categories", h.Categories)
	product.Get("/meta/brands", h.Brands)
	product.Get("/:id/reviews", h.ListReviews)
	product.Post("/:id/reviews", protect, h.AddReview)

	return app
}

func TestProductHandler_ListFilters(t *testing.T) {
	var got domain.ProductFilter
	products := &fakeProductService{
		list: func(_ context.Context, filter domain.ProductFilter) (domain.Page[domain.Product], error) {
			got = filter
			return domain.NewPage([]domain.Product{{ID: 1, Name: "phone"}}, 1, 10, 1), nil
		},
	}
	app := newCatalogApp(products)

	path := "/api/products?brand=Acme&minPrice=100&maxPrice=999.99&rating=4&inStock=true&tags=5g,%20android,&sort=price_desc&category=electronics"
	code, _, raw := do(t, app, fiber.MethodGet, path, "", "")

	require.Equal(t, fiber.StatusOK, code, raw)
	assert.Contains(t, raw, `"products":[`)
	assert.Equal(t, "Acme", got.Brand)
	assert.Equal(t, "electronics", got.Category)
	require.NotNil(t, got.MinPrice)
	require.NotNil(t, got.MaxPrice)
	require.NotNil(t, got.MinRating)
	assert.True(t, got.MinPrice.Equal(decimal.NewFromInt(100)))
	assert.True(t, got.MaxPrice.Equal(decimal.RequireFromString("999.99")))
	assert.True(t, got.MinRating.Equal(decimal.NewFromInt(4)))
	assert.True(t, got.InStock)
	assert.Equal(t, []string{"5g", "android"}, got.Tags)
	assert.Equal(t, domain.SortPriceDesc, got.Sort)
}

func TestProductHandler_ListRejectsBadQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		field string
	}{
		{name: "unknown sort", query: "sort=cheapest", field: "sort"},
		{name: "non numeric price", query: "minPrice=cheap", field: "minPrice"},
		{name: "negative price", query: "maxPrice=-1", field: "maxPrice"},
		{name: "inverted range", query: "minPrice=500&maxPrice=100", field: "maxPrice"},
		{name: "rating above five", query: "rating=6", field: "rating"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newCatalogApp(&fakeProductService{})

			code, env, _ := do(t, app, fiber.MethodGet, "/api/products?"+tt.query, "", "")

			assert.Equal(t, fiber.StatusBadRequest, code)
			assert.Equal(t, "Invalid query parameters", env.Message)
			require.Len(t, env.Errors, 1)
			assert.Equal(t, tt.field, env.Errors[0]["field"])
		})
	}
}

func TestProductHandler_AddReview(t *testing.T) {
	t.Run("requires auth", func(t *testing.T) {
		app := newCatalogApp(&fakeProductService{})

		code, _, _ := do(t, app, fiber.MethodPost, "/api/products/3/reviews", "", `{"rating": 4, "comment": "Solid build quality"}`)
		assert.Equal(t, fiber.StatusUnauthorized, code)
	})

	t.Run("validation", func(t *testing.T) {
		bodies := []string{
			`{"rating": 0, "comment": "Solid build quality"}`,
			`{"rating": 6, "comment": "Solid build quality"}`,
			`{"rating": 4, "comment": "short"}`,
			`{"rating": 4, "comment": "Solid build quality", "images": ["not a url"]}`,
		}

		for _, body := range bodies {
			app := newCatalogApp(&fakeProductService{})

			code, env, _ := do(t, app, fiber.MethodPost, "/api/products/3/reviews", "customer", body)
			assert.Equal(t, fiber.StatusBadRequest, code, body)
			assert.Equal(t, "Validation failed", env.Message, body)
		}
	})

	t.Run("success", func(t *testing.T) {
		products := &fakeProductService{
			addReview: func(_ context.Context, userID, productID int64, input service.ReviewInput) (*domain.Review, domain.Rating, error) {
				assert.Equal(t, int64(1), userID)
				assert.Equal(t, int64(3), productID)
				assert.Equal(t, int32(4), input.Rating)
				return &domain.Review{ID: 7, ProductID: productID, UserID: userID, Rating: input.Rating, Comment: input.Comment},
					domain.Rating{Average: decimal.RequireFromString("4.5"), Count: 2}, nil
			},
		}
		app := newCatalogApp(products)

		code, env, raw := do(t, app, fiber.MethodPost, "/api/products/3/reviews", "customer", `{"rating": 4, "comment": "Solid build quality"}`)

		assert.Equal(t, fiber.StatusCreated, code)
		assert.Equal(t, "Review added successfully", env.Message)
		assert.Contains(t, raw, `"count":2`)
		assert.Contains(t, raw, `"comment":"Solid build quality"`)
	})

	t.Run("missing product", func(t *testing.T) {
		products := &fakeProductService{
			addReview: func(context.Context, int64, int64, service.ReviewInput) (*domain.Review, domain.Rating, error) {
				return nil, domain.Rating{}, repository.ErrProductNotFound
			},
		}
		app := newCatalogApp(products)

		code, env, _ := do(t, app, fiber.MethodPost, "/api/products/3/reviews", "customer", `{"rating": 4, "comment": "Solid build quality"}`)

		assert.Equal(t, fiber.StatusNotFound, code)
		assert.Equal(t, "Product not found", env.Message)
	})
}

func TestProductHandler_ListReviews(t *testing.T) {
	products := &fakeProductService{
		listReviews: func(_ context.Context, productID int64, page, limit int) (domain.Page[domain.Review], error) {
			assert.Equal(t, int64(3), productID)
			assert.Equal(t, 2, page)
			assert.Equal(t, 5, limit)
			return domain.NewPage([]domain.Review{{ID: 1, Rating: 5}}, page, limit, 6), nil
		},
	}
	app := newCatalogApp(products)

	code, _, raw := do(t, app, fiber.MethodGet, "/api/products/3/reviews?page=2&limit=5", "", "")

	assert.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, raw, `"reviews":[`)
	assert.Contains(t, raw, `"pages":2`)
}

func TestProductHandler_Meta(t *testing.T) {
	products := &fakeProductService{
		categories: func(context.Context) ([]string, error) { return []string{"accessories", "electronics"}, nil },
		brands:     func(context.Context) ([]string, error) { return []string{"Acme"}, nil },
	}
	app := newCatalogApp(products)

	code, _, raw := do(t, app, fiber.MethodGet, "/api/products/meta/categories", "", "")
	assert.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, raw, `"categories":["accessories","electronics"]`)

	code, _, raw = do(t, app, fiber.MethodGet, "/api/products/meta/brands", "", "")
	assert.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, raw, `"brands":["Acme"]`)
}
