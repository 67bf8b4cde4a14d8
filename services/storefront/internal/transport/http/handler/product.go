package handler

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/storefront/pkg/mylogger"
	"github.com/sakashimaa/storefront/services/storefront/internal/domain"
	"github.com/sakashimaa/storefront/services/storefront/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ProductHandler struct {
	products service.ProductService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewProductHandler(products service.ProductService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		products: products,
		validate: validator.New(),
		logger:   logger,
	}
}

type CreateProductInput struct {
	Name          string           `json:"name" validate:"required,min=3,max=200"`
	Description   string           `json:"description" validate:"max=2000"`
	Category      string           `json:"category" validate:"required,max=100"`
	Brand         string           `json:"brand" validate:"max=100"`
	Images        []string         `json:"images" validate:"omitempty,dive,url"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"original_price"`
	Discount      int32            `json:"discount" validate:"gte=0,max=100"`
	Stock         int32            `json:"stock" validate:"gte=0"`
	Tags          []string         `json:"tags" validate:"omitempty,max=20,dive,min=1,max=50"`
	IsFeatured    bool             `json:"is_featured"`
}

type ReviewRequest struct {
	Rating  int32    `json:"rating" validate:"required,min=1,max=5"`
	Comment string   `json:"comment" validate:"required,min=10,max=500"`
	Images  []string `json:"images" validate:"omitempty,max=5,dive,url"`
}

type StockInput struct {
	Delta int32 `json:"delta" validate:"required"`
}

func (h *ProductHandler) Create(c *fiber.Ctx) error {
	userID, _, err := currentUser(c)
	if err != nil {
		return err
	}

	input := new(CreateProductInput)
	if ok, err := bind(c, h.validate, input); !ok {
		return err
	}

	if !input.Price.IsPositive() {
		return failure(c, fiber.StatusBadRequest, "Validation failed", fiber.Map{
			"errors": []fiber.Map{{"field": "price", "message": "price must be greater than 0"}},
		})
	}

	images := input.Images
	if images == nil {
		images = []string{}
	}

	product, err := h.products.Create(c.UserContext(), &domain.Product{
		SellerID:      userID,
		Name:          input.Name,
		Description:   input.Description,
		Category:      input.Category,
		Brand:         input.Brand,
		Images:        images,
		Price:         input.Price,
		OriginalPrice: input.OriginalPrice,
		Discount:      input.Discount,
		Stock:         input.Stock,
		Tags:          input.Tags,
		IsFeatured:    input.IsFeatured,
	})
	if err != nil {
		return fail(c, h.logger, "create product", err)
	}

	mylogger.Info(
		c.UserContext(),
		h.logger,
		"product created",
		zap.Int64("product_id", product.ID),
		zap.Int64("seller_id", userID),
	)

	return respond(c, fiber.StatusCreated, "Product created successfully", fiber.Map{"product": product})
}

func (h *ProductHandler) Get(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	product, err := h.products.FindByID(c.UserContext(), id)
	if err != nil {
		return fail(c, h.logger, "get product", err)
	}

	return respond(c, fiber.StatusOK, "", fiber.Map{"product": product})
}

func (h *ProductHandler) List(c *fiber.Ctx) error {
	filter, problems := productFilter(c)
	if len(problems) > 0 {
		return failure(c, fiber.StatusBadRequest, "Invalid query parameters", fiber.Map{"errors": problems})
	}

	page, err := h.products.List(c.UserContext(), filter)
	if err != nil {
		return fail(c, h.logger, "list products", err)
	}

	return respond(c, fiber.StatusOK, "", fiber.Map{
		"products":   page.Items,
		"pagination": pagination(page),
	})
}

func (h *ProductHandler) Update(c *fiber.Ctx) error {
	userID, role, err := currentUser(c)
	if err != nil {
		return err
	}

	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	input := new(domain.UpdateProductInput)
	if ok, err := bind(c, h.validate, input); !ok {
		return err
	}

	if input.Price != nil && !input.Price.IsPositive() {
		return failure(c, fiber.StatusBadRequest, "Validation failed", fiber.Map{
			"errors": []fiber.Map{{"field": "price", "message": "price must be greater than 0"}},
		})
	}

	product, err := h.products.Update(c.UserContext(), userID, role, id, input)
	if err != nil {
		return fail(c, h.logger, "update product", err)
	}

	return respond(c, fiber.StatusOK, "Product updated successfully", fiber.Map{"product": product})
}

func (h *ProductHandler) Delete(c *fiber.Ctx) error {
	userID, role, err := currentUser(c)
	if err != nil {
		return err
	}

	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	if err := h.products.Delete(c.UserContext(), userID, role, id); err != nil {
		return fail(c, h.logger, "delete product", err)
	}

	return respond(c, fiber.StatusOK, "Product deleted successfully", nil)
}

func (h *ProductHandler) AdjustStock(c *fiber.Ctx) error {
	userID, role, err := currentUser(c)
	if err != nil {
		return err
	}

	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	input := new(StockInput)
	if ok, err := bind(c, h.validate, input); !ok {
		return err
	}

	product, err := h.products.AdjustStock(c.UserContext(), userID, role, id, input.Delta)
	if err != nil {
		return fail(c, h.logger, "adjust stock", err)
	}

	return respond(c, fiber.StatusOK, "Stock updated", fiber.Map{"product": product})
}

// productFilter reads the catalog query string. Every malformed parameter is reported, not just the first.
func productFilter(c *fiber.Ctx) (domain.ProductFilter, []fiber.Map) {
	var problems []fiber.Map
	invalid := func(field, message string) {
		problems = append(problems, fiber.Map{"field": field, "message": message})
	}

	filter := domain.ProductFilter{
		Page:     c.QueryInt("page", 1),
		Limit:    c.QueryInt("limit", 10),
		Category: c.Query("category"),
		Brand:    c.Query("brand"),
		Search:   c.Query("search"),
		InStock:  c.QueryBool("inStock", false),
		Sort:     domain.ProductSort(c.Query("sort")),
	}

	amount := func(name string) *decimal.Decimal {
		raw := c.Query(name)
		if raw == "" {
			return nil
		}

		v, err := decimal.NewFromString(raw)
		if err != nil || v.IsNegative() {
			invalid(name, name+" must be a non-negative number")
			return nil
		}

		return &v
	}

	filter.MinPrice = amount("minPrice")
	filter.MaxPrice = amount("maxPrice")
	filter.MinRating = amount("rating")

	if filter.MinPrice != nil && filter.MaxPrice != nil && filter.MaxPrice.LessThan(*filter.MinPrice) {
		invalid("maxPrice", "maxPrice must not be below minPrice")
	}
	if filter.MinRating != nil && filter.MinRating.GreaterThan(decimal.NewFromInt(5)) {
		invalid("rating", "rating must be between 0 and 5")
	}
	if !filter.Sort.Valid() {
		invalid("sort", "sort must be one of price_asc, price_desc, rating, newest, popular")
	}

	if raw := c.Query("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				filter.Tags = append(filter.Tags, tag)
			}
		}
	}

	return filter, problems
}

func (h *ProductHandler) AddReview(c *fiber.Ctx) error {
	userID, _, err := currentUser(c)
	if err != nil {
		return err
	}

	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	input := new(ReviewRequest)
	if ok, err := bind(c, h.validate, input); !ok {
		return err
	}

	review, rating, err := h.products.AddReview(c.UserContext(), userID, id, service.ReviewInput{
		Rating:  input.Rating,
		Comment: input.Comment,
		Images:  input.Images,
	})
	if err != nil {
		return fail(c, h.logger, "add review", err)
	}

	return respond(c, fiber.StatusCreated, "Review added successfully", fiber.Map{
		"review": review,
		"rating": rating,
	})
}

func (h *ProductHandler) ListReviews(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	page, err := h.products.ListReviews(c.UserContext(), id, c.QueryInt("page", 1), c.QueryInt("limit", 10))
	if err != nil {
		return fail(c, h.logger, "list reviews", err)
	}

	return respond(c, fiber.StatusOK, "", fiber.Map{
		"reviews":    page.Items,
		"pagination": pagination(page),
	})
}

func (h *ProductHandler) Categories(c *fiber.Ctx) error {
	categories, err := h.products.Categories(c.UserContext())
	if err != nil {
		return fail(c, h.logger, "list categories", err)
	}

	return respond(c, fiber.StatusOK, "", fiber.Map{"categories": categories})
}

func (h *ProductHandler) Brands(c *fiber.Ctx) error {
	brands, err := h.products.Brands(c.UserContext())
	if err != nil {
		return fail(c, h.logger, "list brands", err)
	}

	return respond(c, fiber.StatusOK, "", fiber.Map{"brands": brands})
}
