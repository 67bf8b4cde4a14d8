package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/storefront/pkg/ratelimit"
	"github.com/sakashimaa/storefront/services/storefront/internal/domain"
	"github.com/sakashimaa/storefront/services/storefront/internal/transport/http/handler"
	"github.com/sakashimaa/storefront/services/storefront/internal/transport/http/middleware"
	"go.uber.org/zap"
)

type Handlers struct {
	Auth    *handler.AuthHandler
	Product *handler.ProductHandler
	Order   *handler.OrderHandler
	Payment *handler.PaymentHandler
}

type Guards struct {
	Authenticator middleware.Authenticator
	Sensitive     ratelimit.Limiter
	Logger        *zap.Logger
}

func RegisterRoutes(app *fiber.App, h *Handlers, g Guards) {
	api := app.Group("/api")

	protect := middleware.Protect(g.Authenticator, g.Logger)
	sensitive := middleware.SensitiveOperation(g.Sensitive, g.Logger)
	admin := middleware.Authorize(domain.RoleAdmin)
	catalog := middleware.Authorize(domain.RoleSeller, domain.RoleAdmin)

	authGroup := api.Group("/auth")
	authGroup.Post("/register", h.Auth.Register)
	authGroup.Post("/login", h.Auth.Login)

	product := api.Group("/products")
	product.Get("", h.Product.List)
	product.Get("/meta/categories", h.Product.Categories)
	product.Get("/meta/brands", h.Product.Brands)
	product.Get("/:id", h.Product.Get)
	product.Get("/:id/reviews", h.Product.ListReviews)
	product.Post("/:id/reviews", protect, h.Product.AddReview)
	product.Post("", protect, catalog, h.Product.Create)
	product.Put("/:id", protect, catalog, h.Product.Update)
	product.Delete("/:id", protect, catalog, h.Product.Delete)
	product.Patch("/:id/stock", protect, catalog, h.Product.AdjustStock)

	order := api.Group("/orders", protect)
	order.Post("", h.Order.Create)
	order.Get("", h.Order.List)
	order.Get("/:id", h.Order.Get)
	order.Get("/:id/track", h.Order.Track)
	order.Put("/:id/cancel", sensitive, h.Order.Cancel)
	order.Put("/:id/return", sensitive, h.Order.Return)
	order.Put("/:id/exchange", sensitive, h.Order.Exchange)
	order.Post("/:id/reorder", h.Order.Reorder)
	order.Put("/:id/status", admin, h.Order.UpdateStatus)
	order.Put("/:id/return/status", admin, h.Order.UpdateReturnStatus)
	order.Put("/:id/exchange/status", admin, h.Order.UpdateExchangeStatus)

	payment := api.Group("/payments", protect)
	payment.Post("/create-order", h.Payment.CreateOrder)
	payment.Post("/verify", sensitive, h.Payment.Verify)
	payment.Post("/failure", h.Payment.Failure)
	payment.Post("/refund", admin, sensitive, h.Payment.Refund)
	payment.Get("/history", h.Payment.History)
}
