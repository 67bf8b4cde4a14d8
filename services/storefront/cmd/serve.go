package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/storefront/pkg/config"
	"github.com/sakashimaa/storefront/pkg/db"
	"github.com/sakashimaa/storefront/pkg/kafka"
	"github.com/sakashimaa/storefront/pkg/mylogger"
	outboxRepository "github.com/sakashimaa/storefront/pkg/outbox/repository"
	"github.com/sakashimaa/storefront/pkg/outbox/worker"
	"github.com/sakashimaa/storefront/pkg/ratelimit"
	"github.com/sakashimaa/storefront/pkg/utils"
	"github.com/sakashimaa/storefront/services/storefront/internal/auth"
	"github.com/sakashimaa/storefront/services/storefront/internal/gateway"
	"github.com/sakashimaa/storefront/services/storefront/internal/metrics"
	"github.com/sakashimaa/storefront/services/storefront/internal/repository"
	"github.com/sakashimaa/storefront/services/storefront/internal/service"
	"github.com/sakashimaa/storefront/services/storefront/internal/transport/http"
	"github.com/sakashimaa/storefront/services/storefront/internal/transport/http/handler"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the outbox publisher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	decimal.MarshalJSONWithoutQuotes = true

	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.LoggerConfig("storefront-service"))
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tp, err := utils.InitTracer(ctx, cfg.TracerConfig("storefront-service"))
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}

	pool, err := db.NewPostgresDB(cfg.Postgres.URL, db.DefaultPoolOptions())
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Printf("Error closing redis: %v\n", err)
		}
	}()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	log.Println("Successfully connected to Redis ✅")

	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, logger)
	if err != nil {
		return fmt.Errorf("create kafka producer: %w", err)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			log.Printf("Error closing kafka producer: %v\n", err)
		}
	}()

	m := metrics.New()

	orderRepo := repository.NewOrderRepository(pool, logger)
	productRepo := repository.NewProductRepository(pool, logger)
	userRepo := repository.NewUserRepository(pool, logger)
	outboxRepo := outboxRepository.NewOutboxRepository(pool, logger)

	productService := service.NewCachedProductService(
		service.NewProductService(pool, logger, productRepo, repository.NewReviewRepository(pool, logger), outboxRepo),
		redisClient,
		cfg.Redis.CacheTTL,
		logger,
	)

	orderService := service.NewOrderService(service.OrderServiceDeps{
		Pool:     pool,
		Logger:   logger,
		Orders:   orderRepo,
		Products: productRepo,
		Users:    userRepo,
		Outbox:   outboxRepo,
		Stock:    productService,
		Metrics:  m,
		Policy: service.Policy{
			ReturnWindow:   cfg.Order.ReturnWindow,
			ExchangeWindow: cfg.Order.ExchangeWindow,
		},
	})

	paymentService := service.NewPaymentService(service.PaymentServiceDeps{
		Pool:     pool,
		Logger:   logger,
		Orders:   orderRepo,
		Products: productRepo,
		Users:    userRepo,
		Outbox:   outboxRepo,
		Gateway:  gateway.NewRazorpayGateway(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret, cfg.Razorpay.Timeout, logger),
		Stock:    productService,
		Metrics:  m,
		Currency: cfg.Razorpay.Currency,
	})

	authService := service.NewAuthService(userRepo, auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTTL), logger)

	outboxProcessor := worker.NewOutboxProcessor(pool, outboxRepo, producer, logger)
	go outboxProcessor.Start(ctx)

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTP.Timeout,
		WriteTimeout: cfg.HTTP.Timeout,
		ErrorHandler: handler.ErrorHandler(logger),
	})

	app.Use(otelfiber.Middleware())
	app.Use(m.Middleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))

	app.Use("/api", limiter.New(limiter.Config{
		Max:        cfg.Limiter.Max,
		Expiration: cfg.Limiter.Expiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"message": "Too many requests. Try again later.",
			})
		},
	}))

	http.RegisterRoutes(app, &http.Handlers{
		Auth:    handler.NewAuthHandler(authService, logger),
		Product: handler.NewProductHandler(productService, logger),
		Order:   handler.NewOrderHandler(orderService, logger),
		Payment: handler.NewPaymentHandler(paymentService, logger),
	}, http.Guards{
		Authenticator: authService,
		Sensitive:     ratelimit.NewRedisLimiter(redisClient, "ratelimit:", cfg.RateLimit.Max, cfg.RateLimit.Window),
		Logger:        logger,
	})

	go func() {
		log.Println("HTTP Service listening on: " + cfg.HTTP.Port + " 🔥")
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			mylogger.Error(ctx, logger, "HTTP server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	log.Println("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP app: %v\n", err)
	} else {
		log.Println("HTTP App stopped gracefully")
	}

	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down telemetry: %v\n", err)
	} else {
		log.Println("Telemetry stopped correctly")
	}

	return nil
}
