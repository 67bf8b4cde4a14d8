package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sakashimaa/storefront/pkg/kafka"
	outboxRepository "github.com/sakashimaa/storefront/pkg/outbox/repository"
	"github.com/sakashimaa/storefront/pkg/outbox/worker"
	"github.com/sakashimaa/storefront/pkg/testsuite"
	"github.com/sakashimaa/storefront/services/storefront/internal/auth"
	"github.com/sakashimaa/storefront/services/storefront/internal/domain"
	"github.com/sakashimaa/storefront/services/storefront/internal/gateway"
	"github.com/sakashimaa/storefront/services/storefront/internal/metrics"
	"github.com/sakashimaa/storefront/services/storefront/internal/repository"
	"github.com/sakashimaa/storefront/services/storefront/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

const gatewaySecret = "test_secret"

type fakeGateway struct {
	mu      sync.Mutex
	orders  int
	refunds []int64
}

func (g *fakeGateway) CreateOrder(_ context.Context, _ int64, _, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.orders++
	return fmt.Sprintf("order_test_%d", g.orders), nil
}

func (g *fakeGateway) Refund(_ context.Context, _ string, amountPaise int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.refunds = append(g.refunds, amountPaise)
	return fmt.Sprintf("rfnd_%d", len(g.refunds)), nil
}

func (g *fakeGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return gateway.VerifySignature(gatewaySecret, orderID, paymentID, signature)
}

func (g *fakeGateway) KeyID() string {
	return "rzp_test_key"
}

type StorefrontSuite struct {
	testsuite.BaseSuite

	OrderService   service.OrderService
	PaymentService service.PaymentService
	ProductService *service.CachedProductService
	AuthService    service.AuthService
	ProductRepo    repository.ProductRepository
	OutboxWorker   *worker.OutboxProcessor
	Producer       kafka.Producer
	Metrics        *metrics.Metrics
	Gateway        *fakeGateway

	clock    time.Time
	customer int64
	other    int64
	admin    int64
	seller   int64
}

func (s *StorefrontSuite) SetupSuite() {
	s.BaseSuite.SetupInfrastructure(testsuite.Options{
		MigrationsPath: "../../migrations",
		WithKafka:      true,
		WithRedis:      true,
	})

	var err error
	s.Producer, err = kafka.NewProducer(s.KafkaBrokers, zap.NewNop())
	s.Require().NoError(err, "failed to create kafka producer")
}

func (s *StorefrontSuite) TearDownSuite() {
	if s.Producer != nil {
		s.Producer.Close()
	}
	s.BaseSuite.TearDownInfrastructure()
}

func (s *StorefrontSuite) SetupTest() {
	s.BaseSuite.TruncateTables("outbox", "order_status_history", "order_items", "orders", "product_reviews", "products", "users")

	s.clock = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.clock }

	logger := zap.NewNop()
	orderRepo := repository.NewOrderRepository(s.DbPool, logger)
	userRepo := repository.NewUserRepository(s.DbPool, logger)
	outboxRepo := outboxRepository.NewOutboxRepository(s.DbPool, logger)
	s.ProductRepo = repository.NewProductRepository(s.DbPool, logger)

	s.Metrics = metrics.New()
	s.Gateway = &fakeGateway{}

	s.ProductService = service.NewCachedProductService(
		service.NewProductService(s.DbPool, logger, s.ProductRepo, repository.NewReviewRepository(s.DbPool, logger), outboxRepo),
		s.RedisClient,
		time.Minute,
		logger,
	)

	s.OrderService = service.NewOrderService(service.OrderServiceDeps{
		Pool:     s.DbPool,
		Logger:   logger,
		Orders:   orderRepo,
		Products: s.ProductRepo,
		Users:    userRepo,
		Outbox:   outboxRepo,
		Stock:    s.ProductService,
		Metrics:  s.Metrics,
		Clock:    clock,
	})

	s.PaymentService = service.NewPaymentService(service.PaymentServiceDeps{
		Pool:     s.DbPool,
		Logger:   logger,
		Orders:   orderRepo,
		Products: s.ProductRepo,
		Users:    userRepo,
		Outbox:   outboxRepo,
		Gateway:  s.Gateway,
		Stock:    s.ProductService,
		Metrics:  s.Metrics,
		Clock:    clock,
	})

	s.AuthService = service.NewAuthService(userRepo, auth.NewTokenManager("jwt_secret", time.Hour), logger)
	s.OutboxWorker = worker.NewOutboxProcessor(s.DbPool, outboxRepo, s.Producer, logger)

	s.customer = s.seedUser("customer@example.com", domain.RoleCustomer)
	s.other = s.seedUser("other@example.com", domain.RoleCustomer)
	s.admin = s.seedUser("admin@example.com", domain.RoleAdmin)
	s.seller = s.seedUser("seller@example.com", domain.RoleSeller)
}

func (s *StorefrontSuite) seedUser(email string, role domain.Role) int64 {
	query := `
		INSERT INTO users (name, email, phone, password_hash, role)
		VALUES ($1, $2, '+919999999999', 'x', $3)
		RETURNING id
	`

	var id int64
	err := s.DbPool.QueryRow(s.Ctx, query, "User "+email, email, string(role)).Scan(&id)
	s.Require().NoError(err)

	return id
}

func (s *StorefrontSuite) seedProduct(name string, price int64, stock int32) *domain.Product {
	product := &domain.Product{
		SellerID: s.seller,
		Name:     name,
		Category: "test",
		Images:   []string{"https://cdn.example.com/" + name + ".png"},
		Price:    decimal.NewFromInt(price),
		Stock:    stock,
	}

	s.Require().NoError(s.ProductRepo.Create(s.Ctx, product))

	return product
}

func (s *StorefrontSuite) stockOf(productID int64) int32 {
	var stock int32
	err := s.DbPool.QueryRow(s.Ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock)
	s.Require().NoError(err)

	return stock
}

func (s *StorefrontSuite) countRows(query string, args ...any) int {
	var n int
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, query, args...).Scan(&n))
	return n
}

func (s *StorefrontSuite) address() domain.Address {
	return domain.Address{
		Name:    "Asha",
		Phone:   "9876543210",
		Address: "12 MG Road",
		City:    "Bengaluru",
		State:   "KA",
		Pincode: "560001",
		Country: "India",
	}
}

func (s *StorefrontSuite) placeOrder(userID int64, lines ...service.OrderLine) *domain.Order {
	order, err := s.OrderService.CreateOrder(s.Ctx, userID, service.CreateOrderInput{
		Items:           lines,
		ShippingAddress: s.address(),
		PaymentMethod:   domain.PaymentMethodRazorpay,
	})
	s.Require().NoError(err)

	return order
}

// pay runs the intent and verification steps for the order owner.
func (s *StorefrontSuite) pay(order *domain.Order) *domain.Order {
	intent, err := s.PaymentService.CreatePaymentIntent(s.Ctx, order.UserID, order.ID, order.Pricing.Total)
	s.Require().NoError(err)

	paid, err := s.PaymentService.VerifyPayment(s.Ctx, order.UserID, service.VerifyPaymentInput{
		OrderID:          order.ID,
		GatewayOrderID:   intent.GatewayOrderID,
		GatewayPaymentID: "pay_" + order.OrderNumber,
		Signature:        gateway.Sign(gatewaySecret, intent.GatewayOrderID, "pay_"+order.OrderNumber),
	})
	s.Require().NoError(err)

	return paid
}

func (s *StorefrontSuite) deliver(order *domain.Order) *domain.Order {
	order = s.pay(order)

	_, err := s.OrderService.UpdateStatus(s.Ctx, s.admin, order.ID, service.UpdateStatusInput{
		Status:         domain.OrderStatusShipped,
		TrackingNumber: "TRK1",
		Carrier:        "BlueDart",
	})
	s.Require().NoError(err)

	delivered, err := s.OrderService.UpdateStatus(s.Ctx, s.admin, order.ID, service.UpdateStatusInput{
		Status:   domain.OrderStatusDelivered,
		Location: "Bengaluru",
	})
	s.Require().NoError(err)

	return delivered
}

func TestStorefrontSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("integration suite needs docker")
	}

	suite.Run(t, new(StorefrontSuite))
}
