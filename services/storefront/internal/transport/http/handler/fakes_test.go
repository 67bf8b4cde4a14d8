package handler

import (
	"context"
	"errors"

	"github.com/sakashimaa/storefront/services/storefront/internal/auth"
	"github.com/sakashimaa/storefront/services/storefront/internal/domain"
	"github.com/sakashimaa/storefront/services/storefront/internal/service"
	"github.com/shopspring/decimal"
)

var errNotStubbed = errors.New("not stubbed")

type fakeOrderService struct {
	createOrder          func(ctx context.Context, userID int64, input service.CreateOrderInput) (*domain.Order, error)
	getOrder             func(ctx context.Context, actorID int64, role domain.Role, orderID int64) (*domain.Order, error)
	listOrders           func(ctx context.Context, userID int64, filter service.ListOrdersFilter) (domain.Page[domain.Order], error)
	cancelOrder          func(ctx context.Context, actorID, orderID int64, reason string) (*domain.Order, error)
	requestReturn        func(ctx context.Context, actorID, orderID int64, reason string) (*domain.Order, error)
	requestExchange      func(ctx context.Context, actorID, orderID int64, reason string, newProductID int64) (*domain.Order, error)
	reorder              func(ctx context.Context, actorID, orderID int64) (*service.ReorderResult, error)
	trackOrder           func(ctx context.Context, actorID int64, role domain.Role, orderID int64) (*domain.TrackingView, error)
	updateStatus         func(ctx context.Context, adminID, orderID int64, input service.UpdateStatusInput) (*domain.Order, error)
	updateReturnStatus   func(ctx context.Context, adminID, orderID int64, status domain.ReturnStatus, note string) (*domain.Order, error)
	updateExchangeStatus func(ctx context.Context, adminID, orderID int64, status domain.ExchangeStatus, note string) (*domain.Order, error)
}

func (f *fakeOrderService) CreateOrder(ctx context.Context, userID int64, input service.CreateOrderInput) (*domain.Order, error) {
	if f.createOrder == nil {
		return nil, errNotStubbed
	}
	return f.createOrder(ctx, userID, input)
}

func (f *fakeOrderService) GetOrder(ctx context.Context, actorID int64, role domain.Role, orderID int64) (*domain.Order, error) {
	if f.getOrder == nil {
		return nil, errNotStubbed
	}
	return f.getOrder(ctx, actorID, role, orderID)
}

func (f *fakeOrderService) ListOrders(ctx context.Context, userID int64, filter service.ListOrdersFilter) (domain.Page[domain.Order], error) {
	if f.listOrders == nil {
		return domain.Page[domain.Order]{}, errNotStubbed
	}
	return f.listOrders(ctx, userID, filter)
}

func (f *fakeOrderService) CancelOrder(ctx context.Context, actorID, orderID int64, reason string) (*domain.Order, error) {
	if f.cancelOrder == nil {
		return nil, errNotStubbed
	}
	return f.cancelOrder(ctx, actorID, orderID, reason)
}

func (f *fakeOrderService) RequestReturn(ctx context.Context, actorID, orderID int64, reason string) (*domain.Order, error) {
	if f.requestReturn == nil {
		return nil, errNotStubbed
	}
	return f.requestReturn(ctx, actorID, orderID, reason)
}

func (f *fakeOrderService) RequestExchange(ctx context.Context, actorID, orderID int64, reason string, newProductID int64) (*domain.Order, error) {
	if f.requestExchange == nil {
		return nil, errNotStubbed
	}
	return f.requestExchange(ctx, actorID, orderID, reason, newProductID)
}

func (f *fakeOrderService) Reorder(ctx context.Context, actorID, orderID int64) (*service.ReorderResult, error) {
	if f.reorder == nil {
		return nil, errNotStubbed
	}
	return f.reorder(ctx, actorID, orderID)
}

func (f *fakeOrderService) TrackOrder(ctx context.Context, actorID int64, role domain.Role, orderID int64) (*domain.TrackingView, error) {
	if f.trackOrder == nil {
		return nil, errNotStubbed
	}
	return f.trackOrder(ctx, actorID, role, orderID)
}

func (f *fakeOrderService) UpdateStatus(ctx context.Context, adminID, orderID int64, input service.UpdateStatusInput) (*domain.Order, error) {
	if f.updateStatus == nil {
		return nil, errNotStubbed
	}
	return f.updateStatus(ctx, adminID, orderID, input)
}

func (f *fakeOrderService) UpdateReturnStatus(ctx context.Context, adminID, orderID int64, status domain.ReturnStatus, note string) (*domain.Order, error) {
	if f.updateReturnStatus == nil {
		return nil, errNotStubbed
	}
	return f.updateReturnStatus(ctx, adminID, orderID, status, note)
}

func (f *fakeOrderService) UpdateExchangeStatus(ctx context.Context, adminID, orderID int64, status domain.ExchangeStatus, note string) (*domain.Order, error) {
	if f.updateExchangeStatus == nil {
		return nil, errNotStubbed
	}
	return f.updateExchangeStatus(ctx, adminID, orderID, status, note)
}

type fakePaymentService struct {
	createPaymentIntent  func(ctx context.Context, userID, orderID int64, amount decimal.Decimal) (*service.PaymentIntent, error)
	verifyPayment        func(ctx context.Context, userID int64, input service.VerifyPaymentInput) (*domain.Order, error)
	recordPaymentFailure func(ctx context.Context, userID, orderID int64, details string) (*domain.Order, error)
	processRefund        func(ctx context.Context, adminID, orderID int64, amount decimal.Decimal, reason string) (*domain.Order, error)
	paymentHistory       func(ctx context.Context, userID int64, page, limit int) (domain.Page[domain.Order], error)
}

func (f *fakePaymentService) CreatePaymentIntent(ctx context.Context, userID, orderID int64, amount decimal.Decimal) (*service.PaymentIntent, error) {
	if f.createPaymentIntent == nil {
		return nil, errNotStubbed
	}
	return f.createPaymentIntent(ctx, userID, orderID, amount)
}

func (f *fakePaymentService) VerifyPayment(ctx context.Context, userID int64, input service.VerifyPaymentInput) (*domain.Order, error) {
	if f.verifyPayment == nil {
		return nil, errNotStubbed
	}
	return f.verifyPayment(ctx, userID, input)
}

func (f *fakePaymentService) RecordPaymentFailure(ctx context.Context, userID, orderID int64, details string) (*domain.Order, error) {
	if f.recordPaymentFailure == nil {
		return nil, errNotStubbed
	}
	return f.recordPaymentFailure(ctx, userID, orderID, details)
}

func (f *fakePaymentService) ProcessRefund(ctx context.Context, adminID, orderID int64, amount decimal.Decimal, reason string) (*domain.Order, error) {
	if f.processRefund == nil {
		return nil, errNotStubbed
	}
	return f.processRefund(ctx, adminID, orderID, amount, reason)
}

func (f *fakePaymentService) PaymentHistory(ctx context.Context, userID int64, page, limit int) (domain.Page[domain.Order], error) {
	if f.paymentHistory == nil {
		return domain.Page[domain.Order]{}, errNotStubbed
	}
	return f.paymentHistory(ctx, userID, page, limit)
}

type fakeAuthenticator struct{}

// Authenticate treats the bearer token as "<role>" and assigns fixed ids per role.
func (fakeAuthenticator) Authenticate(_ context.Context, token string) (*domain.User, error) {
	switch domain.Role(token) {
	case domain.RoleCustomer:
		return &domain.User{ID: 1, Role: domain.RoleCustomer, IsActive: true}, nil
	case domain.RoleAdmin:
		return &domain.User{ID: 99, Role: domain.RoleAdmin, IsActive: true}, nil
	case domain.RoleSeller:
		return &domain.User{ID: 50, Role: domain.RoleSeller, IsActive: true}, nil
	}

	return nil, auth.ErrTokenInvalid
}

type fakeProductService struct {
	list        func(ctx context.Context, filter domain.ProductFilter) (domain.Page[domain.Product], error)
	addReview   func(ctx context.Context, userID, productID int64, input service.ReviewInput) (*domain.Review, domain.Rating, error)
	listReviews func(ctx context.Context, productID int64, page, limit int) (domain.Page[domain.Review], error)
	categories  func(ctx context.Context) ([]string, error)
	brands      func(ctx context.Context) ([]string, error)
}

func (f *fakeProductService) Create(context.Context, *domain.Product) (*domain.Product, error) {
	return nil, errNotStubbed
}

func (f *fakeProductService) FindByID(context.Context, int64) (*domain.Product, error) {
	return nil, errNotStubbed
}

func (f *fakeProductService) List(ctx context.Context, filter domain.ProductFilter) (domain.Page[domain.Product], error) {
	if f.list == nil {
		return domain.Page[domain.Product]{}, errNotStubbed
	}
	return f.list(ctx, filter)
}

func (f *fakeProductService) Update(context.Context, int64, domain.Role, int64, *domain.UpdateProductInput) (*domain.Product, error) {
	return nil, errNotStubbed
}

func (f *fakeProductService) Delete(context.Context, int64, domain.Role, int64) error {
	return errNotStubbed
}

func (f *fakeProductService) AdjustStock(context.Context, int64, domain.Role, int64, int32) (*domain.Product, error) {
	return nil, errNotStubbed
}

func (f *fakeProductService) AddReview(ctx context.Context, userID, productID int64, input service.ReviewInput) (*domain.Review, domain.Rating, error) {
	if f.addReview == nil {
		return nil, domain.Rating{}, errNotStubbed
	}
	return f.addReview(ctx, userID, productID, input)
}

func (f *fakeProductService) ListReviews(ctx context.Context, productID int64, page, limit int) (domain.Page[domain.Review], error) {
	if f.listReviews == nil {
		return domain.Page[domain.Review]{}, errNotStubbed
	}
	return f.listReviews(ctx, productID, page, limit)
}

func (f *fakeProductService) Categories(ctx context.Context) ([]string, error) {
	if f.categories == nil {
		return nil, errNotStubbed
	}
	return f.categories(ctx)
}

func (f *fakeProductService) Brands(ctx context.Context) ([]string, error) {
	if f.brands == nil {
		return nil, errNotStubbed
	}
	return f.brands(ctx)
}
