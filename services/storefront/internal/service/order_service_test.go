package service_test

import (
	"errors"
	"time"

	"github.com/sakashimaa/storefront/services/storefront/internal/domain"
	"github.com/sakashimaa/storefront/services/storefront/internal/repository"
	"github.com/sakashimaa/storefront/services/storefront/internal/service"
	"github.com/shopspring/decimal"
)

func (s *StorefrontSuite) TestCreateOrder_PricesAndReservesStock() {
	phone := s.seedProduct("phone", 100, 10)
	cable := s.seedProduct("cable", 50, 5)

	order := s.placeOrder(s.customer,
		service.OrderLine{ProductID: phone.ID, Quantity: 2, Variant: domain.Variant{Color: "black"}},
		service.OrderLine{ProductID: cable.ID, Quantity: 1},
	)

	s.Equal(domain.OrderStatusPending, order.Status)
	s.Equal(domain.PaymentStatusPending, order.Payment.Status)
	s.True(order.Pricing.Subtotal.Equal(decimal.NewFromInt(250)))
	s.True(order.Pricing.Shipping.Equal(decimal.NewFromInt(99)))
	s.True(order.Pricing.Tax.Equal(decimal.NewFromInt(45)))
	s.True(order.Pricing.Total.Equal(decimal.NewFromInt(394)))
	s.Regexp(`^ORD-\d+-\d{4}$`, order.OrderNumber)
	s.True(order.BillingAddress.SameAsShipping)

	s.Equal(int32(8), s.stockOf(phone.ID))
	s.Equal(int32(4), s.stockOf(cable.ID))

	stored, err := s.OrderService.GetOrder(s.Ctx, s.customer, domain.RoleCustomer, order.ID)
	s.Require().NoError(err)
	s.Require().Len(stored.Items, 2)
	s.Equal("phone", stored.Items[0].Name)
	s.Equal("black", stored.Items[0].Variant.Color)
	s.Require().Len(stored.StatusHistory, 1)
	s.Equal("Order placed successfully", stored.StatusHistory[0].Note)

	s.Equal(1, s.countRows(`SELECT count(*) FROM outbox WHERE event_type = 'OrderCreated'`))
	s.Equal(1, s.countRows(`SELECT count(*) FROM outbox WHERE event_type = 'InventoryChanged'`))
}

func (s *StorefrontSuite) TestCreateOrder_FreeShippingAndCouponClamp() {
	tv := s.seedProduct("tv", 600, 3)

	order, err := s.OrderService.CreateOrder(s.Ctx, s.customer, service.CreateOrderInput{
		Items:           []service.OrderLine{{ProductID: tv.ID, Quantity: 1}},
		ShippingAddress: s.address(),
		PaymentMethod:   domain.PaymentMethodUPI,
		Coupon:          &service.Coupon{Code: "HUGE", Discount: decimal.NewFromInt(5000)},
	})
	s.Require().NoError(err)

	s.True(order.Pricing.Shipping.IsZero())
	s.True(order.Pricing.Total.IsZero())
	s.True(order.Pricing.Discount.Equal(decimal.NewFromInt(708)))
	s.Equal("HUGE", order.CouponCode)
}

func (s *StorefrontSuite) TestCreateOrder_SubPaiseCouponIsRounded() {
	phone := s.seedProduct("phone", 100, 10)
	cable := s.seedProduct("cable", 50, 5)

	order, err := s.OrderService.CreateOrder(s.Ctx, s.customer, service.CreateOrderInput{
		Items: []service.OrderLine{
			{ProductID: phone.ID, Quantity: 2},
			{ProductID: cable.ID, Quantity: 1},
		},
		ShippingAddress: s.address(),
		PaymentMethod:   domain.PaymentMethodUPI,
		Coupon:          &service.Coupon{Code: "ODD", Discount: decimal.RequireFromString("10.005")},
	})
	s.Require().NoError(err)

	s.True(order.Pricing.Discount.Equal(decimal.RequireFromString("10.01")), "discount %s", order.Pricing.Discount)
	s.True(order.Pricing.Total.Equal(decimal.RequireFromString("383.99")), "total %s", order.Pricing.Total)

	stored, err := s.OrderService.GetOrder(s.Ctx, s.customer, domain.RoleCustomer, order.ID)
	s.Require().NoError(err)
	s.True(stored.Pricing.Total.Equal(order.Pricing.Total))
	s.Equal(int32(8), s.stockOf(phone.ID))
}

func (s *StorefrontSuite) TestCreateOrder_InsufficientStockRollsBack() {
	phone := s.seedProduct("phone", 100, 10)
	cable := s.seedProduct("cable", 50, 1)

	_, err := s.OrderService.CreateOrder(s.Ctx, s.customer, service.CreateOrderInput{
		Items: []service.OrderLine{
			{ProductID: phone.ID, Quantity: 2},
			{ProductID: cable.ID, Quantity: 3},
		},
		ShippingAddress: s.address(),
		PaymentMethod:   domain.PaymentMethodRazorpay,
	})
	s.Require().ErrorIs(err, domain.ErrInsufficientStock)

	var stockErr *domain.StockError
	s.Require().True(errors.As(err, &stockErr))
	s.Equal(int32(1), stockErr.Available)
	s.Equal("cable", stockErr.Name)

	s.Equal(int32(10), s.stockOf(phone.ID))
	s.Equal(int32(1), s.stockOf(cable.ID))
	s.Equal(0, s.countRows(`SELECT count(*) FROM orders`))
	s.Equal(0, s.countRows(`SELECT count(*) FROM outbox`))
}

func (s *StorefrontSuite) TestCreateOrder_DuplicateLinesAggregateDemand() {
	phone := s.seedProduct("phone", 100, 3)

	_, err := s.OrderService.CreateOrder(s.Ctx, s.customer, service.CreateOrderInput{
		Items: []service.OrderLine{
			{ProductID: phone.ID, Quantity: 2},
			{ProductID: phone.ID, Quantity: 2},
		},
		ShippingAddress: s.address(),
		PaymentMethod:   domain.PaymentMethodCOD,
	})
	s.Require().ErrorIs(err, domain.ErrInsufficientStock)
	s.Equal(int32(3), s.stockOf(phone.ID))
}

func (s *StorefrontSuite) TestCreateOrder_UnavailableProduct() {
	phone := s.seedProduct("phone", 100, 10)
	s.Require().NoError(s.ProductRepo.Deactivate(s.Ctx, phone.ID))

	_, err := s.OrderService.CreateOrder(s.Ctx, s.customer, service.CreateOrderInput{
		Items:           []service.OrderLine{{ProductID: phone.ID, Quantity: 1}},
		ShippingAddress: s.address(),
		PaymentMethod:   domain.PaymentMethodCOD,
	})
	s.Require().ErrorIs(err, domain.ErrProductUnavailable)

	_, err = s.OrderService.CreateOrder(s.Ctx, s.customer, service.CreateOrderInput{
		Items:           []service.OrderLine{{ProductID: 424242, Quantity: 1}},
		ShippingAddress: s.address(),
		PaymentMethod:   domain.PaymentMethodCOD,
	})
	s.Require().ErrorIs(err, domain.ErrProductUnavailable)
}

func (s *StorefrontSuite) TestCancelOrder_RestoresStockOnce() {
	phone := s.seedProduct("phone", 100, 10)
	order := s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 3})
	s.Equal(int32(7), s.stockOf(phone.ID))

	cancelled, err := s.OrderService.CancelOrder(s.Ctx, s.customer, order.ID, "changed my mind")
	s.Require().NoError(err)

	s.Equal(domain.OrderStatusCancelled, cancelled.Status)
	s.Require().NotNil(cancelled.Cancellation)
	s.Equal("changed my mind", cancelled.Cancellation.Reason)
	s.Equal(domain.CancelRefundState, cancelled.Cancellation.RefundStatus)
	s.Equal(int32(10), s.stockOf(phone.ID))

	_, err = s.OrderService.CancelOrder(s.Ctx, s.customer, order.ID, "again")
	s.Require().ErrorIs(err, domain.ErrInvalidTransition)
	s.Equal(int32(10), s.stockOf(phone.ID))

	stored, err := s.OrderService.GetOrder(s.Ctx, s.customer, domain.RoleCustomer, order.ID)
	s.Require().NoError(err)
	s.Require().Len(stored.StatusHistory, 2)
	s.Equal(domain.OrderStatusCancelled, stored.StatusHistory[1].Status)
	s.Equal(domain.ItemStatusCancelled, stored.Items[0].Status)
	s.Equal(1, s.countRows(`SELECT count(*) FROM outbox WHERE event_type = 'OrderCancelled'`))
}

func (s *StorefrontSuite) TestCancelOrder_OwnershipAndExistence() {
	phone := s.seedProduct("phone", 100, 10)
	order := s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 1})

	_, err := s.OrderService.CancelOrder(s.Ctx, s.other, order.ID, "not mine")
	s.Require().ErrorIs(err, domain.ErrForbidden)

	_, err = s.OrderService.CancelOrder(s.Ctx, s.customer, 999999, "missing")
	s.Require().ErrorIs(err, repository.ErrOrderNotFound)

	_, err = s.OrderService.GetOrder(s.Ctx, s.other, domain.RoleCustomer, order.ID)
	s.Require().ErrorIs(err, domain.ErrForbidden)

	viewed, err := s.OrderService.GetOrder(s.Ctx, s.admin, domain.RoleAdmin, order.ID)
	s.Require().NoError(err)
	s.Equal(order.ID, viewed.ID)
}

func (s *StorefrontSuite) TestCancelOrder_RejectedAfterShipment() {
	phone := s.seedProduct("phone", 100, 10)
	order := s.pay(s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 1}))

	_, err := s.OrderService.UpdateStatus(s.Ctx, s.admin, order.ID, service.UpdateStatusInput{
		Status:         domain.OrderStatusShipped,
		TrackingNumber: "TRK9",
		Carrier:        "Delhivery",
	})
	s.Require().NoError(err)

	_, err = s.OrderService.CancelOrder(s.Ctx, s.customer, order.ID, "too late")
	s.Require().ErrorIs(err, domain.ErrInvalidTransition)
	s.Equal(int32(9), s.stockOf(phone.ID))
}

func (s *StorefrontSuite) TestUpdateStatus_TracksShipment() {
	phone := s.seedProduct("phone", 100, 10)
	order := s.deliver(s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 1}))

	s.Equal(domain.OrderStatusDelivered, order.Status)
	s.Require().NotNil(order.ActualDelivery)

	view, err := s.OrderService.TrackOrder(s.Ctx, s.customer, domain.RoleCustomer, order.ID)
	s.Require().NoError(err)

	s.Equal("TRK1", view.TrackingNumber)
	s.Equal("BlueDart", view.Carrier)
	s.Len(view.TrackingHistory, 2)
	s.Equal("Bengaluru", view.TrackingHistory[1].Location)
	s.Len(view.StatusHistory, 4)

	_, err = s.OrderService.UpdateStatus(s.Ctx, s.admin, order.ID, service.UpdateStatusInput{Status: domain.OrderStatusPending})
	s.Require().ErrorIs(err, domain.ErrInvalidTransition)
}

func (s *StorefrontSuite) TestRequestReturn_Window() {
	phone := s.seedProduct("phone", 100, 10)
	late := s.deliver(s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 1}))
	onTime := s.deliver(s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 1}))

	s.clock = s.clock.Add(29 * 24 * time.Hour)

	returned, err := s.OrderService.RequestReturn(s.Ctx, s.customer, onTime.ID, "broken screen")
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusReturned, returned.Status)
	s.Equal(domain.ReturnRequested, returned.Return.Status)

	s.clock = s.clock.Add(2 * 24 * time.Hour)

	_, err = s.OrderService.RequestReturn(s.Ctx, s.customer, late.ID, "broken screen")
	s.Require().ErrorIs(err, domain.ErrReturnWindowExpired)
}

func (s *StorefrontSuite) TestRequestReturn_NotDelivered() {
	phone := s.seedProduct("phone", 100, 10)
	order := s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 1})

	_, err := s.OrderService.RequestReturn(s.Ctx, s.customer, order.ID, "early")
	s.Require().ErrorIs(err, domain.ErrInvalidTransition)
}

func (s *StorefrontSuite) TestReturnRefunded_RestoresStock() {
	phone := s.seedProduct("phone", 100, 10)
	order := s.deliver(s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 2}))

	_, err := s.OrderService.RequestReturn(s.Ctx, s.customer, order.ID, "wrong size")
	s.Require().NoError(err)

	_, err = s.OrderService.UpdateReturnStatus(s.Ctx, s.admin, order.ID, domain.ReturnRefunded, "")
	s.Require().ErrorIs(err, domain.ErrInvalidTransition)

	for _, status := range []domain.ReturnStatus{domain.ReturnApproved, domain.ReturnPickedUp, domain.ReturnReceived} {
		_, err = s.OrderService.UpdateReturnStatus(s.Ctx, s.admin, order.ID, status, "")
		s.Require().NoError(err)
	}
	s.Equal(int32(8), s.stockOf(phone.ID))

	refunded, err := s.OrderService.UpdateReturnStatus(s.Ctx, s.admin, order.ID, domain.ReturnRefunded, "done")
	s.Require().NoError(err)

	s.Equal(domain.ReturnRefunded, refunded.Return.Status)
	s.Require().NotNil(refunded.Return.RefundAmount)
	s.True(refunded.Return.RefundAmount.Equal(order.Pricing.Total))
	s.Equal(int32(10), s.stockOf(phone.ID))
}

func (s *StorefrontSuite) TestReturnRejected_RestoresDelivered() {
	phone := s.seedProduct("phone", 100, 10)
	order := s.deliver(s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 1}))

	_, err := s.OrderService.RequestReturn(s.Ctx, s.customer, order.ID, "meh")
	s.Require().NoError(err)

	rejected, err := s.OrderService.UpdateReturnStatus(s.Ctx, s.admin, order.ID, domain.ReturnRejected, "used item")
	s.Require().NoError(err)

	s.Equal(domain.OrderStatusDelivered, rejected.Status)
	s.Equal(domain.ReturnRejected, rejected.Return.Status)
	s.Equal(int32(9), s.stockOf(phone.ID))
}

func (s *StorefrontSuite) TestRequestExchange_PriceDifference() {
	phone := s.seedProduct("phone", 100, 10)
	upgrade := s.seedProduct("phone-pro", 180, 10)
	order := s.deliver(s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 1}))

	exchanged, err := s.OrderService.RequestExchange(s.Ctx, s.customer, order.ID, "want pro", upgrade.ID)
	s.Require().NoError(err)

	s.Equal(domain.OrderStatusExchanged, exchanged.Status)
	s.Require().NotNil(exchanged.Exchange)
	s.Equal(upgrade.ID, exchanged.Exchange.NewProductID)
	s.True(exchanged.Exchange.PriceDifference.Equal(decimal.NewFromInt(80)))
}

func (s *StorefrontSuite) TestRequestExchange_WindowAndReplacement() {
	phone := s.seedProduct("phone", 100, 10)
	retired := s.seedProduct("retired", 90, 10)
	s.Require().NoError(s.ProductRepo.Deactivate(s.Ctx, retired.ID))

	order := s.deliver(s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 1}))

	_, err := s.OrderService.RequestExchange(s.Ctx, s.customer, order.ID, "swap", retired.ID)
	s.Require().ErrorIs(err, domain.ErrProductUnavailable)

	s.clock = s.clock.Add(16 * 24 * time.Hour)

	_, err = s.OrderService.RequestExchange(s.Ctx, s.customer, order.ID, "swap", phone.ID)
	s.Require().ErrorIs(err, domain.ErrExchangeWindowExpired)
}

func (s *StorefrontSuite) TestReorder_PartialAvailability() {
	phone := s.seedProduct("phone", 100, 10)
	cable := s.seedProduct("cable", 50, 10)
	order := s.placeOrder(s.customer,
		service.OrderLine{ProductID: phone.ID, Quantity: 1},
		service.OrderLine{ProductID: cable.ID, Quantity: 2},
	)
	s.Require().NoError(s.ProductRepo.Deactivate(s.Ctx, cable.ID))

	result, err := s.OrderService.Reorder(s.Ctx, s.customer, order.ID)
	s.Require().NoError(err)

	s.NotEqual(order.ID, result.Order.ID)
	s.Require().Len(result.Order.Items, 1)
	s.Equal(phone.ID, result.Order.Items[0].ProductID)
	s.Require().Len(result.Unavailable, 1)
	s.Equal("Product is no longer available", result.Unavailable[0].Reason)
	s.Equal(int32(8), s.stockOf(phone.ID))
}

func (s *StorefrontSuite) TestReorder_NothingAvailable() {
	phone := s.seedProduct("phone", 100, 3)
	order := s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 2})

	_, err := s.ProductService.AdjustStock(s.Ctx, s.seller, domain.RoleSeller, phone.ID, -1)
	s.Require().NoError(err)

	_, err = s.OrderService.Reorder(s.Ctx, s.customer, order.ID)
	s.Require().ErrorIs(err, domain.ErrNothingAvailable)

	var unavailable *domain.ReorderUnavailableError
	s.Require().True(errors.As(err, &unavailable))
	s.Require().Len(unavailable.Items, 1)
	s.Equal("Only 0 items available", unavailable.Items[0].Reason)

	s.Equal(1, s.countRows(`SELECT count(*) FROM orders`))

	_, err = s.OrderService.Reorder(s.Ctx, s.other, order.ID)
	s.Require().ErrorIs(err, domain.ErrForbidden)
}

func (s *StorefrontSuite) TestListOrders_FiltersAndPaginates() {
	phone := s.seedProduct("phone", 100, 50)

	for i := 0; i < 3; i++ {
		s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 1})
		s.clock = s.clock.Add(time.Minute)
	}
	cancelled := s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 1})
	_, err := s.OrderService.CancelOrder(s.Ctx, s.customer, cancelled.ID, "dup")
	s.Require().NoError(err)
	s.placeOrder(s.other, service.OrderLine{ProductID: phone.ID, Quantity: 1})

	page, err := s.OrderService.ListOrders(s.Ctx, s.customer, service.ListOrdersFilter{Page: 1, Limit: 2})
	s.Require().NoError(err)
	s.Equal(4, page.Total)
	s.Equal(2, page.Pages)
	s.Require().Len(page.Items, 2)
	s.Equal(cancelled.ID, page.Items[0].ID)

	page, err = s.OrderService.ListOrders(s.Ctx, s.customer, service.ListOrdersFilter{Status: domain.OrderStatusCancelled})
	s.Require().NoError(err)
	s.Equal(1, page.Total)
	s.Equal(cancelled.ID, page.Items[0].ID)
}
