package service_test

import (
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sakashimaa/storefront/services/storefront/internal/domain"
	"github.com/sakashimaa/storefront/services/storefront/internal/gateway"
	"github.com/sakashimaa/storefront/services/storefront/internal/service"
	"github.com/shopspring/decimal"
)

func (s *StorefrontSuite) TestCreatePaymentIntent() {
	phone := s.seedProduct("phone", 100, 10)
	order := s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 1})

	_, err := s.PaymentService.CreatePaymentIntent(s.Ctx, s.customer, order.ID, decimal.NewFromInt(1))
	s.Require().ErrorIs(err, domain.ErrAmountMismatch)

	_, err = s.PaymentService.CreatePaymentIntent(s.Ctx, s.other, order.ID, order.Pricing.Total)
	s.Require().ErrorIs(err, domain.ErrForbidden)

	intent, err := s.PaymentService.CreatePaymentIntent(s.Ctx, s.customer, order.ID, order.Pricing.Total)
	s.Require().NoError(err)

	// 100 + 99 shipping + 18 tax
	s.Equal(int64(21700), intent.Amount)
	s.Equal("INR", intent.Currency)
	s.Equal("rzp_test_key", intent.KeyID)
	s.NotEmpty(intent.GatewayOrderID)

	stored, err := s.OrderService.GetOrder(s.Ctx, s.customer, domain.RoleCustomer, order.ID)
	s.Require().NoError(err)
	s.Equal(intent.GatewayOrderID, stored.Payment.GatewayOrderID)
}

func (s *StorefrontSuite) TestVerifyPayment_TamperedSignature() {
	phone := s.seedProduct("phone", 100, 10)
	order := s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 1})

	intent, err := s.PaymentService.CreatePaymentIntent(s.Ctx, s.customer, order.ID, order.Pricing.Total)
	s.Require().NoError(err)

	signature := gateway.Sign(gatewaySecret, intent.GatewayOrderID, "pay_1")

	_, err = s.PaymentService.VerifyPayment(s.Ctx, s.customer, service.VerifyPaymentInput{
		OrderID:          order.ID,
		GatewayOrderID:   intent.GatewayOrderID,
		GatewayPaymentID: "pay_2",
		Signature:        signature,
	})
	s.Require().ErrorIs(err, domain.ErrSignatureMismatch)
	s.Equal(float64(1), testutil.ToFloat64(s.Metrics.SignatureFailures))

	_, err = s.PaymentService.VerifyPayment(s.Ctx, s.customer, service.VerifyPaymentInput{
		OrderID:          order.ID,
		GatewayOrderID:   "order_someone_else",
		GatewayPaymentID: "pay_1",
		Signature:        gateway.Sign(gatewaySecret, "order_someone_else", "pay_1"),
	})
	s.Require().ErrorIs(err, domain.ErrSignatureMismatch)

	stored, err := s.OrderService.GetOrder(s.Ctx, s.customer, domain.RoleCustomer, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusPending, stored.Status)
	s.Equal(domain.PaymentStatusPending, stored.Payment.Status)
}

func (s *StorefrontSuite) TestVerifyPayment_ConfirmsOnce() {
	phone := s.seedProduct("phone", 100, 10)
	order := s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 1})

	paid := s.pay(order)

	s.Equal(domain.OrderStatusConfirmed, paid.Status)
	s.Equal(domain.PaymentStatusCompleted, paid.Payment.Status)
	s.Require().NotNil(paid.Payment.PaidAt)
	s.Require().NotNil(paid.Invoice)
	s.Equal("INV-"+order.OrderNumber, paid.Invoice.Number)
	s.Equal(domain.ItemStatusConfirmed, paid.Items[0].Status)
	s.Equal(int32(9), s.stockOf(phone.ID))

	_, err := s.PaymentService.VerifyPayment(s.Ctx, s.customer, service.VerifyPaymentInput{
		OrderID:          order.ID,
		GatewayOrderID:   paid.Payment.GatewayOrderID,
		GatewayPaymentID: "pay_again",
		Signature:        gateway.Sign(gatewaySecret, paid.Payment.GatewayOrderID, "pay_again"),
	})
	s.Require().ErrorIs(err, domain.ErrPaymentAlreadyProcessed)

	_, err = s.PaymentService.CreatePaymentIntent(s.Ctx, s.customer, order.ID, order.Pricing.Total)
	s.Require().ErrorIs(err, domain.ErrPaymentAlreadyProcessed)

	s.Equal(1, s.countRows(`SELECT count(*) FROM outbox WHERE event_type = 'PaymentCompleted'`))
}

func (s *StorefrontSuite) TestPaymentFailure_ReleasesAndRetryReserves() {
	phone := s.seedProduct("phone", 100, 5)
	order := s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 2})
	s.Equal(int32(3), s.stockOf(phone.ID))

	failed, err := s.PaymentService.RecordPaymentFailure(s.Ctx, s.customer, order.ID, "card declined")
	s.Require().NoError(err)

	s.Equal(domain.OrderStatusPending, failed.Status)
	s.Equal(domain.PaymentStatusFailed, failed.Payment.Status)
	s.Equal("card declined", failed.Payment.FailureReason)
	s.Equal(int32(5), s.stockOf(phone.ID))

	_, err = s.PaymentService.RecordPaymentFailure(s.Ctx, s.customer, order.ID, "again")
	s.Require().ErrorIs(err, domain.ErrInvalidTransition)
	s.Equal(int32(5), s.stockOf(phone.ID))

	paid := s.pay(order)
	s.Equal(domain.PaymentStatusCompleted, paid.Payment.Status)
	s.Equal(int32(3), s.stockOf(phone.ID))
}

func (s *StorefrontSuite) TestProcessRefund_Statuses() {
	phone := s.seedProduct("phone", 1000, 10)

	pending := s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 1})
	_, err := s.PaymentService.ProcessRefund(s.Ctx, s.admin, pending.ID, decimal.NewFromInt(10), "nope")
	s.Require().ErrorIs(err, domain.ErrRefundNotAllowed)

	full := s.pay(s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 1}))

	_, err = s.PaymentService.ProcessRefund(s.Ctx, s.admin, full.ID, full.Pricing.Total.Add(decimal.NewFromInt(1)), "too much")
	s.Require().ErrorIs(err, domain.ErrInvalidRefundAmount)

	_, err = s.PaymentService.ProcessRefund(s.Ctx, s.admin, full.ID, decimal.Zero, "zero")
	s.Require().ErrorIs(err, domain.ErrInvalidRefundAmount)

	refunded, err := s.PaymentService.ProcessRefund(s.Ctx, s.admin, full.ID, full.Pricing.Total, "damaged")
	s.Require().NoError(err)
	s.Equal(domain.PaymentStatusRefunded, refunded.Payment.Status)
	s.Equal("rfnd_1", refunded.Payment.RefundID)
	s.Equal("damaged", refunded.Payment.RefundReason)

	half := s.pay(s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 1}))
	partial, err := s.PaymentService.ProcessRefund(s.Ctx, s.admin, half.ID, half.Pricing.Total.Div(decimal.NewFromInt(2)), "partial")
	s.Require().NoError(err)
	s.Equal(domain.PaymentStatusPartiallyRefunded, partial.Payment.Status)

	_, err = s.PaymentService.ProcessRefund(s.Ctx, s.admin, half.ID, decimal.NewFromInt(1), "twice")
	s.Require().ErrorIs(err, domain.ErrRefundNotAllowed)

	s.Equal([]int64{118000, 59000}, s.Gateway.refunds)
	s.Equal(float64(1), testutil.ToFloat64(s.Metrics.Refunds.WithLabelValues(string(domain.PaymentStatusRefunded))))
}

func (s *StorefrontSuite) TestPaymentHistory() {
	phone := s.seedProduct("phone", 100, 10)

	s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 1})
	paid := s.pay(s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 1}))

	history, err := s.PaymentService.PaymentHistory(s.Ctx, s.customer, 1, 10)
	s.Require().NoError(err)

	s.Equal(1, history.Total)
	s.Require().Len(history.Items, 1)
	s.Equal(paid.ID, history.Items[0].ID)
}
