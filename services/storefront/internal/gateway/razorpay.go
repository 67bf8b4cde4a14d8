package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/sakashimaa/storefront/pkg/mylogger"
	"github.com/sakashimaa/storefront/pkg/utils"
	"github.com/sakashimaa/storefront/services/storefront/internal/domain"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type PaymentGateway interface {
	CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string) (string, error)
	Refund(ctx context.Context, paymentID string, amountPaise int64) (string, error)
	VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool
	KeyID() string
}

type orderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type paymentAPI interface {
	Refund(paymentID string, amount int, data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type razorpayGateway struct {
	keyID     string
	keySecret string
	orders    orderAPI
	payments  paymentAPI
	cb        *gobreaker.CircuitBreaker
	timeout   time.Duration
	logger    *zap.Logger
	tracer    trace.Tracer
}

func NewRazorpayGateway(keyID, keySecret string, timeout time.Duration, logger *zap.Logger) PaymentGateway {
	client := razorpay.NewClient(keyID, keySecret)

	return newGateway(keyID, keySecret, client.Order, client.Payment, timeout, logger)
}

func newGateway(keyID, keySecret string, orders orderAPI, payments paymentAPI, timeout time.Duration, logger *zap.Logger) *razorpayGateway {
	return &razorpayGateway{
		keyID:     keyID,
		keySecret: keySecret,
		orders:    orders,
		payments:  payments,
		cb:        utils.NewBreaker("razorpay", logger),
		timeout:   timeout,
		logger:    logger,
		tracer:    otel.Tracer("gateway/razorpay"),
	}
}

func (g *razorpayGateway) KeyID() string {
	return g.keyID
}

func (g *razorpayGateway) CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string) (string, error) {
	ctx, span := g.tracer.Start(ctx, "PaymentGateway.CreateOrder")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("amount", amountPaise),
		attribute.String("receipt", receipt),
	)

	data := map[string]interface{}{
		"amount":   amountPaise,
		"currency": currency,
		"receipt":  receipt,
	}

	body, err := g.call(ctx, func() (map[string]interface{}, error) {
		return g.orders.Create(data, nil)
	})
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, g.logger, "Razorpay order creation failed", zap.String("receipt", receipt), zap.Error(err))

		return "", err
	}

	id, ok := body["id"].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("%w: order response has no id", domain.ErrUpstreamGateway)
	}

	return id, nil
}

func (g *razorpayGateway) Refund(ctx context.Context, paymentID string, amountPaise int64) (string, error) {
	ctx, span := g.tracer.Start(ctx, "PaymentGateway.Refund")
	defer span.End()

	span.SetAttributes(
		attribute.String("payment_id", paymentID),
		attribute.Int64("amount", amountPaise),
	)

	body, err := g.call(ctx, func() (map[string]interface{}, error) {
		return g.payments.Refund(paymentID, int(amountPaise), nil, nil)
	})
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, g.logger, "Razorpay refund failed", zap.String("payment_id", paymentID), zap.Error(err))

		return "", err
	}

	id, ok := body["id"].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("%w: refund response has no id", domain.ErrUpstreamGateway)
	}

	return id, nil
}

// VerifySignature checks hex(HMAC-SHA256(secret, orderID|paymentID)) in constant time.
func (g *razorpayGateway) VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	return VerifySignature(g.keySecret, gatewayOrderID, gatewayPaymentID, signature)
}

func VerifySignature(secret, gatewayOrderID, gatewayPaymentID, signature string) bool {
	expected := Sign(secret, gatewayOrderID, gatewayPaymentID)

	return hmac.Equal([]byte(expected), []byte(signature))
}

func Sign(secret, gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))

	return hex.EncodeToString(mac.Sum(nil))
}

type callResult struct {
	body map[string]interface{}
	err  error
}

// call runs fn through the breaker and gives up after the configured timeout.
// Open-breaker errors are returned as is; everything else wraps ErrUpstreamGateway.
func (g *razorpayGateway) call(ctx context.Context, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body, err := utils.ExecuteWithBreaker(g.cb, func() (map[string]interface{}, error) {
		done := make(chan callResult, 1)
		go func() {
			body, err := fn()
			done <- callResult{body: body, err: err}
		}()

		select {
		case res := <-done:
			return res.body, res.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("razorpay unavailable: %w", err)
		}

		return nil, fmt.Errorf("%w: %w", domain.ErrUpstreamGateway, err)
	}

	return body, nil
}
