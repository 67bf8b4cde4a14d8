package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicOrderEvents     = "order_events"
	TopicPaymentEvents   = "payment_events"
	TopicInventoryEvents = "inventory_events"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderCancelled     = "OrderCancelled"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventReturnRequested    = "ReturnRequested"
	EventExchangeRequested  = "ExchangeRequested"
	EventPaymentCompleted   = "PaymentCompleted"
	EventPaymentFailed      = "PaymentFailed"
	EventRefundProcessed    = "RefundProcessed"
	EventInventoryChanged   = "InventoryChanged"
)

// Envelope is the message shape on every topic. EventID is assigned by the outbox worker.
type Envelope[T any] struct {
	Event   string `json:"event"`
	EventID int64  `json:"event_id,omitempty"`
	Payload T      `json:"payload"`
}

type Recipient struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone,omitempty"`
}

type OrderItem struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int32           `json:"quantity"`
}

type OrderCreatedEvent struct {
	OrderID           int64           `json:"order_id"`
	OrderNumber       string          `json:"order_number"`
	Recipient         Recipient       `json:"recipient"`
	Items             []OrderItem     `json:"items"`
	Total             decimal.Decimal `json:"total"`
	PaymentMethod     string          `json:"payment_method"`
	EstimatedDelivery time.Time       `json:"estimated_delivery"`
}

type OrderCancelledEvent struct {
	OrderID     int64       `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	Recipient   Recipient   `json:"recipient"`
	Reason      string      `json:"reason"`
	Items       []OrderItem `json:"items"`
}

type OrderStatusChangedEvent struct {
	OrderID        int64     `json:"order_id"`
	OrderNumber    string    `json:"order_number"`
	Recipient      Recipient `json:"recipient"`
	Status         string    `json:"status"`
	Note           string    `json:"note,omitempty"`
	TrackingNumber string    `json:"tracking_number,omitempty"`
	Carrier        string    `json:"carrier,omitempty"`
}

type ReturnRequestedEvent struct {
	OrderID     int64     `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Recipient   Recipient `json:"recipient"`
	Reason      string    `json:"reason"`
}

type ExchangeRequestedEvent struct {
	OrderID         int64           `json:"order_id"`
	OrderNumber     string          `json:"order_number"`
	Recipient       Recipient       `json:"recipient"`
	Reason          string          `json:"reason"`
	NewProductID    int64           `json:"new_product_id"`
	PriceDifference decimal.Decimal `json:"price_difference"`
}

type PaymentCompletedEvent struct {
	OrderID       int64           `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	Recipient     Recipient       `json:"recipient"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentID     string          `json:"payment_id"`
	InvoiceNumber string          `json:"invoice_number"`
	PaidAt        time.Time       `json:"paid_at"`
}

type PaymentFailedEvent struct {
	OrderID     int64     `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Recipient   Recipient `json:"recipient"`
	Reason      string    `json:"reason"`
	FailedAt    time.Time `json:"failed_at"`
}

type RefundProcessedEvent struct {
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	Recipient   Recipient       `json:"recipient"`
	Amount      decimal.Decimal `json:"amount"`
	RefundID    string          `json:"refund_id"`
	Status      string          `json:"status"`
	RefundedAt  time.Time       `json:"refunded_at"`
}

type StockChange struct {
	ProductID int64 `json:"product_id"`
	Delta     int32 `json:"delta"`
}

// InventoryChangedEvent is emitted for every committed stock movement.
type InventoryChangedEvent struct {
	Reason  string        `json:"reason"`
	OrderID int64         `json:"order_id,omitempty"`
	Changes []StockChange `json:"changes"`
}
