package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusReturned   OrderStatus = "returned"
	OrderStatusExchanged  OrderStatus = "exchanged"
)

type PaymentMethod string

const (
	PaymentMethodRazorpay PaymentMethod = "razorpay"
	PaymentMethodCOD      PaymentMethod = "cod"
	PaymentMethodWallet   PaymentMethod = "wallet"
	PaymentMethodUPI      PaymentMethod = "upi"
)

type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusCompleted         PaymentStatus = "completed"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusConfirmed ItemStatus = "confirmed"
	ItemStatusShipped   ItemStatus = "shipped"
	ItemStatusDelivered ItemStatus = "delivered"
	ItemStatusCancelled ItemStatus = "cancelled"
	ItemStatusReturned  ItemStatus = "returned"
)

const (
	ReturnWindow      = 30 * 24 * time.Hour
	ExchangeWindow    = 15 * 24 * time.Hour
	DeliveryEstimate  = 7 * 24 * time.Hour
	CancelRefundState = "pending"
)

type Order struct {
	ID                int64            `json:"id"`
	OrderNumber       string           `json:"order_number"`
	UserID            int64            `json:"user_id"`
	Items             []OrderItem      `json:"items"`
	ShippingAddress   Address          `json:"shipping_address"`
	BillingAddress    Address          `json:"billing_address"`
	Pricing           Pricing          `json:"pricing"`
	Payment           Payment          `json:"payment"`
	Status            OrderStatus      `json:"status"`
	StatusHistory     []StatusEntry    `json:"status_history"`
	Tracking          Tracking         `json:"tracking"`
	Cancellation      *Cancellation    `json:"cancellation,omitempty"`
	Return            *ReturnRequest   `json:"return,omitempty"`
	Exchange          *ExchangeRequest `json:"exchange,omitempty"`
	Invoice           *Invoice         `json:"invoice,omitempty"`
	CouponCode        string           `json:"coupon_code,omitempty"`
	Notes             string           `json:"notes,omitempty"`
	EstimatedDelivery *time.Time       `json:"estimated_delivery,omitempty"`
	ActualDelivery    *time.Time       `json:"actual_delivery,omitempty"`
	StockReserved     bool             `json:"-"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

type OrderItem struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Image     string          `json:"image,omitempty"`
	Quantity  int32           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Variant   Variant         `json:"variant"`
	Status    ItemStatus      `json:"status"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt32(i.Quantity))
}

type Variant struct {
	Size  string `json:"size,omitempty"`
	Color string `json:"color,omitempty"`
}

type Address struct {
	Name           string `json:"name" validate:"required"`
	Phone          string `json:"phone" validate:"required,min=10,max=15"`
	Address        string `json:"address" validate:"required"`
	City           string `json:"city" validate:"required"`
	State          string `json:"state" validate:"required"`
	Pincode        string `json:"pincode" validate:"required,len=6,numeric"`
	Country        string `json:"country,omitempty"`
	SameAsShipping bool   `json:"same_as_shipping,omitempty"`
}

type Payment struct {
	Method           PaymentMethod    `json:"method"`
	Status           PaymentStatus    `json:"status"`
	GatewayOrderID   string           `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string           `json:"gateway_payment_id,omitempty"`
	GatewaySignature string           `json:"-"`
	PaidAt           *time.Time       `json:"paid_at,omitempty"`
	FailureReason    string           `json:"failure_reason,omitempty"`
	RefundID         string           `json:"refund_id,omitempty"`
	RefundAmount     *decimal.Decimal `json:"refund_amount,omitempty"`
	RefundedAt       *time.Time       `json:"refunded_at,omitempty"`
	RefundReason     string           `json:"refund_reason,omitempty"`
}

type StatusEntry struct {
	Status    OrderStatus `json:"status"`
	Note      string      `json:"note,omitempty"`
	UpdatedBy *int64      `json:"updated_by,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type Tracking struct {
	Number  string          `json:"tracking_number,omitempty"`
	Carrier string          `json:"carrier,omitempty"`
	History []TrackingEvent `json:"history,omitempty"`
}

type TrackingEvent struct {
	Status      string    `json:"status"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type Cancellation struct {
	Reason       string    `json:"reason"`
	CancelledBy  int64     `json:"cancelled_by"`
	CancelledAt  time.Time `json:"cancelled_at"`
	RefundStatus string    `json:"refund_status"`
}

type ReturnRequest struct {
	Reason       string           `json:"reason"`
	Status       ReturnStatus     `json:"status"`
	RequestedAt  time.Time        `json:"requested_at"`
	ApprovedAt   *time.Time       `json:"approved_at,omitempty"`
	RefundAmount *decimal.Decimal `json:"refund_amount,omitempty"`
}

type ExchangeRequest struct {
	Reason          string          `json:"reason"`
	Status          ExchangeStatus  `json:"status"`
	RequestedAt     time.Time       `json:"requested_at"`
	NewProductID    int64           `json:"new_product_id"`
	PriceDifference decimal.Decimal `json:"price_difference"`
}

type Invoice struct {
	Number      string    `json:"number"`
	GeneratedAt time.Time `json:"generated_at"`
}

func InvoiceNumber(orderNumber string) string {
	return "INV-" + orderNumber
}

// TrackingView is the read-only projection served by the track endpoint.
type TrackingView struct {
	OrderNumber       string          `json:"order_number"`
	Status            OrderStatus     `json:"status"`
	TrackingNumber    string          `json:"tracking_number,omitempty"`
	Carrier           string          `json:"carrier,omitempty"`
	EstimatedDelivery *time.Time      `json:"estimated_delivery,omitempty"`
	ActualDelivery    *time.Time      `json:"actual_delivery,omitempty"`
	StatusHistory     []StatusEntry   `json:"status_history"`
	TrackingHistory   []TrackingEvent `json:"tracking_history"`
}

func (o *Order) TrackingView() TrackingView {
	history := o.Tracking.History
	if history == nil {
		history = []TrackingEvent{}
	}

	return TrackingView{
		OrderNumber:       o.OrderNumber,
		Status:            o.Status,
		TrackingNumber:    o.Tracking.Number,
		Carrier:           o.Tracking.Carrier,
		EstimatedDelivery: o.EstimatedDelivery,
		ActualDelivery:    o.ActualDelivery,
		StatusHistory:     o.StatusHistory,
		TrackingHistory:   history,
	}
}

func (o *Order) IsOwnedBy(userID int64) bool {
	return o.UserID == userID
}

func (o *Order) CanBeCancelled() bool {
	_, err := Transition(o.Status, EventCancel)
	return err == nil
}

func (o *Order) CanBeReturned(now time.Time) bool {
	return o.WithinWindow(now, ReturnWindow)
}

func (o *Order) CanBeExchanged(now time.Time) bool {
	return o.WithinWindow(now, ExchangeWindow)
}

// WithinWindow reports whether a delivered order is still inside a post-delivery window.
func (o *Order) WithinWindow(now time.Time, window time.Duration) bool {
	return o.Status == OrderStatusDelivered && now.Sub(o.deliveredAt()) <= window
}

func (o *Order) deliveredAt() time.Time {
	if o.ActualDelivery != nil {
		return *o.ActualDelivery
	}

	return o.CreatedAt
}

// Apply moves the order through the transition table and records the change in the history.
func (o *Order) Apply(event OrderEvent, note string, actor *int64, at time.Time) (StatusEntry, error) {
	next, err := Transition(o.Status, event)
	if err != nil {
		return StatusEntry{}, err
	}

	return o.record(next, note, actor, at), nil
}

// Annotate appends a history entry without changing the status.
func (o *Order) Annotate(note string, actor *int64, at time.Time) StatusEntry {
	return o.record(o.Status, note, actor, at)
}

func (o *Order) record(status OrderStatus, note string, actor *int64, at time.Time) StatusEntry {
	entry := StatusEntry{
		Status:    status,
		Note:      note,
		UpdatedBy: actor,
		Timestamp: at,
	}

	o.Status = status
	o.StatusHistory = append(o.StatusHistory, entry)
	o.UpdatedAt = at

	return entry
}

func (o *Order) SetItemStatus(status ItemStatus) {
	for i := range o.Items {
		o.Items[i].Status = status
	}
}
