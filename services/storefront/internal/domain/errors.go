package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrForbidden               = errors.New("not authorized to access this order")
	ErrInvalidTransition       = errors.New("invalid order transition")
	ErrReturnWindowExpired     = errors.New("return window expired")
	ErrExchangeWindowExpired   = errors.New("exchange window expired")
	ErrProductUnavailable      = errors.New("product not found or inactive")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrNothingAvailable        = errors.New("none of the items are available")
	ErrSignatureMismatch       = errors.New("invalid payment signature")
	ErrRefundNotAllowed        = errors.New("refund not allowed for this order")
	ErrInvalidRefundAmount     = errors.New("refund amount must be positive and not exceed the order total")
	ErrAmountMismatch          = errors.New("amount does not match order total")
	ErrPaymentAlreadyProcessed = errors.New("payment already processed")
	ErrUpstreamGateway         = errors.New("payment gateway error")
	ErrNotProductOwner         = errors.New("not authorized to modify this product")
)

type UnavailableError struct {
	ProductID int64
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("product %d not found or inactive", e.ProductID)
}

func (e *UnavailableError) Unwrap() error { return ErrProductUnavailable }

type StockError struct {
	ProductID int64
	Name      string
	Available int32
	Requested int32
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s. Available: %d", e.Name, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

type UnavailableItem struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Reason    string `json:"reason"`
}

// ReorderUnavailableError reports every item that blocked a reorder.
type ReorderUnavailableError struct {
	Items []UnavailableItem
}

func (e *ReorderUnavailableError) Error() string {
	names := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		names = append(names, item.Name)
	}

	return fmt.Sprintf("none of the items are available: %s", strings.Join(names, ", "))
}

func (e *ReorderUnavailableError) Unwrap() error { return ErrNothingAvailable }
