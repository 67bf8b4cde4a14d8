package domain

import "fmt"

type OrderEvent string

const (
	EventPaymentVerified  OrderEvent = "payment_verified"
	EventPaymentFailed    OrderEvent = "payment_failed"
	EventCancel           OrderEvent = "cancel"
	EventProcess          OrderEvent = "process"
	EventShip             OrderEvent = "ship"
	EventDeliver          OrderEvent = "deliver"
	EventRequestReturn    OrderEvent = "request_return"
	EventRequestExchange  OrderEvent = "request_exchange"
	EventReturnRejected   OrderEvent = "return_rejected"
	EventExchangeRejected OrderEvent = "exchange_rejected"
)

// orderTransitions is the single source of truth for legal status changes. cancelled is terminal.
var orderTransitions = map[OrderStatus]map[OrderEvent]OrderStatus{
	OrderStatusPending: {
		EventPaymentVerified: OrderStatusConfirmed,
		EventPaymentFailed:   OrderStatusPending,
		EventCancel:          OrderStatusCancelled,
	},
	OrderStatusConfirmed: {
		EventProcess: OrderStatusProcessing,
		EventShip:    OrderStatusShipped,
		EventCancel:  OrderStatusCancelled,
	},
	OrderStatusProcessing: {
		EventShip:   OrderStatusShipped,
		EventCancel: OrderStatusCancelled,
	},
	OrderStatusShipped: {
		EventDeliver: OrderStatusDelivered,
	},
	OrderStatusDelivered: {
		EventRequestReturn:   OrderStatusReturned,
		EventRequestExchange: OrderStatusExchanged,
	},
	OrderStatusReturned: {
		EventReturnRejected: OrderStatusDelivered,
	},
	OrderStatusExchanged: {
		EventExchangeRejected: OrderStatusDelivered,
	},
}

func Transition(current OrderStatus, event OrderEvent) (OrderStatus, error) {
	next, ok := orderTransitions[current][event]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s order", ErrInvalidTransition, event, current)
	}

	return next, nil
}

// FulfilmentEvent maps an admin status write to its lifecycle event.
func FulfilmentEvent(target OrderStatus) (OrderEvent, error) {
	switch target {
	case OrderStatusProcessing:
		return EventProcess, nil
	case OrderStatusShipped:
		return EventShip, nil
	case OrderStatusDelivered:
		return EventDeliver, nil
	default:
		return "", fmt.Errorf("%w: %s is not a fulfilment status", ErrInvalidTransition, target)
	}
}

type ReturnStatus string

const (
	ReturnRequested ReturnStatus = "requested"
	ReturnApproved  ReturnStatus = "approved"
	ReturnRejected  ReturnStatus = "rejected"
	ReturnPickedUp  ReturnStatus = "picked_up"
	ReturnReceived  ReturnStatus = "received"
	ReturnRefunded  ReturnStatus = "refunded"
)

var returnTransitions = map[ReturnStatus][]ReturnStatus{
	ReturnRequested: {ReturnApproved, ReturnRejected},
	ReturnApproved:  {ReturnPickedUp},
	ReturnPickedUp:  {ReturnReceived},
	ReturnReceived:  {ReturnRefunded},
}

func NextReturnStatus(current, target ReturnStatus) error {
	for _, allowed := range returnTransitions[current] {
		if allowed == target {
			return nil
		}
	}

	return fmt.Errorf("%w: return %s -> %s", ErrInvalidTransition, current, target)
}

type ExchangeStatus string

const (
	ExchangeRequested ExchangeStatus = "requested"
	ExchangeApproved  ExchangeStatus = "approved"
	ExchangeRejected  ExchangeStatus = "rejected"
	ExchangePickedUp  ExchangeStatus = "picked_up"
	ExchangeReceived  ExchangeStatus = "received"
	ExchangeShipped   ExchangeStatus = "shipped"
	ExchangeDelivered ExchangeStatus = "delivered"
)

var exchangeTransitions = map[ExchangeStatus][]ExchangeStatus{
	ExchangeRequested: {ExchangeApproved, ExchangeRejected},
	ExchangeApproved:  {ExchangePickedUp},
	ExchangePickedUp:  {ExchangeReceived},
	ExchangeReceived:  {ExchangeShipped},
	ExchangeShipped:   {ExchangeDelivered},
}

func NextExchangeStatus(current, target ExchangeStatus) error {
	for _, allowed := range exchangeTransitions[current] {
		if allowed == target {
			return nil
		}
	}

	return fmt.Errorf("%w: exchange %s -> %s", ErrInvalidTransition, current, target)
}
