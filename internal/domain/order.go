package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType selects how an attempt is priced at the venue.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// OrderStatus tracks the lifecycle of an execution attempt.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusTimedOut        OrderStatus = "timed_out"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// Terminal reports whether the status ends an attempt chain.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusPartiallyFilled, OrderStatusRejected,
		OrderStatusTimedOut, OrderStatusCancelled:
		return true
	}
	return false
}

// ExecutionAttempt is one submission of a logical order to the venue. Each
// reprice produces a new attempt with the same OrderID and an incremented
// AttemptNumber. Attempts are owned by the executor invocation that created
// them and are never shared.
type ExecutionAttempt struct {
	OrderID       string // UUID, stable across reprices of one logical order
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Price         float64 // 0 for market orders
	Quantity      float64
	AttemptNumber int
	Status        OrderStatus
	SubmittedAt   time.Time
}

// ExecutionOutcome summarizes a terminal attempt chain for one signal.
type ExecutionOutcome struct {
	SignalID       string
	Symbol         string
	Direction      SignalDirection
	Status         OrderStatus
	Attempts       int
	FilledQuantity float64
	FilledPrice    float64
	Exit           bool // true when the chain closed (part of) a position
	CompletedAt    time.Time
}
