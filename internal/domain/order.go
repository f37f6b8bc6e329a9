package domain

import "time"

// OrderType distinguishes the four supported order types.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// OrderSide indicates whether an order buys or sells the base currency.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the other side of the market.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// Order represents a trading intent submitted to an order book. The caller
// owns the order while in transit; once resting on a book, the book owns it
// and Amount holds the remaining (unfilled) quantity, always > 0.
type Order struct {
	OrderID       string
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Amount        float64 // remaining quantity while resting
	Price         float64 // quantized to the symbol's grid; 0 for market orders
	ParticipantID string
	CreatedAt     time.Time
}
