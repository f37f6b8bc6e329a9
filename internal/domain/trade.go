package domain

import "time"

// TradeKind records which order type produced a trade.
type TradeKind string

const (
	TradeKindMarket TradeKind = "market"
	TradeKindLimit  TradeKind = "limit"
	TradeKindStop   TradeKind = "stop"
)

// KindForOrderType maps an incoming order's type to the kind recorded on
// the trades it produces. Stop and stop-limit fills are both tagged stop.
func KindForOrderType(t OrderType) TradeKind {
	switch t {
	case OrderTypeLimit:
		return TradeKindLimit
	case OrderTypeStop, OrderTypeStopLimit:
		return TradeKindStop
	default:
		return TradeKindMarket
	}
}

// Trade represents a completed match between a buyer and a seller.
// Immutable once created.
type Trade struct {
	TradeID    string
	Symbol     string
	BuyerID    string
	SellerID   string
	Price      float64
	Volume     float64
	ExecutedAt time.Time
	Kind       TradeKind
}
