package engine

import (
	"time"

	"github.com/google/btree"
	"github.com/google/uuid"

	"github.com/quartzfx/fxsim/internal/domain"
)

// priceLevel is one bucket of resting orders at a single price. Keys are
// integer points on the symbol's grid so numerically equal prices always
// land in the same bucket. Orders queue FIFO within a level.
type priceLevel struct {
	points int64
	orders []*domain.Order
}

// totalAmount sums the remaining amounts of every order at the level.
func (l *priceLevel) totalAmount() float64 {
	var total float64
	for _, o := range l.orders {
		total += o.Amount
	}
	return total
}

// bidLevelLess orders the bid side price descending, so Min() is the best
// bid (highest price).
func bidLevelLess(a, b *priceLevel) bool {
	return a.points > b.points
}

// askLevelLess orders the ask side price ascending, so Min() is the best
// ask (lowest price).
func askLevelLess(a, b *priceLevel) bool {
	return a.points < b.points
}

// BookLevel is one aggregated entry of a depth snapshot.
type BookLevel struct {
	Price      float64
	Volume     float64
	Cumulative float64
}

// OrderBook holds the resting orders for a single symbol on two sides of
// B-tree price levels and executes the matching algorithms. It performs no
// locking of its own: the owning MarketEngine serializes all access
// (single-writer discipline).
type OrderBook struct {
	symbol         string
	bids           *btree.BTreeG[*priceLevel]
	asks           *btree.BTreeG[*priceLevel]
	lastTradePrice float64
	totalVolume    float64
}

// NewOrderBook creates an order book for the given symbol. basePrice seeds
// the last-trade price used by stop triggering before any trade occurs.
func NewOrderBook(symbol string, basePrice float64) *OrderBook {
	const degree = 32
	return &OrderBook{
		symbol:         symbol,
		bids:           btree.NewG(degree, bidLevelLess),
		asks:           btree.NewG(degree, askLevelLess),
		lastTradePrice: basePrice,
	}
}

// Symbol returns the instrument this book trades.
func (ob *OrderBook) Symbol() string { return ob.symbol }

// LastPrice returns the price of the most recent fill.
func (ob *OrderBook) LastPrice() float64 { return ob.lastTradePrice }

// TotalVolume returns the cumulative traded volume since creation or the
// last Clear.
func (ob *OrderBook) TotalVolume() float64 { return ob.totalVolume }

// Submit routes an order through the matching engine and returns the trades
// it produced, possibly none.
//
// Market orders walk the opposite side best-first; any unfilled remainder
// is discarded, never queued. Limit orders fill against levels at or better
// than their price and rest the residual. Stop and stop-limit orders are
// checked once against the last trade price at submission: a buy stop
// triggers at last >= stop, a sell stop at last <= stop. Triggered stops
// convert to market orders, triggered stop-limits to limit orders;
// untriggered ones are discarded rather than retained.
func (ob *OrderBook) Submit(order *domain.Order) []*domain.Trade {
	switch order.Type {
	case domain.OrderTypeMarket:
		return ob.matchMarket(order, domain.KindForOrderType(order.Type))
	case domain.OrderTypeLimit:
		return ob.matchLimit(order, domain.KindForOrderType(order.Type))
	case domain.OrderTypeStop:
		if !ob.stopTriggered(order) {
			return nil
		}
		return ob.matchMarket(order, domain.TradeKindStop)
	case domain.OrderTypeStopLimit:
		if !ob.stopTriggered(order) {
			return nil
		}
		return ob.matchLimit(order, domain.TradeKindStop)
	}
	return nil
}

func (ob *OrderBook) stopTriggered(order *domain.Order) bool {
	if order.Side == domain.OrderSideBuy {
		return ob.lastTradePrice >= order.Price
	}
	return ob.lastTradePrice <= order.Price
}

// matchMarket fills the order against the opposite side from the best price
// outward until it is filled or liquidity runs out. The remainder is
// discarded.
func (ob *OrderBook) matchMarket(order *domain.Order, kind domain.TradeKind) []*domain.Trade {
	return ob.fill(order, 0, false, kind)
}

// matchLimit fills the marketable part of the order against levels at or
// better than its price, then rests any residual amount at the requested
// price on the order's own side.
func (ob *OrderBook) matchLimit(order *domain.Order, kind domain.TradeKind) []*domain.Trade {
	limit := domain.PricePoints(ob.symbol, order.Price)
	trades := ob.fill(order, limit, true, kind)
	if order.Amount > 0 {
		ob.rest(order, limit)
	}
	return trades
}

// fill is the shared match loop. It consumes resting orders from the best
// opposite level outward, FIFO within each level, creating a trade per
// consumed order. Every fill updates the book's last-trade price and
// cumulative volume. When priceCapped is set, matching stops at the first
// level worse than limitPoints.
func (ob *OrderBook) fill(order *domain.Order, limitPoints int64, priceCapped bool, kind domain.TradeKind) []*domain.Trade {
	opposite := ob.asks
	if order.Side == domain.OrderSideSell {
		opposite = ob.bids
	}

	var trades []*domain.Trade
	executedAt := time.Now()

	for order.Amount > 0 {
		level, ok := opposite.Min()
		if !ok {
			break
		}
		if priceCapped {
			if order.Side == domain.OrderSideBuy && level.points > limitPoints {
				break
			}
			if order.Side == domain.OrderSideSell && level.points < limitPoints {
				break
			}
		}

		price := domain.PointsToPrice(ob.symbol, level.points)

		for order.Amount > 0 && len(level.orders) > 0 {
			resting := level.orders[0]

			volume := order.Amount
			if resting.Amount < volume {
				volume = resting.Amount
			}

			buyer, seller := order.ParticipantID, resting.ParticipantID
			if order.Side == domain.OrderSideSell {
				buyer, seller = resting.ParticipantID, order.ParticipantID
			}

			trades = append(trades, &domain.Trade{
				TradeID:    uuid.New().String(),
				Symbol:     ob.symbol,
				BuyerID:    buyer,
				SellerID:   seller,
				Price:      price,
				Volume:     volume,
				ExecutedAt: executedAt,
				Kind:       kind,
			})

			order.Amount -= volume
			resting.Amount -= volume
			ob.lastTradePrice = price
			ob.totalVolume += volume

			if resting.Amount <= 0 {
				level.orders = level.orders[1:]
			}
		}

		if len(level.orders) == 0 {
			opposite.Delete(level)
		}
	}

	return trades
}

// rest queues the order at its price level on its own side, creating the
// level if needed.
func (ob *OrderBook) rest(order *domain.Order, points int64) {
	side := ob.bids
	if order.Side == domain.OrderSideSell {
		side = ob.asks
	}
	if level, ok := side.Get(&priceLevel{points: points}); ok {
		level.orders = append(level.orders, order)
		return
	}
	side.ReplaceOrInsert(&priceLevel{points: points, orders: []*domain.Order{order}})
}

// BestBid returns the highest resting bid price.
func (ob *OrderBook) BestBid() (float64, bool) {
	level, ok := ob.bids.Min()
	if !ok {
		return 0, false
	}
	return domain.PointsToPrice(ob.symbol, level.points), true
}

// BestAsk returns the lowest resting ask price.
func (ob *OrderBook) BestAsk() (float64, bool) {
	level, ok := ob.asks.Min()
	if !ok {
		return 0, false
	}
	return domain.PointsToPrice(ob.symbol, level.points), true
}

// Spread returns best ask minus best bid, or false when either side is
// empty.
func (ob *OrderBook) Spread() (float64, bool) {
	bid, okBid := ob.BestBid()
	ask, okAsk := ob.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return ask - bid, true
}

// Depth returns up to n aggregated price levels for the given side, sorted
// best-first, with each level's volume and the running cumulative volume.
func (ob *OrderBook) Depth(side domain.OrderSide, n int) []BookLevel {
	if n <= 0 {
		return nil
	}
	tree := ob.bids
	if side == domain.OrderSideSell {
		tree = ob.asks
	}
	levels := make([]BookLevel, 0, n)
	var cumulative float64
	tree.Ascend(func(level *priceLevel) bool {
		if len(levels) >= n {
			return false
		}
		volume := level.totalAmount()
		cumulative += volume
		levels = append(levels, BookLevel{
			Price:      domain.PointsToPrice(ob.symbol, level.points),
			Volume:     volume,
			Cumulative: cumulative,
		})
		return true
	})
	return levels
}

// OrderCount returns the number of individual resting orders on both sides.
func (ob *OrderBook) OrderCount() int {
	var count int
	counter := func(level *priceLevel) bool {
		count += len(level.orders)
		return true
	}
	ob.bids.Ascend(counter)
	ob.asks.Ascend(counter)
	return count
}

// Clear drops all resting orders and resets the cumulative volume. The
// last-trade price is retained as the reference for future stop checks.
func (ob *OrderBook) Clear() {
	ob.bids.Clear(false)
	ob.asks.Clear(false)
	ob.totalVolume = 0
}
