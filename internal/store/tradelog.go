package store

import (
	"sync"

	"github.com/quartzfx/fxsim/internal/domain"
)

// TradeLog is a thread-safe, bounded trade history. Appends past the limit
// trim the oldest entries so memory stays flat under continuous load.
type TradeLog struct {
	mu     sync.RWMutex
	limit  int
	trades []*domain.Trade
}

// NewTradeLog creates a TradeLog that retains at most limit trades.
func NewTradeLog(limit int) *TradeLog {
	return &TradeLog{
		limit:  limit,
		trades: make([]*domain.Trade, 0, limit),
	}
}

// Append adds a trade, trimming from the front once the log exceeds its
// limit.
func (l *TradeLog) Append(t *domain.Trade) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.trades = append(l.trades, t)
	if len(l.trades) > l.limit {
		// Copy the tail into a fresh slice so the trimmed prefix can be
		// collected.
		tail := make([]*domain.Trade, l.limit)
		copy(tail, l.trades[len(l.trades)-l.limit:])
		l.trades = tail
	}
}

// RecentBySymbol returns up to limit trades for a symbol, most recent
// first.
func (l *TradeLog) RecentBySymbol(symbol string, limit int) []*domain.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*domain.Trade, 0, limit)
	for i := len(l.trades) - 1; i >= 0 && len(result) < limit; i-- {
		if l.trades[i].Symbol == symbol {
			result = append(result, l.trades[i])
		}
	}
	return result
}

// RecentPrices returns the prices of the most recent n trades across all
// symbols, oldest first.
func (l *TradeLog) RecentPrices(n int) []float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	start := len(l.trades) - n
	if start < 0 {
		start = 0
	}
	prices := make([]float64, 0, len(l.trades)-start)
	for _, t := range l.trades[start:] {
		prices = append(prices, t.Price)
	}
	return prices
}

// Len returns the number of retained trades.
func (l *TradeLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.trades)
}

// Clear drops all retained trades.
func (l *TradeLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trades = l.trades[:0]
}
