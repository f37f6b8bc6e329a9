package service

import (
	"time"

	"github.com/quartzfx/fxsim/internal/domain"
	"github.com/quartzfx/fxsim/internal/engine"
	"github.com/quartzfx/fxsim/internal/feed"
)

// BookPriceLevel represents an aggregated price level in the book response.
type BookPriceLevel struct {
	Price      float64
	Volume     float64
	Cumulative float64
}

// BookResponse represents the response for GET /api/symbols/{symbol}/book.
type BookResponse struct {
	Symbol     string
	Bids       []BookPriceLevel
	Asks       []BookPriceLevel
	Spread     *float64 // nil if either side empty
	SnapshotAt time.Time
}

// TradeView is one executed trade in the trades response.
type TradeView struct {
	TradeID    string
	Symbol     string
	Price      float64
	Volume     float64
	Kind       domain.TradeKind
	ExecutedAt time.Time
}

// StatsResponse represents the response for GET /api/stats.
type StatsResponse struct {
	TotalVolume        float64
	TotalTrades        uint64
	ActiveParticipants int
	LiquidityIndex     float64
	Volatility         float64
	State              engine.State
}

// MarketDataEntry is one symbol's summary in the market data response.
type MarketDataEntry struct {
	Symbol           string
	Bid              float64
	Ask              float64
	Last             float64
	High24h          float64
	Low24h           float64
	Volume24h        float64
	Change24h        float64
	ChangePercent24h float64
	Timestamp        time.Time
}

// MarketService handles book, trade, stats, account, and history queries.
type MarketService struct {
	eng  *engine.MarketEngine
	feed *feed.PriceFeed
}

// NewMarketService creates a MarketService with the given dependencies.
func NewMarketService(eng *engine.MarketEngine, priceFeed *feed.PriceFeed) *MarketService {
	return &MarketService{eng: eng, feed: priceFeed}
}

// GetBook returns the top N price levels of both sides of a symbol's book.
func (s *MarketService) GetBook(symbol string, depth int) (*BookResponse, error) {
	if depth < 1 || depth > 50 {
		return nil, &domain.ValidationError{
			Message: "depth must be between 1 and 50",
		}
	}

	bidLevels, err := s.eng.Depth(symbol, domain.OrderSideBuy, depth)
	if err != nil {
		return nil, err
	}
	askLevels, err := s.eng.Depth(symbol, domain.OrderSideSell, depth)
	if err != nil {
		return nil, err
	}

	bids := make([]BookPriceLevel, len(bidLevels))
	for i, l := range bidLevels {
		bids[i] = BookPriceLevel{Price: l.Price, Volume: l.Volume, Cumulative: l.Cumulative}
	}
	asks := make([]BookPriceLevel, len(askLevels))
	for i, l := range askLevels {
		asks[i] = BookPriceLevel{Price: l.Price, Volume: l.Volume, Cumulative: l.Cumulative}
	}

	resp := &BookResponse{
		Symbol:     symbol,
		Bids:       bids,
		Asks:       asks,
		SnapshotAt: time.Now(),
	}
	if len(bids) > 0 && len(asks) > 0 {
		spread := asks[0].Price - bids[0].Price
		resp.Spread = &spread
	}
	return resp, nil
}

// GetTrades returns up to limit executed trades for a symbol, most recent
// first. Limit is clamped to [1, 500] with a default of 50.
func (s *MarketService) GetTrades(symbol string, limit int) ([]TradeView, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	trades, err := s.eng.RecentTrades(symbol, limit)
	if err != nil {
		return nil, err
	}
	out := make([]TradeView, len(trades))
	for i, t := range trades {
		out[i] = TradeView{
			TradeID:    t.TradeID,
			Symbol:     t.Symbol,
			Price:      t.Price,
			Volume:     t.Volume,
			Kind:       t.Kind,
			ExecutedAt: t.ExecutedAt,
		}
	}
	return out, nil
}

// GetStats returns the aggregate market statistics plus the lifecycle state.
func (s *MarketService) GetStats() StatsResponse {
	stats := s.eng.Stats()
	return StatsResponse{
		TotalVolume:        stats.TotalVolume,
		TotalTrades:        stats.TotalTrades,
		ActiveParticipants: stats.ActiveParticipants,
		LiquidityIndex:     stats.LiquidityIndex,
		Volatility:         stats.Volatility,
		State:              s.eng.State(),
	}
}

// GetAccount returns a participant's account snapshot.
func (s *MarketService) GetAccount(participantID string) (*engine.AccountSnapshot, error) {
	return s.eng.Account(participantID)
}

// GetOrder returns a previously placed external order.
func (s *MarketService) GetOrder(orderID string) (*domain.Order, error) {
	return s.eng.Order(orderID)
}

// GetMarketData returns the feed's current quote summary for every
// configured symbol, in settings order.
func (s *MarketService) GetMarketData() []MarketDataEntry {
	symbols := s.eng.Symbols()
	out := make([]MarketDataEntry, 0, len(symbols))
	for _, sym := range symbols {
		pd := s.feed.CurrentPrice(sym)
		out = append(out, MarketDataEntry{
			Symbol:           pd.Symbol,
			Bid:              pd.Bid,
			Ask:              pd.Ask,
			Last:             pd.Last,
			High24h:          pd.High24h,
			Low24h:           pd.Low24h,
			Volume24h:        pd.Volume24h,
			Change24h:        pd.Change24h,
			ChangePercent24h: pd.ChangePercent24h,
			Timestamp:        pd.Timestamp,
		})
	}
	return out
}

// GetHistory returns candle history for a symbol at the given timeframe.
// Limit is clamped to [1, 1000] with a default of 100.
func (s *MarketService) GetHistory(symbol, timeframe string, limit int) ([]feed.Candle, error) {
	symbols := s.eng.Symbols()
	known := false
	for _, sym := range symbols {
		if sym == symbol {
			known = true
			break
		}
	}
	if !known {
		return nil, domain.ErrUnknownSymbol
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	if timeframe == "" {
		timeframe = "1m"
	}
	return s.feed.HistoricalData(symbol, timeframe, limit), nil
}

// Symbols returns the configured symbol list.
func (s *MarketService) Symbols() []string {
	return s.eng.Symbols()
}
