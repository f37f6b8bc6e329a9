// Package feed maintains per-symbol quote summaries and candle history on
// top of the live market, adding small noise so the stream moves between
// trades.
package feed

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Candle history bounds: symbols start with seeded minute candles and the
// per-symbol history is capped.
const (
	initialCandles = 1000
	maxCandles     = 10000
	candlesPerDay  = 1440
)

// PriceData is the current quote summary for one symbol.
type PriceData struct {
	Symbol           string    `json:"symbol"`
	Bid              float64   `json:"bid"`
	Ask              float64   `json:"ask"`
	Last             float64   `json:"last"`
	High24h          float64   `json:"high_24h"`
	Low24h           float64   `json:"low_24h"`
	Volume24h        float64   `json:"volume_24h"`
	Change24h        float64   `json:"change_24h"`
	ChangePercent24h float64   `json:"change_percent_24h"`
	Timestamp        time.Time `json:"timestamp"`
}

// Candle is a single OHLCV bar.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// MarketQuote is the per-symbol market snapshot the feed consumes. Callers
// map it from whatever produces quotes so the feed stays decoupled from the
// matching engine.
type MarketQuote struct {
	Symbol      string
	BestBid     float64
	HasBid      bool
	BestAsk     float64
	HasAsk      bool
	LastPrice   float64
	TotalVolume float64
}

// Per-symbol quoting spread. Unknown symbols fall back to 2 pips.
func symbolSpread(symbol string) float64 {
	switch symbol {
	case "EURUSD":
		return 0.00015
	case "GBPUSD":
		return 0.00020
	case "USDJPY":
		return 0.015
	case "USDCHF":
		return 0.00018
	case "AUDUSD":
		return 0.00025
	case "USDCAD":
		return 0.00022
	}
	return 0.0002
}

// Per-symbol per-minute volatility used for seeded history and quote noise.
func symbolVolatility(symbol string) float64 {
	switch symbol {
	case "EURUSD":
		return 0.0008
	case "GBPUSD":
		return 0.0012
	case "USDJPY":
		return 0.0010
	case "USDCHF":
		return 0.0009
	case "AUDUSD":
		return 0.0015
	case "USDCAD":
		return 0.0011
	}
	return 0.001
}

// PriceFeed holds per-symbol quote summaries and minute-candle history. It
// guards its state with its own lock because the HTTP read path and the
// updater goroutine access it concurrently.
type PriceFeed struct {
	mu      sync.RWMutex
	rng     *rand.Rand
	prices  map[string]*PriceData
	history map[string][]Candle
}

// NewPriceFeed creates an empty feed. All randomness routes through rng.
func NewPriceFeed(rng *rand.Rand) *PriceFeed {
	return &PriceFeed{
		rng:     rng,
		prices:  make(map[string]*PriceData),
		history: make(map[string][]Candle),
	}
}

// AddSymbol registers a symbol at an initial price and seeds its minute
// candle history with a random walk at the symbol's volatility.
func (f *PriceFeed) AddSymbol(symbol string, initialPrice float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	spread := symbolSpread(symbol)
	now := time.Now()
	f.prices[symbol] = &PriceData{
		Symbol:    symbol,
		Bid:       initialPrice - spread/2,
		Ask:       initialPrice + spread/2,
		Last:      initialPrice,
		High24h:   initialPrice,
		Low24h:    initialPrice,
		Timestamp: now,
	}

	vol := symbolVolatility(symbol)
	history := make([]Candle, 0, initialCandles)
	price := initialPrice
	for i := 0; i < initialCandles; i++ {
		ts := now.Add(-time.Duration(initialCandles-i) * time.Minute)
		open := price
		change := (f.rng.Float64()*2 - 1) * vol
		closep := open * (1 + change)
		high := math.Max(open, closep) * (1 + f.rng.Float64()*vol*0.5)
		low := math.Min(open, closep) * (1 - f.rng.Float64()*vol*0.5)
		history = append(history, Candle{
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closep,
			Volume:    1000 + f.rng.Float64()*9000,
		})
		price = closep
	}
	f.history[symbol] = history
}

// Apply folds a market snapshot into the feed: book quotes overwrite
// bid/ask, the last trade price and cumulative volume carry over, 24h
// extremes widen, and a small noise step keeps the stream moving between
// trades.
func (f *PriceFeed) Apply(quotes []MarketQuote) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	for _, q := range quotes {
		pd, ok := f.prices[q.Symbol]
		if !ok {
			continue
		}
		if q.HasBid {
			pd.Bid = q.BestBid
		}
		if q.HasAsk {
			pd.Ask = q.BestAsk
		}
		pd.Last = q.LastPrice
		pd.Volume24h = q.TotalVolume
		if pd.Last > pd.High24h {
			pd.High24h = pd.Last
		}
		if pd.Last < pd.Low24h {
			pd.Low24h = pd.Last
		}
		pd.Timestamp = now

		f.addNoiseLocked(q.Symbol)
	}
}

// addNoiseLocked nudges the last price by up to ±10% of the symbol's
// per-minute volatility, re-centers bid/ask on it, refreshes the 24h change
// against the candle 1440 minutes back, and rolls the move into the current
// minute candle.
func (f *PriceFeed) addNoiseLocked(symbol string) {
	pd := f.prices[symbol]
	vol := symbolVolatility(symbol)
	spread := symbolSpread(symbol)

	old := pd.Last
	noise := (f.rng.Float64()*2 - 1) * vol * 0.1
	pd.Last *= 1 + noise
	pd.Bid = pd.Last - spread/2
	pd.Ask = pd.Last + spread/2

	if history := f.history[symbol]; len(history) > candlesPerDay {
		ref := history[len(history)-candlesPerDay].Close
		pd.Change24h = pd.Last - ref
		pd.ChangePercent24h = pd.Change24h / ref * 100
	}

	f.updateCandleLocked(symbol, old, pd.Last)
}

// updateCandleLocked extends the current minute's candle, or starts a new
// one when the minute rolls over, trimming history past the cap.
func (f *PriceFeed) updateCandleLocked(symbol string, oldPrice, newPrice float64) {
	history := f.history[symbol]
	if len(history) == 0 {
		return
	}
	now := time.Now()
	last := &history[len(history)-1]
	if now.Unix()/60 == last.Timestamp.Unix()/60 {
		last.Close = newPrice
		last.High = math.Max(last.High, newPrice)
		last.Low = math.Min(last.Low, newPrice)
		last.Volume += 10 + f.rng.Float64()*90
		return
	}

	history = append(history, Candle{
		Timestamp: now,
		Open:      oldPrice,
		High:      math.Max(oldPrice, newPrice),
		Low:       math.Min(oldPrice, newPrice),
		Close:     newPrice,
		Volume:    100 + f.rng.Float64()*900,
	})
	if len(history) > maxCandles {
		history = history[len(history)-maxCandles:]
	}
	f.history[symbol] = history
}

// CurrentPrice returns the quote summary for a symbol, or a neutral
// placeholder when the symbol is unknown.
func (f *PriceFeed) CurrentPrice(symbol string) PriceData {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if pd, ok := f.prices[symbol]; ok {
		return *pd
	}
	return PriceData{
		Symbol:    symbol,
		Bid:       1.0,
		Ask:       1.0001,
		Last:      1.0,
		High24h:   1.0,
		Low24h:    1.0,
		Timestamp: time.Now(),
	}
}

// Symbols returns the registered symbols in no particular order.
func (f *PriceFeed) Symbols() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.prices))
	for s := range f.prices {
		out = append(out, s)
	}
	return out
}

// HistoricalData returns up to limit candles for a symbol at the requested
// timeframe ("1m", "5m", "15m", "1h", "4h", "1d"), most recent first.
// Unknown timeframes fall back to 1m.
func (f *PriceFeed) HistoricalData(symbol, timeframe string, limit int) []Candle {
	f.mu.RLock()
	defer f.mu.RUnlock()

	history, ok := f.history[symbol]
	if !ok {
		return nil
	}
	switch timeframe {
	case "5m":
		return aggregateCandles(history, 5, limit)
	case "15m":
		return aggregateCandles(history, 15, limit)
	case "1h":
		return aggregateCandles(history, 60, limit)
	case "4h":
		return aggregateCandles(history, 240, limit)
	case "1d":
		return aggregateCandles(history, candlesPerDay, limit)
	}
	// 1m and anything unrecognized: newest first, no aggregation.
	n := limit
	if n > len(history) {
		n = len(history)
	}
	out := make([]Candle, 0, n)
	for i := len(history) - 1; i >= len(history)-n; i-- {
		out = append(out, history[i])
	}
	return out
}

// aggregateCandles merges minute candles into fixed wall-clock buckets of
// the given width, walking newest first so the most recent buckets win when
// limit truncates.
func aggregateCandles(candles []Candle, minutes, limit int) []Candle {
	var aggregated []Candle
	var group []Candle
	currentPeriod := int64(-1)

	flush := func() {
		if len(group) == 0 {
			return
		}
		agg := Candle{
			Timestamp: group[0].Timestamp,
			Open:      group[0].Open,
			Close:     group[len(group)-1].Close,
			High:      math.Inf(-1),
			Low:       math.Inf(1),
		}
		for _, c := range group {
			agg.High = math.Max(agg.High, c.High)
			agg.Low = math.Min(agg.Low, c.Low)
			agg.Volume += c.Volume
		}
		aggregated = append(aggregated, agg)
	}

	for i := len(candles) - 1; i >= 0; i-- {
		c := candles[i]
		period := c.Timestamp.Unix() / 60 / int64(minutes)
		if currentPeriod == -1 {
			currentPeriod = period
		}
		if period == currentPeriod {
			group = append(group, c)
			continue
		}
		flush()
		group = group[:0]
		group = append(group, c)
		currentPeriod = period
		if len(aggregated) >= limit {
			return aggregated
		}
	}
	if len(aggregated) < limit {
		flush()
	}
	return aggregated
}

// SimulateNewsEvent jumps a symbol's price by the given fractional impact
// (e.g. 0.01 for +1%), re-centering quotes and recording the move in the
// candle history.
func (f *PriceFeed) SimulateNewsEvent(symbol string, impact float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pd, ok := f.prices[symbol]
	if !ok {
		return
	}
	spread := symbolSpread(symbol)
	old := pd.Last
	pd.Last *= 1 + impact
	pd.Bid = pd.Last - spread/2
	pd.Ask = pd.Last + spread/2
	if pd.Last > pd.High24h {
		pd.High24h = pd.Last
	}
	if pd.Last < pd.Low24h {
		pd.Low24h = pd.Last
	}
	f.updateCandleLocked(symbol, old, pd.Last)
}
