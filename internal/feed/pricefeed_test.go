package feed

import (
	"math"
	"math/rand"
	"testing"
	"time"
)

func newTestFeed() *PriceFeed {
	return NewPriceFeed(rand.New(rand.NewSource(7)))
}

func TestAddSymbolSeedsHistory(t *testing.T) {
	f := newTestFeed()
	f.AddSymbol("EURUSD", 1.0950)

	candles := f.HistoricalData("EURUSD", "1m", 2000)
	if len(candles) != initialCandles {
		t.Fatalf("seeded %d candles, want %d", len(candles), initialCandles)
	}
	for i, c := range candles {
		if c.High < math.Max(c.Open, c.Close) {
			t.Fatalf("candle %d: high %v below body", i, c.High)
		}
		if c.Low > math.Min(c.Open, c.Close) {
			t.Fatalf("candle %d: low %v above body", i, c.Low)
		}
		if c.Volume < 1000 || c.Volume >= 10_000 {
			t.Fatalf("candle %d: volume %v outside [1000, 10000)", i, c.Volume)
		}
		// Newest first, and each candle opens where the previous
		// minute closed.
		if i+1 < len(candles) {
			if !c.Timestamp.After(candles[i+1].Timestamp) {
				t.Fatalf("candle %d not newer than candle %d", i, i+1)
			}
			if c.Open != candles[i+1].Close {
				t.Fatalf("candle %d: open %v != previous close %v", i, c.Open, candles[i+1].Close)
			}
		}
	}
}

func TestCurrentPrice(t *testing.T) {
	f := newTestFeed()
	f.AddSymbol("EURUSD", 1.0950)

	pd := f.CurrentPrice("EURUSD")
	if pd.Last != 1.0950 {
		t.Errorf("last = %v, want 1.0950", pd.Last)
	}
	spread := symbolSpread("EURUSD")
	if pd.Bid != 1.0950-spread/2 || pd.Ask != 1.0950+spread/2 {
		t.Errorf("quote = %v / %v, want centered on 1.0950 with spread %v", pd.Bid, pd.Ask, spread)
	}

	unknown := f.CurrentPrice("XXXYYY")
	if unknown.Bid != 1.0 || unknown.Ask != 1.0001 {
		t.Errorf("unknown symbol quote = %v / %v, want placeholder", unknown.Bid, unknown.Ask)
	}
}

func TestApplyUpdatesQuote(t *testing.T) {
	f := newTestFeed()
	f.AddSymbol("EURUSD", 1.0950)

	f.Apply([]MarketQuote{
		{Symbol: "EURUSD", BestBid: 1.2040, HasBid: true, BestAsk: 1.2060, HasAsk: true, LastPrice: 1.2050, TotalVolume: 5_000},
		{Symbol: "XXXYYY", LastPrice: 9.99}, // unregistered, skipped
	})

	pd := f.CurrentPrice("EURUSD")
	// The last trade price moves by at most 10% of the symbol's
	// per-minute volatility.
	maxNoise := 1.2050 * symbolVolatility("EURUSD") * 0.1
	if diff := math.Abs(pd.Last - 1.2050); diff > maxNoise {
		t.Errorf("last = %v, want within %v of 1.2050", pd.Last, maxNoise)
	}
	spread := symbolSpread("EURUSD")
	if pd.Bid != pd.Last-spread/2 || pd.Ask != pd.Last+spread/2 {
		t.Errorf("quote = %v / %v, want re-centered on last %v", pd.Bid, pd.Ask, pd.Last)
	}
	if pd.Volume24h != 5_000 {
		t.Errorf("volume = %v, want 5000", pd.Volume24h)
	}
	if pd.High24h != 1.2050 {
		t.Errorf("high = %v, want 1.2050", pd.High24h)
	}
	if pd.Low24h != 1.0950 {
		t.Errorf("low = %v, want initial 1.0950", pd.Low24h)
	}
}

func TestHistoricalDataLimit(t *testing.T) {
	f := newTestFeed()
	f.AddSymbol("EURUSD", 1.0950)

	candles := f.HistoricalData("EURUSD", "1m", 10)
	if len(candles) != 10 {
		t.Fatalf("got %d candles, want 10", len(candles))
	}
	full := f.HistoricalData("EURUSD", "1m", initialCandles)
	if candles[0] != full[0] {
		t.Error("limited query does not start at the newest candle")
	}

	if got := f.HistoricalData("XXXYYY", "1m", 10); got != nil {
		t.Errorf("unknown symbol returned %d candles, want none", len(got))
	}
	// Unrecognized timeframes fall back to raw minute candles.
	if got := f.HistoricalData("EURUSD", "7m", 10); len(got) != 10 || got[0] != full[0] {
		t.Error("unrecognized timeframe did not fall back to 1m")
	}
}

func TestAggregateCandles(t *testing.T) {
	// Ten minute candles aligned so minutes 0-4 and 5-9 form two
	// five-minute buckets.
	base := time.Unix(6000*60, 0)
	candles := make([]Candle, 10)
	for i := range candles {
		v := 100 + float64(i)
		candles[i] = Candle{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      v,
			High:      v + 1,
			Low:       v - 1,
			Close:     v + 0.5,
			Volume:    10,
		}
	}

	out := aggregateCandles(candles, 5, 10)
	if len(out) != 2 {
		t.Fatalf("got %d buckets, want 2", len(out))
	}
	newest := out[0]
	if !newest.Timestamp.Equal(candles[9].Timestamp) {
		t.Errorf("newest bucket timestamp = %v, want %v", newest.Timestamp, candles[9].Timestamp)
	}
	if newest.High != 110 || newest.Low != 104 {
		t.Errorf("newest bucket range = [%v, %v], want [104, 110]", newest.Low, newest.High)
	}
	if newest.Volume != 50 {
		t.Errorf("newest bucket volume = %v, want 50", newest.Volume)
	}
	oldest := out[1]
	if oldest.High != 105 || oldest.Low != 99 {
		t.Errorf("oldest bucket range = [%v, %v], want [99, 105]", oldest.Low, oldest.High)
	}

	truncated := aggregateCandles(candles, 5, 1)
	if len(truncated) != 1 || !truncated[0].Timestamp.Equal(candles[9].Timestamp) {
		t.Errorf("limit 1 returned %d buckets, want just the newest", len(truncated))
	}
}

func TestSimulateNewsEvent(t *testing.T) {
	f := newTestFeed()
	f.AddSymbol("EURUSD", 1.0950)

	f.SimulateNewsEvent("EURUSD", 0.01)

	pd := f.CurrentPrice("EURUSD")
	want := 1.0950 * 1.01
	if diff := math.Abs(pd.Last - want); diff > 1e-12 {
		t.Errorf("last = %v, want %v", pd.Last, want)
	}
	spread := symbolSpread("EURUSD")
	if pd.Bid != pd.Last-spread/2 || pd.Ask != pd.Last+spread/2 {
		t.Errorf("quote = %v / %v, want re-centered on %v", pd.Bid, pd.Ask, pd.Last)
	}
	if pd.High24h != pd.Last {
		t.Errorf("high = %v, want the jumped price %v", pd.High24h, pd.Last)
	}

	// The move lands in a fresh minute candle after the seeded history.
	candles := f.HistoricalData("EURUSD", "1m", 2)
	if candles[0].Open != 1.0950 || candles[0].Close != pd.Last {
		t.Errorf("news candle = %+v, want open 1.0950 close %v", candles[0], pd.Last)
	}

	// Unknown symbols are ignored.
	f.SimulateNewsEvent("XXXYYY", 0.5)
}
