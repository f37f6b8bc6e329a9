package domain

import (
	"testing"

	"pgregory.net/rapid"
)

func TestPricePrecision(t *testing.T) {
	cases := []struct {
		symbol string
		want   int
	}{
		{"EURUSD", 5},
		{"GBPUSD", 5},
		{"USDJPY", 3},
		{"EURJPY", 3},
	}
	for _, c := range cases {
		if got := PricePrecision(c.symbol); got != c.want {
			t.Errorf("PricePrecision(%s) = %d, want %d", c.symbol, got, c.want)
		}
	}
}

func TestQuantizePrice(t *testing.T) {
	// Float arithmetic artifacts must collapse onto the grid.
	if got := QuantizePrice("EURUSD", 0.1+0.2+0.8); got != 1.1 {
		t.Errorf("QuantizePrice(EURUSD, 0.1+0.2+0.8) = %v, want 1.1", got)
	}
	if got := QuantizePrice("EURUSD", 1.095004); got != 1.09500 {
		t.Errorf("QuantizePrice rounds down: got %v, want 1.09500", got)
	}
	if got := QuantizePrice("EURUSD", 1.095006); got != 1.09501 {
		t.Errorf("QuantizePrice rounds up: got %v, want 1.09501", got)
	}
	// JPY pairs quantize to 3 decimal places.
	if got := QuantizePrice("USDJPY", 150.2549); got != 150.255 {
		t.Errorf("QuantizePrice(USDJPY, 150.2549) = %v, want 150.255", got)
	}
}

func TestPipSize(t *testing.T) {
	if got := PipSize("EURUSD"); got != 0.0001 {
		t.Errorf("PipSize(EURUSD) = %v, want 0.0001", got)
	}
	if got := PipSize("USDJPY"); got != 0.01 {
		t.Errorf("PipSize(USDJPY) = %v, want 0.01", got)
	}
}

func TestNotionalValue(t *testing.T) {
	if got := NotionalValue("EURUSD", 100_000); got != 100_000 {
		t.Errorf("NotionalValue(EURUSD, 100000) = %v, want 100000", got)
	}
	if got := NotionalValue("USDJPY", 100_000); got != 10_000_000 {
		t.Errorf("NotionalValue(USDJPY, 100000) = %v, want 10000000", got)
	}
}

func TestProperty_PointsRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		symbol := rapid.SampledFrom([]string{"EURUSD", "USDJPY"}).Draw(t, "symbol")
		points := rapid.Int64Range(1, 100_000_000).Draw(t, "points")
		price := PointsToPrice(symbol, points)
		if back := PricePoints(symbol, price); back != points {
			t.Fatalf("round trip %d -> %v -> %d", points, price, back)
		}
		// Quantizing a grid price is a no-op.
		if q := QuantizePrice(symbol, price); q != price {
			t.Fatalf("QuantizePrice(%v) = %v, want unchanged", price, q)
		}
	})
}
