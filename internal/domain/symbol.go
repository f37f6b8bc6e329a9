package domain

import (
	"math"
	"strings"
)

// SymbolSpec describes one tradable instrument and its seed price.
type SymbolSpec struct {
	Symbol    string
	BasePrice float64
}

// IsJPYQuoted reports whether the pair is quoted in Japanese yen.
// JPY pairs use a coarser price grid (3 decimal places, pip = 0.01).
func IsJPYQuoted(symbol string) bool {
	return strings.HasSuffix(symbol, "JPY")
}

// PricePrecision returns the number of decimal places prices of the symbol
// are quoted to: 5 for most pairs, 3 for JPY-quoted pairs.
func PricePrecision(symbol string) int {
	if IsJPYQuoted(symbol) {
		return 3
	}
	return 5
}

// PriceScale returns the number of price points per unit, i.e.
// 10^precision. Price-level keys are integer points so that numerically
// equal prices always map to the same bucket.
func PriceScale(symbol string) float64 {
	return math.Pow(10, float64(PricePrecision(symbol)))
}

// PricePoints converts a price to its integer point representation on the
// symbol's grid, rounding to the nearest point.
func PricePoints(symbol string, price float64) int64 {
	return int64(math.Round(price * PriceScale(symbol)))
}

// PointsToPrice converts integer points back to a price.
func PointsToPrice(symbol string, points int64) float64 {
	return float64(points) / PriceScale(symbol)
}

// QuantizePrice snaps a price onto the symbol's grid.
func QuantizePrice(symbol string, price float64) float64 {
	return PointsToPrice(symbol, PricePoints(symbol, price))
}

// PipSize returns the smallest standard price increment for the pair:
// 0.0001, or 0.01 for JPY-quoted pairs.
func PipSize(symbol string) float64 {
	if IsJPYQuoted(symbol) {
		return 0.01
	}
	return 0.0001
}

// NotionalValue returns the notional exposure of a trade of the given
// volume. JPY-quoted notional is scaled by 100.
func NotionalValue(symbol string, volume float64) float64 {
	if IsJPYQuoted(symbol) {
		return volume * 100
	}
	return volume
}
