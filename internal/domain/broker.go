package domain

import (
	"math/rand"
	"time"
)

// BrokerType determines how a broker sources prices and monetizes flow.
type BrokerType string

const (
	BrokerDirectAccess BrokerType = "direct_access"
	BrokerECN          BrokerType = "ecn"
	BrokerMarketMaker  BrokerType = "market_maker"
	BrokerSTP          BrokerType = "stp"
	BrokerHybrid       BrokerType = "hybrid"
)

// ExecutionModel determines the reported execution latency class.
type ExecutionModel string

const (
	InstantExecution  ExecutionModel = "instant"
	MarketExecution   ExecutionModel = "market"
	RequestExecution  ExecutionModel = "request"
	ExchangeExecution ExecutionModel = "exchange"
)

// LiquidityProvider is an upstream quote source a broker aggregates to form
// its displayed price. Tier 0 is a direct pool, 1 a top-tier bank, 2 a
// consortium, 3 internal market making. Weights are relative and need not
// sum to 1.
type LiquidityProvider struct {
	Name         string
	Tier         int
	Weight       float64
	SpreadMarkup float64
}

// Broker is the pricing and friction overlay applied to externally
// originated orders before they reach the liquidity layer. It never affects
// agent-to-agent matching. Configuration is immutable except through
// SetType, which regenerates every type-dependent default.
type Broker struct {
	BrokerID           string
	Name               string
	Type               BrokerType
	Spread             float64
	Commission         float64
	ExecutionModel     ExecutionModel
	LiquidityProviders []LiquidityProvider
	SlippageFactor     float64
	RequoteProbability float64
	MaxLeverage        float64
	MinTradeSize       float64
	MaxTradeSize       float64
	Symbols            map[string]bool
}

// NewBroker creates a broker with the type-dependent defaults applied.
func NewBroker(id, name string, typ BrokerType, spread, commission float64) *Broker {
	b := &Broker{
		BrokerID:     id,
		Name:         name,
		Spread:       spread,
		Commission:   commission,
		MinTradeSize: 1_000,
		MaxTradeSize: 100_000_000,
	}
	b.applyTypeDefaults(typ)
	return b
}

// SetType switches the broker type and regenerates every type-dependent
// default: execution model, liquidity providers, slippage, requote
// probability, max leverage, and the tradable symbol set. A no-op when the
// type is unchanged.
func (b *Broker) SetType(typ BrokerType) {
	if b.Type == typ {
		return
	}
	b.applyTypeDefaults(typ)
}

func (b *Broker) applyTypeDefaults(typ BrokerType) {
	b.Type = typ

	switch typ {
	case BrokerDirectAccess:
		b.ExecutionModel = ExchangeExecution
	case BrokerECN:
		b.ExecutionModel = MarketExecution
	case BrokerMarketMaker:
		b.ExecutionModel = InstantExecution
	case BrokerSTP:
		b.ExecutionModel = MarketExecution
	case BrokerHybrid:
		b.ExecutionModel = RequestExecution
	}

	b.LiquidityProviders = defaultLiquidityProviders(typ)

	switch typ {
	case BrokerDirectAccess:
		b.SlippageFactor, b.RequoteProbability = 0.0001, 0.02
	case BrokerECN:
		b.SlippageFactor, b.RequoteProbability = 0.0002, 0.01
	case BrokerMarketMaker:
		b.SlippageFactor, b.RequoteProbability = 0.0005, 0.15
	case BrokerSTP:
		b.SlippageFactor, b.RequoteProbability = 0.0003, 0.05
	case BrokerHybrid:
		b.SlippageFactor, b.RequoteProbability = 0.0004, 0.08
	}

	switch typ {
	case BrokerDirectAccess:
		b.MaxLeverage = 500
	case BrokerECN:
		b.MaxLeverage = 200
	case BrokerMarketMaker:
		b.MaxLeverage = 100
	case BrokerSTP:
		b.MaxLeverage = 300
	case BrokerHybrid:
		b.MaxLeverage = 200
	}

	b.Symbols = make(map[string]bool)
	for _, s := range defaultBrokerSymbols(typ) {
		b.Symbols[s] = true
	}
}

func defaultLiquidityProviders(typ BrokerType) []LiquidityProvider {
	switch typ {
	case BrokerDirectAccess:
		return []LiquidityProvider{
			{Name: "Liquidity Pool Direct", Tier: 0, Weight: 1.0, SpreadMarkup: 0},
		}
	case BrokerECN:
		return []LiquidityProvider{
			{Name: "Deutsche Bank", Tier: 1, Weight: 0.25, SpreadMarkup: 0.00005},
			{Name: "Citibank", Tier: 1, Weight: 0.25, SpreadMarkup: 0.00008},
			{Name: "JP Morgan", Tier: 1, Weight: 0.25, SpreadMarkup: 0.00006},
			{Name: "UBS", Tier: 1, Weight: 0.25, SpreadMarkup: 0.00007},
		}
	case BrokerMarketMaker:
		return []LiquidityProvider{
			{Name: "Internal Market Making", Tier: 3, Weight: 1.0, SpreadMarkup: 0.0002},
		}
	case BrokerSTP:
		return []LiquidityProvider{
			{Name: "Bank Consortium", Tier: 2, Weight: 0.6, SpreadMarkup: 0.00012},
			{Name: "ECN Pool", Tier: 1, Weight: 0.4, SpreadMarkup: 0.00008},
		}
	default: // hybrid
		return []LiquidityProvider{
			{Name: "Tier 1 Banks", Tier: 1, Weight: 0.7, SpreadMarkup: 0.00010},
			{Name: "Internal MM", Tier: 3, Weight: 0.3, SpreadMarkup: 0.00015},
		}
	}
}

func defaultBrokerSymbols(typ BrokerType) []string {
	switch typ {
	case BrokerDirectAccess:
		return []string{
			"EURUSD", "GBPUSD", "USDJPY", "USDCHF", "AUDUSD",
			"USDCAD", "NZDUSD", "EURGBP", "EURJPY", "GBPJPY",
		}
	case BrokerECN:
		return []string{"EURUSD", "GBPUSD", "USDJPY", "USDCHF", "AUDUSD", "USDCAD"}
	default:
		return []string{"EURUSD", "GBPUSD", "USDJPY"}
	}
}

// ExecutionPrice constructs the client-facing price from a reference price.
// DirectAccess passes the reference through. ECN, STP, and Hybrid aggregate
// a volume-weighted quote across the broker's liquidity providers, each
// quoting reference ± its spread markup by side, normalized by the total
// provider weight. MarketMaker quotes against its own book at
// reference ± spread/2.
func (b *Broker) ExecutionPrice(reference float64, side OrderSide) float64 {
	switch b.Type {
	case BrokerDirectAccess:
		return reference
	case BrokerMarketMaker:
		if side == OrderSideBuy {
			return reference + b.Spread/2
		}
		return reference - b.Spread/2
	default: // ECN, STP, Hybrid
		return b.aggregateProviderPrice(reference, side)
	}
}

func (b *Broker) aggregateProviderPrice(reference float64, side OrderSide) float64 {
	var weighted, totalWeight float64
	for _, lp := range b.LiquidityProviders {
		quote := reference + lp.SpreadMarkup
		if side == OrderSideSell {
			quote = reference - lp.SpreadMarkup
		}
		weighted += quote * lp.Weight
		totalWeight += lp.Weight
	}
	if totalWeight <= 0 {
		return reference
	}
	return weighted / totalWeight
}

// ApplySlippage worsens the price with a uniform draw in
// [0, slippageFactor), with a fixed 30% probability. Directional: buys get
// more expensive, sells cheaper.
func (b *Broker) ApplySlippage(price float64, side OrderSide, rng *rand.Rand) float64 {
	if rng.Float64() >= 0.3 {
		return price
	}
	slip := rng.Float64() * b.SlippageFactor
	if side == OrderSideBuy {
		return price + slip
	}
	return price - slip
}

// ApplyRequote applies a requote adjustment with the broker's probability:
// the price is multiplied by (1 + δ), δ uniform in [-0.0005, +0.0005).
func (b *Broker) ApplyRequote(price float64, rng *rand.Rand) float64 {
	if rng.Float64() >= b.RequoteProbability {
		return price
	}
	delta := -0.0005 + rng.Float64()*0.001
	return price * (1 + delta)
}

// CommissionFor returns the commission charged on a trade of the given
// volume. ECN charges the configured rate per standard lot (100,000 units);
// DirectAccess charges 0.0001% of volume; spread-based types charge nothing.
func (b *Broker) CommissionFor(volume float64) float64 {
	switch b.Type {
	case BrokerECN:
		return b.Commission * (volume / 100_000)
	case BrokerDirectAccess:
		return volume * 0.000001
	default:
		return 0
	}
}

// swapRates maps symbol and side to the overnight swap per standard lot.
var swapRates = map[string]map[OrderSide]float64{
	"EURUSD": {OrderSideBuy: -0.5, OrderSideSell: -2.1},
	"GBPUSD": {OrderSideBuy: 0.8, OrderSideSell: -3.2},
	"USDJPY": {OrderSideBuy: 2.1, OrderSideSell: -5.4},
}

// SwapFor returns the overnight swap for a position, scaled per 100,000
// units of volume. Symbols without a configured rate swap at zero.
func (b *Broker) SwapFor(symbol string, side OrderSide, volume float64) float64 {
	rate := swapRates[symbol][side]
	return rate * volume / 100_000
}

// CanExecute is the broker's admission control: trade size must fall within
// [MinTradeSize, MaxTradeSize] and the symbol must be tradable. Market
// makers additionally refuse a flat 5% of orders, simulating requote-driven
// rejection under volatility.
func (b *Broker) CanExecute(symbol string, amount float64, rng *rand.Rand) bool {
	if amount < b.MinTradeSize || amount > b.MaxTradeSize {
		return false
	}
	if !b.Symbols[symbol] {
		return false
	}
	if b.Type == BrokerMarketMaker && rng.Float64() < 0.05 {
		return false
	}
	return true
}

// ExecutionLatency draws the reported execution delay for the broker's
// execution model. The delay is informational only and never blocks the
// simulation.
func (b *Broker) ExecutionLatency(rng *rand.Rand) time.Duration {
	var ms int
	switch b.ExecutionModel {
	case InstantExecution:
		ms = 1 + rng.Intn(9)
	case MarketExecution:
		ms = 10 + rng.Intn(40)
	case RequestExecution:
		ms = 100 + rng.Intn(400)
	default: // exchange
		ms = 1 + rng.Intn(4)
	}
	return time.Duration(ms) * time.Millisecond
}

// MarginRequirement returns the margin needed to carry a position:
// notional value divided by the effective leverage, which is the requested
// leverage capped at the broker's maximum.
func (b *Broker) MarginRequirement(symbol string, volume, leverage float64) float64 {
	effective := leverage
	if b.MaxLeverage < effective {
		effective = b.MaxLeverage
	}
	if effective <= 0 {
		effective = 1
	}
	return NotionalValue(symbol, volume) / effective
}
