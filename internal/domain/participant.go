package domain

import (
	"math/rand"
	"time"
)

// ParticipantType classifies a market participant. Defaults for leverage,
// strategy, risk tolerance, preferred symbols, and trade size are keyed by
// this type.
type ParticipantType string

const (
	ParticipantBank         ParticipantType = "bank"
	ParticipantTrader       ParticipantType = "trader"
	ParticipantHedgeFund    ParticipantType = "hedge_fund"
	ParticipantCorporation  ParticipantType = "corporation"
	ParticipantGovernment   ParticipantType = "government"
	ParticipantRetailTrader ParticipantType = "retail_trader"
)

// TradingStrategy determines a participant's trading tempo and
// aggressiveness.
type TradingStrategy string

const (
	StrategyConservative   TradingStrategy = "conservative"
	StrategyModerate       TradingStrategy = "moderate"
	StrategyAggressive     TradingStrategy = "aggressive"
	StrategyHighFrequency  TradingStrategy = "high_frequency"
	StrategyArbitrage      TradingStrategy = "arbitrage"
	StrategyTrendFollowing TradingStrategy = "trend_following"
	StrategyMeanReversion  TradingStrategy = "mean_reversion"
	StrategyMarketMaking   TradingStrategy = "market_making"
)

// strategyProfile holds a strategy's minimum time between trades and the
// per-opportunity trading probability. Values scale so that strategies
// differ in tempo: a high-frequency desk acts orders of magnitude more
// often than a conservative treasury.
type strategyProfile struct {
	MinInterval time.Duration
	Probability float64
}

var strategyProfiles = map[TradingStrategy]strategyProfile{
	StrategyHighFrequency:  {100 * time.Millisecond, 0.10},
	StrategyArbitrage:      {250 * time.Millisecond, 0.08},
	StrategyMarketMaking:   {500 * time.Millisecond, 0.15},
	StrategyAggressive:     {1000 * time.Millisecond, 0.05},
	StrategyMeanReversion:  {2000 * time.Millisecond, 0.04},
	StrategyTrendFollowing: {3000 * time.Millisecond, 0.03},
	StrategyModerate:       {5000 * time.Millisecond, 0.02},
	StrategyConservative:   {10000 * time.Millisecond, 0.01},
}

// sizeRange is a half-open notional range [Min, Max) for typical trades.
type sizeRange struct {
	Min float64
	Max float64
}

// Per-type default tables.
var (
	defaultLeverage = map[ParticipantType]float64{
		ParticipantBank:         50,
		ParticipantHedgeFund:    10,
		ParticipantCorporation:  5,
		ParticipantGovernment:   1,
		ParticipantTrader:       100,
		ParticipantRetailTrader: 30,
	}

	defaultStrategy = map[ParticipantType]TradingStrategy{
		ParticipantBank:         StrategyMarketMaking,
		ParticipantHedgeFund:    StrategyAggressive,
		ParticipantCorporation:  StrategyConservative,
		ParticipantGovernment:   StrategyConservative,
		ParticipantTrader:       StrategyHighFrequency,
		ParticipantRetailTrader: StrategyModerate,
	}

	defaultRiskTolerance = map[ParticipantType]float64{
		ParticipantBank:         0.3,
		ParticipantHedgeFund:    0.8,
		ParticipantCorporation:  0.2,
		ParticipantGovernment:   0.1,
		ParticipantTrader:       0.6,
		ParticipantRetailTrader: 0.4,
	}

	defaultTradeSize = map[ParticipantType]sizeRange{
		ParticipantBank:         {1_000_000, 10_000_000},
		ParticipantHedgeFund:    {100_000, 1_000_000},
		ParticipantTrader:       {10_000, 100_000},
		ParticipantCorporation:  {50_000, 500_000},
		ParticipantGovernment:   {1_000_000, 5_000_000},
		ParticipantRetailTrader: {1_000, 10_000},
	}

	defaultPreferredSymbols = map[ParticipantType][]string{
		ParticipantBank:         {"EURUSD", "GBPUSD", "USDJPY", "USDCHF", "AUDUSD", "USDCAD"},
		ParticipantHedgeFund:    {"EURUSD", "GBPUSD", "USDJPY"},
		ParticipantCorporation:  {"EURUSD", "USDJPY"},
		ParticipantTrader:       {"EURUSD"},
		ParticipantGovernment:   {"EURUSD"},
		ParticipantRetailTrader: {"EURUSD"},
	}
)

// Position tracks an open exposure in a single symbol. UnrealizedPnl is
// recomputed on every price update: long (currentPrice − entryPrice) ×
// volume, short the reverse.
type Position struct {
	Symbol        string
	Side          OrderSide
	Volume        float64
	EntryPrice    float64
	CurrentPrice  float64
	UnrealizedPnl float64
	OpenedAt      time.Time
}

// NewPosition opens a position marked at its entry price.
func NewPosition(symbol string, side OrderSide, volume, entryPrice float64) *Position {
	return &Position{
		Symbol:       symbol,
		Side:         side,
		Volume:       volume,
		EntryPrice:   entryPrice,
		CurrentPrice: entryPrice,
		OpenedAt:     time.Now(),
	}
}

// UpdatePrice marks the position to the given price and recomputes
// unrealized P&L.
func (p *Position) UpdatePrice(price float64) {
	p.CurrentPrice = price
	if p.Side == OrderSideBuy {
		p.UnrealizedPnl = (price - p.EntryPrice) * p.Volume
	} else {
		p.UnrealizedPnl = (p.EntryPrice - price) * p.Volume
	}
}

// ReturnPercent is the position's current return relative to entry.
func (p *Position) ReturnPercent() float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	if p.Side == OrderSideBuy {
		return (p.CurrentPrice - p.EntryPrice) / p.EntryPrice * 100
	}
	return (p.EntryPrice - p.CurrentPrice) / p.EntryPrice * 100
}

// Participant is a market agent with an account and a behavior profile.
// Equity is derived: balance plus the sum of unrealized P&L across open
// positions, recomputed whenever positions change.
//
// TracksPositions is an explicit policy flag: user accounts opened through
// the broker path carry Position records, while synthetic agents only move
// cash on settlement.
type Participant struct {
	ParticipantID   string
	Name            string
	Type            ParticipantType
	Balance         float64
	Equity          float64
	MarginUsed      float64
	Leverage        float64
	Positions       map[string]*Position
	Strategy        TradingStrategy
	RiskTolerance   float64
	Active          bool
	TracksPositions bool
	LastTradeAt     time.Time
}

// NewParticipant creates a participant with the default leverage, strategy,
// and risk tolerance for its type.
func NewParticipant(id, name string, typ ParticipantType, balance float64) *Participant {
	return &Participant{
		ParticipantID: id,
		Name:          name,
		Type:          typ,
		Balance:       balance,
		Equity:        balance,
		Leverage:      defaultLeverage[typ],
		Positions:     make(map[string]*Position),
		Strategy:      defaultStrategy[typ],
		RiskTolerance: defaultRiskTolerance[typ],
		Active:        true,
	}
}

// ShouldTrade decides whether the participant acts on this opportunity.
// Inactive participants never trade. Otherwise the elapsed time since the
// last trade must reach the strategy's minimum interval, after which a
// uniform draw is compared against the strategy's trading probability.
func (p *Participant) ShouldTrade(now time.Time, rng *rand.Rand) bool {
	if !p.Active {
		return false
	}
	profile := strategyProfiles[p.Strategy]
	if now.Sub(p.LastTradeAt) < profile.MinInterval {
		return false
	}
	return rng.Float64() < profile.Probability
}

// TypicalTradeSize draws a notional uniformly within the type's range and
// applies a ±25% multiplier.
func (p *Participant) TypicalTradeSize(rng *rand.Rand) float64 {
	r := defaultTradeSize[p.Type]
	base := r.Min + rng.Float64()*(r.Max-r.Min)
	return base * (0.75 + rng.Float64()*0.5)
}

// PreferredSymbols returns the symbols the participant's type typically
// trades.
func (p *Participant) PreferredSymbols() []string {
	return defaultPreferredSymbols[p.Type]
}

// UpdateEquity recomputes equity = balance + Σ positions.unrealizedPnl.
func (p *Participant) UpdateEquity() {
	var unrealized float64
	for _, pos := range p.Positions {
		unrealized += pos.UnrealizedPnl
	}
	p.Equity = p.Balance + unrealized
}

// FreeMargin returns equity minus margin currently in use.
func (p *Participant) FreeMargin() float64 {
	return p.Equity - p.MarginUsed
}

// CanOpenPosition reports whether the participant has enough free margin
// to reserve requiredMargin. Inactive participants cannot open positions.
func (p *Participant) CanOpenPosition(requiredMargin float64) bool {
	return p.Active && p.FreeMargin() >= requiredMargin
}

// AddPosition records an open exposure and recomputes equity.
func (p *Participant) AddPosition(pos *Position) {
	p.Positions[pos.Symbol] = pos
	p.UpdateEquity()
}

// ClosePosition removes the position for symbol, realizing its unrealized
// P&L into the balance. Returns the closed position, or nil if none exists.
func (p *Participant) ClosePosition(symbol string) *Position {
	pos, ok := p.Positions[symbol]
	if !ok {
		return nil
	}
	delete(p.Positions, symbol)
	p.Balance += pos.UnrealizedPnl
	p.UpdateEquity()
	return pos
}

// UpdatePositionPrice marks the position in symbol (if any) to the given
// price and recomputes equity.
func (p *Participant) UpdatePositionPrice(symbol string, price float64) {
	if pos, ok := p.Positions[symbol]; ok {
		pos.UpdatePrice(price)
	}
	p.UpdateEquity()
}

// PositionSize sizes a trade from equity, capped risk, and leverage.
func (p *Participant) PositionSize(price, riskPercent float64) float64 {
	if price <= 0 {
		return 0
	}
	risk := riskPercent
	if p.RiskTolerance < risk {
		risk = p.RiskTolerance
	}
	return p.Equity * risk / price * p.Leverage
}

// Deactivate stops the participant from trading or opening positions.
func (p *Participant) Deactivate() { p.Active = false }

// Activate re-enables the participant.
func (p *Participant) Activate() { p.Active = true }
