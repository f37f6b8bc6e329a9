package domain

import (
	"fmt"
	"time"
)

// BalanceRange bounds the uniform draw for a participant type's seeded
// starting balance.
type BalanceRange struct {
	Min float64
	Max float64
}

// Settings is the simulation configuration consumed by the engine's
// ApplySettings: which instruments exist, how many participants of each
// type to seed, their balance ranges, and the tick cadence.
type Settings struct {
	Symbols           []SymbolSpec
	ParticipantCounts map[ParticipantType]int
	BalanceRanges     map[ParticipantType]BalanceRange
	TickInterval      time.Duration
	HistoryLimit      int
}

// DefaultSettings returns the demo configuration: the three major pairs and
// a population sized to keep a tick cheap while still producing continuous
// two-sided flow.
func DefaultSettings() Settings {
	return Settings{
		Symbols: []SymbolSpec{
			{Symbol: "EURUSD", BasePrice: 1.0950},
			{Symbol: "GBPUSD", BasePrice: 1.2650},
			{Symbol: "USDJPY", BasePrice: 150.25},
		},
		ParticipantCounts: map[ParticipantType]int{
			ParticipantBank:         100,
			ParticipantTrader:       2000,
			ParticipantHedgeFund:    50,
			ParticipantCorporation:  100,
			ParticipantGovernment:   10,
			ParticipantRetailTrader: 3000,
		},
		BalanceRanges: map[ParticipantType]BalanceRange{
			ParticipantBank:         {10_000_000, 1_000_000_000},
			ParticipantTrader:       {100_000, 10_000_000},
			ParticipantHedgeFund:    {50_000_000, 500_000_000},
			ParticipantCorporation:  {1_000_000, 100_000_000},
			ParticipantGovernment:   {100_000_000, 1_000_000_000},
			ParticipantRetailTrader: {1_000, 100_000},
		},
		TickInterval: 100 * time.Millisecond,
		HistoryLimit: 10_000,
	}
}

// Validate checks the settings for structural errors.
func (s Settings) Validate() error {
	if len(s.Symbols) == 0 {
		return fmt.Errorf("settings: at least one symbol is required")
	}
	seen := make(map[string]bool, len(s.Symbols))
	for _, spec := range s.Symbols {
		if spec.Symbol == "" {
			return fmt.Errorf("settings: empty symbol")
		}
		if spec.BasePrice <= 0 {
			return fmt.Errorf("settings: symbol %s has non-positive base price", spec.Symbol)
		}
		if seen[spec.Symbol] {
			return fmt.Errorf("settings: duplicate symbol %s", spec.Symbol)
		}
		seen[spec.Symbol] = true
	}
	for typ, count := range s.ParticipantCounts {
		if count < 0 {
			return fmt.Errorf("settings: negative count for %s", typ)
		}
		if count > 0 {
			r, ok := s.BalanceRanges[typ]
			if !ok {
				return fmt.Errorf("settings: missing balance range for %s", typ)
			}
			if r.Min <= 0 || r.Max < r.Min {
				return fmt.Errorf("settings: invalid balance range for %s", typ)
			}
		}
	}
	if s.TickInterval <= 0 {
		return fmt.Errorf("settings: tick interval must be positive")
	}
	if s.HistoryLimit <= 0 {
		return fmt.Errorf("settings: history limit must be positive")
	}
	return nil
}
