package service

import (
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/quartzfx/fxsim/internal/domain"
	"github.com/quartzfx/fxsim/internal/engine"
)

// ExecutionResult is the outcome of routing an order through a broker.
// Broker refusals and insufficient margin are reported here as unaccepted
// results, not errors: they are simulated market conditions, while errors
// are reserved for configuration problems (unknown broker, symbol, or
// participant).
type ExecutionResult struct {
	Accepted       bool
	Reason         string
	OrderID        string
	ExecutionPrice float64
	Commission     float64
	Swap           float64
	LatencyMs      int64
	FilledVolume   float64
	Trades         []*domain.Trade
}

// BrokerInfo is the public listing entry for a registered broker.
type BrokerInfo struct {
	BrokerID   string
	Name       string
	Type       domain.BrokerType
	Spread     float64
	Commission float64
}

// BrokerService owns the broker registry and the user-order execution
// pipeline: admission control, margin check, price construction with
// slippage and requotes, then submission to the engine.
type BrokerService struct {
	mu      sync.RWMutex
	brokers map[string]*domain.Broker

	// rngMu serializes every draw: *rand.Rand is not safe for concurrent
	// use and orders arrive on concurrent handler goroutines.
	rngMu sync.Mutex
	rng   *rand.Rand

	eng    *engine.MarketEngine
	logger *slog.Logger
}

// NewBrokerService creates a service with an empty registry.
func NewBrokerService(eng *engine.MarketEngine, rng *rand.Rand, logger *slog.Logger) *BrokerService {
	return &BrokerService{
		brokers: make(map[string]*domain.Broker),
		eng:     eng,
		rng:     rng,
		logger:  logger,
	}
}

// Register adds a broker to the registry, replacing any broker with the
// same ID.
func (s *BrokerService) Register(b *domain.Broker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.brokers[b.BrokerID] = b
}

// Get returns a registered broker by ID.
func (s *BrokerService) Get(brokerID string) (*domain.Broker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.brokers[brokerID]
	if !ok {
		return nil, domain.ErrBrokerNotFound
	}
	return b, nil
}

// List returns all registered brokers sorted by ID.
func (s *BrokerService) List() []BrokerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]BrokerInfo, 0, len(s.brokers))
	for _, b := range s.brokers {
		out = append(out, BrokerInfo{
			BrokerID:   b.BrokerID,
			Name:       b.Name,
			Type:       b.Type,
			Spread:     b.Spread,
			Commission: b.Commission,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BrokerID < out[j].BrokerID })
	return out
}

// PlaceUserOrder routes an externally originated order through the broker
// overlay and into the market. The pipeline runs in order: admission
// control, margin check, execution price construction, slippage, requote,
// engine submission. For accounts that track positions, a fill opens or
// extends the symbol's position at the average fill price, reserves margin,
// and debits the commission.
func (s *BrokerService) PlaceUserOrder(brokerID, participantID, symbol string, side domain.OrderSide, amount float64, typ domain.OrderType, limitPrice float64) (*ExecutionResult, error) {
	broker, err := s.Get(brokerID)
	if err != nil {
		return nil, err
	}

	reference := s.referencePrice(symbol, side, limitPrice)

	s.rngMu.Lock()
	admitted := broker.CanExecute(symbol, amount, s.rng)
	price := broker.ExecutionPrice(reference, side)
	price = broker.ApplySlippage(price, side, s.rng)
	price = broker.ApplyRequote(price, s.rng)
	latency := broker.ExecutionLatency(s.rng)
	s.rngMu.Unlock()

	if !admitted {
		return &ExecutionResult{Accepted: false, Reason: "broker rejected order"}, nil
	}

	// The broker-adjusted price becomes the order's limit; market orders
	// keep their type and take whatever the book offers.
	orderPrice := price
	if typ == domain.OrderTypeMarket {
		orderPrice = 0
	}

	// The margin check, the match, and the fill application run in one
	// engine critical section: the free margin seen by the check cannot be
	// consumed by a tick or a competing order before the fill settles.
	var margin, filled, commission float64
	var tracksPositions bool
	execPrice := price
	checkMargin := func(p *domain.Participant) bool {
		margin = broker.MarginRequirement(symbol, amount, p.Leverage)
		tracksPositions = p.TracksPositions
		return !tracksPositions || p.CanOpenPosition(margin)
	}
	applyTrades := func(p *domain.Participant, trades []*domain.Trade) {
		for _, t := range trades {
			filled += t.Volume
		}
		if filled == 0 {
			return
		}
		commission = broker.CommissionFor(filled)
		execPrice = averageFillPrice(trades)
		if tracksPositions {
			applyFill(p, symbol, side, filled, execPrice, margin, commission)
		}
	}
	order, trades, marginOK, err := s.eng.PlaceOrderChecked(symbol, side, amount, participantID, typ, orderPrice, checkMargin, applyTrades)
	if err != nil {
		return nil, err
	}
	if !marginOK {
		return &ExecutionResult{Accepted: false, Reason: "insufficient margin"}, nil
	}

	result := &ExecutionResult{
		Accepted:       true,
		OrderID:        order.OrderID,
		ExecutionPrice: execPrice,
		Commission:     commission,
		Swap:           broker.SwapFor(symbol, side, amount),
		LatencyMs:      latency.Milliseconds(),
		FilledVolume:   filled,
		Trades:         trades,
	}

	s.logger.Info("user order executed",
		slog.String("broker_id", brokerID),
		slog.String("participant_id", participantID),
		slog.String("order_id", order.OrderID),
		slog.String("symbol", symbol),
		slog.Float64("filled", filled),
		slog.Float64("price", result.ExecutionPrice))
	return result, nil
}

// referencePrice picks the price the broker quotes against: the touch on
// the side the order crosses, the order's own limit when the book is empty,
// and 1.0 as a final fallback.
func (s *BrokerService) referencePrice(symbol string, side domain.OrderSide, limitPrice float64) float64 {
	var levels []engine.BookLevel
	var err error
	if side == domain.OrderSideBuy {
		levels, err = s.eng.Depth(symbol, domain.OrderSideSell, 1)
	} else {
		levels, err = s.eng.Depth(symbol, domain.OrderSideBuy, 1)
	}
	if err == nil && len(levels) > 0 {
		return levels[0].Price
	}
	if limitPrice > 0 {
		return limitPrice
	}
	return 1
}

// applyFill opens or extends the participant's position at the volume
// weighted entry, reserves the margin, and debits the commission. Runs
// under the engine lock.
func applyFill(p *domain.Participant, symbol string, side domain.OrderSide, volume, price, margin, commission float64) {
	if pos, ok := p.Positions[symbol]; ok && pos.Side == side {
		total := pos.Volume + volume
		pos.EntryPrice = (pos.EntryPrice*pos.Volume + price*volume) / total
		pos.Volume = total
		pos.UpdatePrice(price)
	} else {
		p.AddPosition(domain.NewPosition(symbol, side, volume, price))
	}
	p.MarginUsed += margin
	p.Balance -= commission
	p.UpdateEquity()
}

func averageFillPrice(trades []*domain.Trade) float64 {
	var notional, volume float64
	for _, t := range trades {
		notional += t.Price * t.Volume
		volume += t.Volume
	}
	if volume == 0 {
		return 0
	}
	return notional / volume
}

// CloseUserPosition closes the participant's position in symbol, realizing
// its P&L and releasing the margin the broker reserved for it.
func (s *BrokerService) CloseUserPosition(brokerID, participantID, symbol string) (*domain.Position, error) {
	broker, err := s.Get(brokerID)
	if err != nil {
		return nil, err
	}
	var pos *domain.Position
	err = s.eng.UpdateParticipant(participantID, func(p *domain.Participant) {
		pos = p.ClosePosition(symbol)
		if pos == nil {
			return
		}
		released := broker.MarginRequirement(symbol, pos.Volume, p.Leverage)
		p.MarginUsed -= released
		if p.MarginUsed < 0 {
			p.MarginUsed = 0
		}
		p.UpdateEquity()
	})
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, domain.ErrPositionNotFound
	}

	s.logger.Info("position closed",
		slog.String("participant_id", participantID),
		slog.String("symbol", symbol),
		slog.Float64("pnl", pos.UnrealizedPnl))
	return pos, nil
}

// ExecutionLatencyFor exposes a broker's simulated latency draw, used by
// request-execution flows that report a delay before confirming.
func (s *BrokerService) ExecutionLatencyFor(brokerID string) (time.Duration, error) {
	broker, err := s.Get(brokerID)
	if err != nil {
		return 0, err
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return broker.ExecutionLatency(s.rng), nil
}
