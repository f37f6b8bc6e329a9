package engine

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quartzfx/fxsim/internal/domain"
	"github.com/quartzfx/fxsim/internal/store"
)

// State is the engine lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Per-tick sampling caps, bounding tick cost independent of population size.
const (
	bankSampleCap   = 50
	traderSampleCap = 200
)

// MarketStats is the aggregate statistics snapshot recomputed every tick.
type MarketStats struct {
	TotalVolume        float64
	TotalTrades        uint64
	ActiveParticipants int
	LiquidityIndex     float64
	Volatility         float64
}

// SymbolQuote is a per-symbol market summary for feed and stream consumers.
type SymbolQuote struct {
	Symbol      string
	BestBid     float64
	HasBid      bool
	BestAsk     float64
	HasAsk      bool
	LastPrice   float64
	TotalVolume float64
}

// AccountSnapshot is a read-only view of a participant's account.
type AccountSnapshot struct {
	ParticipantID string
	Name          string
	Type          domain.ParticipantType
	Balance       float64
	Equity        float64
	MarginUsed    float64
	FreeMargin    float64
	Positions     []domain.Position
}

// MarketEngine owns the per-symbol order books and the participant
// population, runs the discrete simulation tick, settles trades, and
// maintains aggregate statistics. All engine state is instance-owned; no
// package-level registries, so independent simulations can run in one
// process.
//
// A single mutex serializes the tick and user-path submissions, so there is
// exactly one mutator of engine state at any time. Read accessors take the
// same lock and return copies.
type MarketEngine struct {
	mu sync.Mutex

	logger   *slog.Logger
	rng      *rand.Rand
	settings domain.Settings

	books        map[string]*OrderBook
	symbols      []string // insertion order of settings.Symbols
	participants *store.ParticipantStore
	orders       *store.OrderStore
	history      *store.TradeLog
	stats        MarketStats

	state  State
	stopCh chan struct{}
	done   chan struct{}
}

// NewMarketEngine creates an engine seeded from the given settings. All
// probability draws route through rng, so a seeded source makes the
// simulation reproducible.
func NewMarketEngine(settings domain.Settings, rng *rand.Rand, logger *slog.Logger) (*MarketEngine, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	e := &MarketEngine{
		logger: logger,
		rng:    rng,
		state:  StateIdle,
	}
	e.mu.Lock()
	e.applySettingsLocked(settings)
	e.mu.Unlock()
	return e, nil
}

// ApplySettings replaces the configuration: all books, participants, and
// history are cleared and the market is re-seeded.
func (e *MarketEngine) ApplySettings(settings domain.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applySettingsLocked(settings)
	return nil
}

func (e *MarketEngine) applySettingsLocked(settings domain.Settings) {
	e.settings = settings
	e.books = make(map[string]*OrderBook, len(settings.Symbols))
	e.symbols = make([]string, 0, len(settings.Symbols))
	for _, spec := range settings.Symbols {
		e.books[spec.Symbol] = NewOrderBook(spec.Symbol, spec.BasePrice)
		e.symbols = append(e.symbols, spec.Symbol)
	}
	e.participants = store.NewParticipantStore()
	e.orders = store.NewOrderStore()
	e.history = store.NewTradeLog(settings.HistoryLimit)
	e.stats = MarketStats{}

	e.seedParticipantsLocked()
	e.seedLiquidityLocked()
	e.stats.ActiveParticipants = e.participants.Count()
}

// seedParticipantsLocked creates the configured count of each participant
// type with a balance drawn uniformly from the type's range.
func (e *MarketEngine) seedParticipantsLocked() {
	for typ, count := range e.settings.ParticipantCounts {
		r := e.settings.BalanceRanges[typ]
		for i := 0; i < count; i++ {
			balance := r.Min + e.rng.Float64()*(r.Max-r.Min)
			id := fmt.Sprintf("%s-%d", typ, i)
			name := fmt.Sprintf("%s %d", typ, i)
			if err := e.participants.Create(domain.NewParticipant(id, name, typ, balance)); err != nil {
				e.logger.Warn("seed participant skipped",
					slog.String("participant_id", id),
					slog.String("error", err.Error()))
			}
		}
	}
}

// seedLiquidityLocked has a sample of banks rest limit orders on both sides
// of every book within ±0.2% of the symbol's base price, so the market
// opens two-sided.
func (e *MarketEngine) seedLiquidityLocked() {
	banks := e.participants.Sample(e.rng, bankSampleCap, domain.ParticipantBank)
	for _, spec := range e.settings.Symbols {
		book := e.books[spec.Symbol]
		for _, bank := range banks {
			offset := e.rng.Float64() * 0.002
			bid := &domain.Order{
				OrderID:       uuid.New().String(),
				Symbol:        spec.Symbol,
				Side:          domain.OrderSideBuy,
				Type:          domain.OrderTypeLimit,
				Amount:        bank.TypicalTradeSize(e.rng),
				Price:         domain.QuantizePrice(spec.Symbol, spec.BasePrice*(1-offset)),
				ParticipantID: bank.ParticipantID,
				CreatedAt:     time.Now(),
			}
			ask := &domain.Order{
				OrderID:       uuid.New().String(),
				Symbol:        spec.Symbol,
				Side:          domain.OrderSideSell,
				Type:          domain.OrderTypeLimit,
				Amount:        bank.TypicalTradeSize(e.rng),
				Price:         domain.QuantizePrice(spec.Symbol, spec.BasePrice*(1+offset)),
				ParticipantID: bank.ParticipantID,
				CreatedAt:     time.Now(),
			}
			for _, t := range book.Submit(bid) {
				e.settleLocked(t)
			}
			for _, t := range book.Submit(ask) {
				e.settleLocked(t)
			}
		}
	}
}

// AddParticipant registers an externally managed account (e.g. the demo
// user). It counts toward active participants but is never sampled by the
// tick unless its type matches a sampled group.
func (e *MarketEngine) AddParticipant(p *domain.Participant) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.participants.Create(p); err != nil {
		return err
	}
	e.stats.ActiveParticipants = e.participants.Count()
	return nil
}

// Start transitions Idle → Running and launches the tick loop. The next
// tick is armed only after the current tick's work completes, so ticks
// never overlap; a slow tick simply delays the next one.
func (e *MarketEngine) Start() error {
	e.mu.Lock()
	if e.state == StateRunning {
		e.mu.Unlock()
		return domain.ErrSimulationRunning
	}
	e.state = StateRunning
	e.stopCh = make(chan struct{})
	e.done = make(chan struct{})
	stopCh, done := e.stopCh, e.done
	interval := e.settings.TickInterval
	e.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-stopCh:
				return
			case <-time.After(interval):
				e.Tick()
			}
		}
	}()

	e.logger.Info("simulation started", slog.Duration("tick_interval", interval))
	return nil
}

// Stop transitions Running → Idle and waits for the in-flight tick, if any,
// to finish.
func (e *MarketEngine) Stop() error {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return domain.ErrSimulationNotRunning
	}
	e.state = StateIdle
	stopCh, done := e.stopCh, e.done
	e.mu.Unlock()

	close(stopCh)
	<-done
	e.logger.Info("simulation stopped")
	return nil
}

// Reset stops the simulation if running and re-seeds from the current
// settings.
func (e *MarketEngine) Reset() {
	_ = e.Stop()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applySettingsLocked(e.settings)
}

// State returns the lifecycle state.
func (e *MarketEngine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Tick runs one simulation step: a bounded sample of banks places limit
// orders near the touch, a bounded sample of traders and retail traders
// places market orders, resulting trades are settled, and the aggregate
// statistics are recomputed. An individual participant's failure is logged
// and skipped without affecting the rest of the tick.
func (e *MarketEngine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	e.simulateAgentsLocked(now, bankSampleCap, true, domain.ParticipantBank)
	e.simulateAgentsLocked(now, traderSampleCap, false,
		domain.ParticipantTrader, domain.ParticipantRetailTrader)
	e.updateStatsLocked()
}

// simulateAgentsLocked runs the trading-behavior model over a bounded
// sample. Banks quote passively (limit orders near the best quote); the
// trader population crosses the spread with market orders.
func (e *MarketEngine) simulateAgentsLocked(now time.Time, sampleCap int, asLimit bool, types ...domain.ParticipantType) {
	for _, p := range e.participants.Sample(e.rng, sampleCap, types...) {
		if !p.ShouldTrade(now, e.rng) {
			continue
		}

		symbol := e.symbols[e.rng.Intn(len(e.symbols))]
		side := domain.OrderSideBuy
		if e.rng.Float64() < 0.5 {
			side = domain.OrderSideSell
		}

		order := &domain.Order{
			OrderID:       uuid.New().String(),
			Symbol:        symbol,
			Side:          side,
			Type:          domain.OrderTypeMarket,
			Amount:        p.TypicalTradeSize(e.rng),
			ParticipantID: p.ParticipantID,
			CreatedAt:     now,
		}
		if asLimit {
			order.Type = domain.OrderTypeLimit
			order.Price = e.quotePriceLocked(symbol, side)
		}

		if _, err := e.submitLocked(order); err != nil {
			e.logger.Warn("agent trade skipped",
				slog.String("participant_id", p.ParticipantID),
				slog.String("symbol", symbol),
				slog.String("error", err.Error()))
			continue
		}
		p.LastTradeAt = now
	}
}

// quotePriceLocked prices a passive order near the current best quote with
// ±0.1% random variation.
func (e *MarketEngine) quotePriceLocked(symbol string, side domain.OrderSide) float64 {
	book := e.books[symbol]
	base := e.basePriceLocked(symbol)
	if side == domain.OrderSideBuy {
		if ask, ok := book.BestAsk(); ok {
			base = ask
		}
	} else {
		if bid, ok := book.BestBid(); ok {
			base = bid
		}
	}
	variation := 1 + (e.rng.Float64()*0.002 - 0.001)
	return domain.QuantizePrice(symbol, base*variation)
}

func (e *MarketEngine) basePriceLocked(symbol string) float64 {
	for _, spec := range e.settings.Symbols {
		if spec.Symbol == symbol {
			return spec.BasePrice
		}
	}
	return 1
}

// PlaceOrder is the external order entry point: the same path a broker
// pre-processes before calling. It fails fast for unknown symbols or
// participants and invalid amounts/prices; these are configuration errors,
// not simulated market conditions.
func (e *MarketEngine) PlaceOrder(symbol string, side domain.OrderSide, amount float64, participantID string, typ domain.OrderType, price float64) (*domain.Order, []*domain.Trade, error) {
	order, trades, _, err := e.PlaceOrderChecked(symbol, side, amount, participantID, typ, price, nil, nil)
	return order, trades, err
}

// PlaceOrderChecked submits an order with account hooks running in the same
// critical section as the match. admit sees the participant immediately
// before submission and may veto it (admitted is then false with no error);
// settle sees the participant and the resulting trades after they settle.
// Running both under the engine lock keeps a margin check valid through the
// fill: no tick or competing order can interleave between check and apply.
// Either hook may be nil.
func (e *MarketEngine) PlaceOrderChecked(symbol string, side domain.OrderSide, amount float64, participantID string, typ domain.OrderType, price float64, admit func(*domain.Participant) bool, settle func(*domain.Participant, []*domain.Trade)) (order *domain.Order, trades []*domain.Trade, admitted bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Configuration errors surface before admit gets a say.
	if _, ok := e.books[symbol]; !ok {
		return nil, nil, false, domain.ErrUnknownSymbol
	}
	p, err := e.participants.Get(participantID)
	if err != nil {
		return nil, nil, false, err
	}
	if admit != nil && !admit(p) {
		return nil, nil, false, nil
	}

	order = &domain.Order{
		OrderID:       uuid.New().String(),
		Symbol:        symbol,
		Side:          side,
		Type:          typ,
		Amount:        amount,
		Price:         price,
		ParticipantID: participantID,
		CreatedAt:     time.Now(),
	}
	trades, err = e.submitLocked(order)
	if err != nil {
		return nil, nil, true, err
	}
	e.orders.Create(order)
	if settle != nil {
		settle(p, trades)
	}
	return order, trades, true, nil
}

// submitLocked validates the order, routes it to the symbol's book, and
// settles every resulting trade.
func (e *MarketEngine) submitLocked(order *domain.Order) ([]*domain.Trade, error) {
	book, ok := e.books[order.Symbol]
	if !ok {
		return nil, domain.ErrUnknownSymbol
	}
	if _, err := e.participants.Get(order.ParticipantID); err != nil {
		return nil, domain.ErrUnknownParticipant
	}
	if order.Amount <= 0 {
		return nil, domain.ErrInvalidOrder
	}
	if order.Type != domain.OrderTypeMarket && order.Price <= 0 {
		return nil, domain.ErrInvalidOrder
	}
	order.Price = domain.QuantizePrice(order.Symbol, order.Price)

	trades := book.Submit(order)
	for _, t := range trades {
		e.settleLocked(t)
	}
	return trades, nil
}

// settleLocked applies one trade: cash moves from buyer to seller, both
// parties' position marks and equity are refreshed, the trade joins the
// capped history, and the global counters advance.
func (e *MarketEngine) settleLocked(t *domain.Trade) {
	e.history.Append(t)
	e.stats.TotalTrades++
	e.stats.TotalVolume += t.Volume

	notional := t.Price * t.Volume
	if buyer, err := e.participants.Get(t.BuyerID); err == nil {
		buyer.Balance -= notional
		buyer.UpdatePositionPrice(t.Symbol, t.Price)
	}
	if seller, err := e.participants.Get(t.SellerID); err == nil {
		seller.Balance += notional
		seller.UpdatePositionPrice(t.Symbol, t.Price)
	}
}

// updateStatsLocked recomputes the aggregate statistics: liquidity index is
// the mean cumulative book volume across symbols; volatility is the
// population standard deviation of the last 100 trade prices (unweighted,
// not annualized), computed once more than 100 trades exist.
func (e *MarketEngine) updateStatsLocked() {
	var total float64
	for _, book := range e.books {
		total += book.TotalVolume()
	}
	e.stats.LiquidityIndex = total / float64(len(e.books))

	if e.history.Len() > 100 {
		prices := e.history.RecentPrices(100)
		var sum float64
		for _, p := range prices {
			sum += p
		}
		mean := sum / float64(len(prices))
		var variance float64
		for _, p := range prices {
			variance += (p - mean) * (p - mean)
		}
		variance /= float64(len(prices))
		e.stats.Volatility = math.Sqrt(variance)
	}
}

// Depth returns up to n aggregated levels of the symbol's book for one
// side, best-first with cumulative volume.
func (e *MarketEngine) Depth(symbol string, side domain.OrderSide, n int) ([]BookLevel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	book, ok := e.books[symbol]
	if !ok {
		return nil, domain.ErrUnknownSymbol
	}
	return book.Depth(side, n), nil
}

// RecentTrades returns up to limit trades for a symbol, most recent first.
func (e *MarketEngine) RecentTrades(symbol string, limit int) ([]*domain.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.books[symbol]; !ok {
		return nil, domain.ErrUnknownSymbol
	}
	return e.history.RecentBySymbol(symbol, limit), nil
}

// Stats returns a copy of the aggregate statistics.
func (e *MarketEngine) Stats() MarketStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Quotes returns a per-symbol market summary in settings order.
func (e *MarketEngine) Quotes() []SymbolQuote {
	e.mu.Lock()
	defer e.mu.Unlock()

	quotes := make([]SymbolQuote, 0, len(e.symbols))
	for _, symbol := range e.symbols {
		book := e.books[symbol]
		q := SymbolQuote{
			Symbol:      symbol,
			LastPrice:   book.LastPrice(),
			TotalVolume: book.TotalVolume(),
		}
		q.BestBid, q.HasBid = book.BestBid()
		q.BestAsk, q.HasAsk = book.BestAsk()
		quotes = append(quotes, q)
	}
	return quotes
}

// Symbols returns the configured symbol list.
func (e *MarketEngine) Symbols() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.symbols))
	copy(out, e.symbols)
	return out
}

// Account returns a snapshot of a participant's account and open positions.
func (e *MarketEngine) Account(participantID string) (*AccountSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.participants.Get(participantID)
	if err != nil {
		return nil, err
	}
	snap := &AccountSnapshot{
		ParticipantID: p.ParticipantID,
		Name:          p.Name,
		Type:          p.Type,
		Balance:       p.Balance,
		Equity:        p.Equity,
		MarginUsed:    p.MarginUsed,
		FreeMargin:    p.FreeMargin(),
	}
	for _, pos := range p.Positions {
		snap.Positions = append(snap.Positions, *pos)
	}
	return snap, nil
}

// UpdateParticipant runs fn on the live participant record under the
// engine lock, preserving the single-writer discipline for callers outside
// the tick (the broker execution path). fn must not call back into the
// engine.
func (e *MarketEngine) UpdateParticipant(participantID string, fn func(*domain.Participant)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.participants.Get(participantID)
	if err != nil {
		return err
	}
	fn(p)
	return nil
}

// Order returns a snapshot of a previously placed external order. A resting
// order's remaining amount is decremented by the book as it fills, so the
// caller gets a copy, never the live struct.
func (e *MarketEngine) Order(orderID string) (*domain.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, err := e.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	cp := *o
	return &cp, nil
}
