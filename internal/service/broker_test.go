package service

import (
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/quartzfx/fxsim/internal/domain"
	"github.com/quartzfx/fxsim/internal/engine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestSetup builds an engine without banks (no seeded liquidity), a user
// account with position tracking, and a direct-access broker.
func newTestSetup(t *testing.T) (*engine.MarketEngine, *BrokerService) {
	t.Helper()
	settings := domain.Settings{
		Symbols: []domain.SymbolSpec{{Symbol: "EURUSD", BasePrice: 1.0950}},
		ParticipantCounts: map[domain.ParticipantType]int{
			domain.ParticipantTrader: 5,
		},
		BalanceRanges: map[domain.ParticipantType]domain.BalanceRange{
			domain.ParticipantTrader: {Min: 100_000, Max: 1_000_000},
		},
		TickInterval: time.Hour,
		HistoryLimit: 1_000,
	}
	eng, err := engine.NewMarketEngine(settings, rand.New(rand.NewSource(1)), testLogger())
	if err != nil {
		t.Fatalf("NewMarketEngine() = %v", err)
	}

	user := domain.NewParticipant("user-1", "User", domain.ParticipantTrader, 10_000)
	user.TracksPositions = true
	if err := eng.AddParticipant(user); err != nil {
		t.Fatalf("AddParticipant() = %v", err)
	}

	svc := NewBrokerService(eng, rand.New(rand.NewSource(2)), testLogger())
	svc.Register(domain.NewBroker("da", "Direct", domain.BrokerDirectAccess, 0.0001, 0))
	return eng, svc
}

func TestRegisterAndList(t *testing.T) {
	_, svc := newTestSetup(t)
	svc.Register(domain.NewBroker("ecn", "ECN", domain.BrokerECN, 0, 5))

	brokers := svc.List()
	if len(brokers) != 2 {
		t.Fatalf("got %d brokers, want 2", len(brokers))
	}
	if brokers[0].BrokerID != "da" || brokers[1].BrokerID != "ecn" {
		t.Errorf("order = %s, %s; want sorted by ID", brokers[0].BrokerID, brokers[1].BrokerID)
	}

	if _, err := svc.Get("nope"); err != domain.ErrBrokerNotFound {
		t.Errorf("Get(nope) = %v, want ErrBrokerNotFound", err)
	}
}

func TestPlaceUserOrderUnknownBroker(t *testing.T) {
	_, svc := newTestSetup(t)
	_, err := svc.PlaceUserOrder("nope", "user-1", "EURUSD", domain.OrderSideBuy, 10_000, domain.OrderTypeMarket, 0)
	if err != domain.ErrBrokerNotFound {
		t.Errorf("err = %v, want ErrBrokerNotFound", err)
	}
}

func TestPlaceUserOrderRejectedBySize(t *testing.T) {
	_, svc := newTestSetup(t)

	// Below the broker's minimum trade size: a rejection result, not an
	// error.
	result, err := svc.PlaceUserOrder("da", "user-1", "EURUSD", domain.OrderSideBuy, 500, domain.OrderTypeMarket, 0)
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if result.Accepted {
		t.Error("expected rejection for sub-minimum size")
	}
	if result.Reason == "" {
		t.Error("expected a rejection reason")
	}
}

func TestPlaceUserOrderInsufficientMargin(t *testing.T) {
	_, svc := newTestSetup(t)

	// 50M at leverage 100 needs 500k margin against 10k equity.
	result, err := svc.PlaceUserOrder("da", "user-1", "EURUSD", domain.OrderSideBuy, 50_000_000, domain.OrderTypeMarket, 0)
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if result.Accepted {
		t.Error("expected rejection for insufficient margin")
	}
	if result.Reason != "insufficient margin" {
		t.Errorf("reason = %q, want insufficient margin", result.Reason)
	}
}

func TestPlaceUserOrderNoLiquidity(t *testing.T) {
	_, svc := newTestSetup(t)

	// Empty book: the order is accepted but fills nothing and opens no
	// position.
	result, err := svc.PlaceUserOrder("da", "user-1", "EURUSD", domain.OrderSideBuy, 10_000, domain.OrderTypeMarket, 0)
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if !result.Accepted {
		t.Fatalf("rejected: %s", result.Reason)
	}
	if result.FilledVolume != 0 || len(result.Trades) != 0 {
		t.Errorf("filled %v in an empty book", result.FilledVolume)
	}
	if result.Commission != 0 {
		t.Errorf("commission = %v on zero fill, want 0", result.Commission)
	}
}

func TestPlaceUserOrderFillOpensPosition(t *testing.T) {
	eng, svc := newTestSetup(t)

	// A synthetic counterparty rests the liquidity the user will take.
	if _, _, err := eng.PlaceOrder("EURUSD", domain.OrderSideSell, 5_000, "trader-0", domain.OrderTypeLimit, 1.1000); err != nil {
		t.Fatalf("resting sell: %v", err)
	}

	result, err := svc.PlaceUserOrder("da", "user-1", "EURUSD", domain.OrderSideBuy, 2_000, domain.OrderTypeMarket, 0)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if !result.Accepted {
		t.Fatalf("rejected: %s", result.Reason)
	}
	if result.FilledVolume != 2_000 {
		t.Fatalf("filled = %v, want 2000", result.FilledVolume)
	}
	if result.ExecutionPrice != 1.1000 {
		t.Errorf("execution price = %v, want book price 1.1000", result.ExecutionPrice)
	}
	wantCommission := 2_000 * 0.000001
	if diff := result.Commission - wantCommission; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("commission = %v, want %v", result.Commission, wantCommission)
	}
	if result.LatencyMs < 1 || result.LatencyMs > 5 {
		t.Errorf("latency = %dms, want exchange execution range [1, 5]", result.LatencyMs)
	}

	snap, err := eng.Account("user-1")
	if err != nil {
		t.Fatalf("Account() = %v", err)
	}
	if len(snap.Positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(snap.Positions))
	}
	pos := snap.Positions[0]
	if pos.Volume != 2_000 || pos.EntryPrice != 1.1000 || pos.Side != domain.OrderSideBuy {
		t.Errorf("position = %+v, want 2000 long @ 1.1000", pos)
	}
	wantMargin := 2_000.0 / 100 // trader leverage 100, below the broker cap
	if diff := snap.MarginUsed - wantMargin; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("margin used = %v, want %v", snap.MarginUsed, wantMargin)
	}
}

func TestPlaceUserOrderExtendsPosition(t *testing.T) {
	eng, svc := newTestSetup(t)

	if _, _, err := eng.PlaceOrder("EURUSD", domain.OrderSideSell, 2_000, "trader-0", domain.OrderTypeLimit, 1.1000); err != nil {
		t.Fatalf("resting sell: %v", err)
	}
	if _, _, err := eng.PlaceOrder("EURUSD", domain.OrderSideSell, 2_000, "trader-0", domain.OrderTypeLimit, 1.2000); err != nil {
		t.Fatalf("resting sell: %v", err)
	}

	if _, err := svc.PlaceUserOrder("da", "user-1", "EURUSD", domain.OrderSideBuy, 2_000, domain.OrderTypeMarket, 0); err != nil {
		t.Fatalf("first buy: %v", err)
	}
	if _, err := svc.PlaceUserOrder("da", "user-1", "EURUSD", domain.OrderSideBuy, 2_000, domain.OrderTypeMarket, 0); err != nil {
		t.Fatalf("second buy: %v", err)
	}

	snap, _ := eng.Account("user-1")
	if len(snap.Positions) != 1 {
		t.Fatalf("positions = %d, want 1 blended position", len(snap.Positions))
	}
	pos := snap.Positions[0]
	if pos.Volume != 4_000 {
		t.Errorf("volume = %v, want 4000", pos.Volume)
	}
	// Entry blends the two fills at 1.1 and 1.2.
	if diff := pos.EntryPrice - 1.15; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("entry price = %v, want 1.15", pos.EntryPrice)
	}
}

func TestCloseUserPosition(t *testing.T) {
	eng, svc := newTestSetup(t)

	if _, _, err := eng.PlaceOrder("EURUSD", domain.OrderSideSell, 2_000, "trader-0", domain.OrderTypeLimit, 1.1000); err != nil {
		t.Fatalf("resting sell: %v", err)
	}
	if _, err := svc.PlaceUserOrder("da", "user-1", "EURUSD", domain.OrderSideBuy, 2_000, domain.OrderTypeMarket, 0); err != nil {
		t.Fatalf("buy: %v", err)
	}

	pos, err := svc.CloseUserPosition("da", "user-1", "EURUSD")
	if err != nil {
		t.Fatalf("CloseUserPosition() = %v", err)
	}
	if pos.Volume != 2_000 {
		t.Errorf("closed volume = %v, want 2000", pos.Volume)
	}

	snap, _ := eng.Account("user-1")
	if len(snap.Positions) != 0 {
		t.Errorf("positions = %d after close, want 0", len(snap.Positions))
	}
	if snap.MarginUsed != 0 {
		t.Errorf("margin used = %v after close, want 0", snap.MarginUsed)
	}

	if _, err := svc.CloseUserPosition("da", "user-1", "EURUSD"); err != domain.ErrPositionNotFound {
		t.Errorf("second close = %v, want ErrPositionNotFound", err)
	}
}

// Orders arrive on concurrent handler goroutines, so the service's RNG and
// the account state must hold up under parallel placement. Run with -race.
func TestPlaceUserOrderConcurrent(t *testing.T) {
	eng, svc := newTestSetup(t)

	if _, _, err := eng.PlaceOrder("EURUSD", domain.OrderSideSell, 1_000_000, "trader-0", domain.OrderTypeLimit, 1.1000); err != nil {
		t.Fatalf("resting sell: %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if _, err := svc.PlaceUserOrder("da", "user-1", "EURUSD", domain.OrderSideBuy, 1_000, domain.OrderTypeMarket, 0); err != nil {
					t.Errorf("PlaceUserOrder() = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

// The margin check holds through the fill: once an accepted order settles,
// the account it debited rejects the next order that no longer fits.
func TestPlaceUserOrderMarginHeldThroughFill(t *testing.T) {
	eng, svc := newTestSetup(t)

	if _, _, err := eng.PlaceOrder("EURUSD", domain.OrderSideSell, 2_000_000, "trader-0", domain.OrderTypeLimit, 1.1000); err != nil {
		t.Fatalf("resting sell: %v", err)
	}

	// 900k at leverage 100 needs 9k margin against 10k equity: admitted.
	first, err := svc.PlaceUserOrder("da", "user-1", "EURUSD", domain.OrderSideBuy, 900_000, domain.OrderTypeMarket, 0)
	if err != nil {
		t.Fatalf("first order: %v", err)
	}
	if !first.Accepted || first.FilledVolume != 900_000 {
		t.Fatalf("first order = %+v, want accepted full fill", first)
	}

	// The fill debited the notional and reserved the margin, so an
	// identical order must now fail the check.
	second, err := svc.PlaceUserOrder("da", "user-1", "EURUSD", domain.OrderSideBuy, 900_000, domain.OrderTypeMarket, 0)
	if err != nil {
		t.Fatalf("second order: %v", err)
	}
	if second.Accepted {
		t.Error("expected rejection once the first fill consumed the margin")
	}
	if second.Reason != "insufficient margin" {
		t.Errorf("reason = %q, want insufficient margin", second.Reason)
	}
}
