package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quartzfx/fxsim/internal/service"
)

// subscription is one connected stream client's buffered delivery channel.
type subscription[T any] struct {
	ch chan T
}

// hub fan-outs values to every subscriber, dropping messages for clients
// whose buffer is full so a slow reader never stalls the broadcaster.
type hub[T any] struct {
	mu   sync.RWMutex
	subs map[*subscription[T]]struct{}
}

func newHub[T any]() *hub[T] {
	return &hub[T]{subs: make(map[*subscription[T]]struct{})}
}

func (h *hub[T]) Subscribe(buffer int) *subscription[T] {
	sub := &subscription[T]{ch: make(chan T, buffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *hub[T]) Unsubscribe(sub *subscription[T]) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
	close(sub.ch)
}

func (h *hub[T]) Broadcast(value T) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.ch <- value:
		default:
		}
	}
}

// streamMessage is the envelope for every stream payload.
type streamMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// marketSnapshot is the periodic payload pushed to stream clients.
type marketSnapshot struct {
	MarketData []marketDataResponse `json:"market_data"`
	Stats      statsResponse        `json:"stats"`
}

// Stream pushes periodic market snapshots to WebSocket clients.
type Stream struct {
	marketSvc *service.MarketService
	interval  time.Duration
	hub       *hub[marketSnapshot]
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

// NewStream creates a stream broadcasting a snapshot every interval.
func NewStream(marketSvc *service.MarketService, interval time.Duration, logger *slog.Logger) *Stream {
	return &Stream{
		marketSvc: marketSvc,
		interval:  interval,
		hub:       newHub[marketSnapshot](),
		upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:    logger,
	}
}

// Run broadcasts snapshots until ctx is cancelled. Intended to run in its
// own goroutine.
func (s *Stream) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.hub.Broadcast(s.snapshot())
		}
	}
}

func (s *Stream) snapshot() marketSnapshot {
	entries := s.marketSvc.GetMarketData()
	data := make([]marketDataResponse, len(entries))
	for i, e := range entries {
		data[i] = marketDataResponse{
			Symbol:           e.Symbol,
			Bid:              e.Bid,
			Ask:              e.Ask,
			Last:             e.Last,
			High24h:          e.High24h,
			Low24h:           e.Low24h,
			Volume24h:        e.Volume24h,
			Change24h:        e.Change24h,
			ChangePercent24h: e.ChangePercent24h,
			Timestamp:        formatTime(e.Timestamp),
		}
	}
	stats := s.marketSvc.GetStats()
	return marketSnapshot{
		MarketData: data,
		Stats: statsResponse{
			TotalVolume:        stats.TotalVolume,
			TotalTrades:        stats.TotalTrades,
			ActiveParticipants: stats.ActiveParticipants,
			LiquidityIndex:     stats.LiquidityIndex,
			Volatility:         stats.Volatility,
			State:              string(stats.State),
		},
	}
}

// Serve handles GET /ws: it upgrades the connection and writes snapshots
// until the client disconnects.
func (s *Stream) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe(32)
	defer s.hub.Unsubscribe(sub)

	// First frame immediately so clients render without waiting a full
	// interval.
	if err := conn.WriteJSON(streamMessage{Type: "market_data", Data: s.snapshot()}); err != nil {
		return
	}
	for snap := range sub.ch {
		if err := conn.WriteJSON(streamMessage{Type: "market_data", Data: snap}); err != nil {
			return
		}
	}
}
