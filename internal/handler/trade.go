package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quartzfx/fxsim/internal/domain"
	"github.com/quartzfx/fxsim/internal/service"
)

// TradeHandler handles HTTP requests for broker-routed trading endpoints.
type TradeHandler struct {
	brokerSvc *service.BrokerService
	marketSvc *service.MarketService
}

// NewTradeHandler creates a new TradeHandler.
func NewTradeHandler(brokerSvc *service.BrokerService, marketSvc *service.MarketService) *TradeHandler {
	return &TradeHandler{brokerSvc: brokerSvc, marketSvc: marketSvc}
}

// placeTradeRequest is the JSON request body for POST /api/trade.
type placeTradeRequest struct {
	BrokerID      string   `json:"broker_id"`
	ParticipantID string   `json:"participant_id"`
	Symbol        string   `json:"symbol"`
	Side          string   `json:"side"`
	Type          string   `json:"type"`
	Amount        float64  `json:"amount"`
	Price         *float64 `json:"price"`
}

// tradeFillResponse is a single fill in the trade response.
type tradeFillResponse struct {
	TradeID    string  `json:"trade_id"`
	Price      float64 `json:"price"`
	Volume     float64 `json:"volume"`
	ExecutedAt string  `json:"executed_at"`
}

// placeTradeResponse is the JSON response for POST /api/trade.
type placeTradeResponse struct {
	Accepted       bool                `json:"accepted"`
	Reason         string              `json:"reason,omitempty"`
	OrderID        string              `json:"order_id,omitempty"`
	ExecutionPrice float64             `json:"execution_price"`
	Commission     float64             `json:"commission"`
	Swap           float64             `json:"swap"`
	LatencyMs      int64               `json:"latency_ms"`
	FilledVolume   float64             `json:"filled_volume"`
	Trades         []tradeFillResponse `json:"trades"`
}

// brokerResponse is one broker in GET /api/brokers.
type brokerResponse struct {
	BrokerID   string  `json:"broker_id"`
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Spread     float64 `json:"spread"`
	Commission float64 `json:"commission"`
}

// orderResponse is the JSON response for GET /api/orders/{order_id}.
type orderResponse struct {
	OrderID       string  `json:"order_id"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Type          string  `json:"type"`
	Remaining     float64 `json:"remaining"`
	Price         float64 `json:"price"`
	ParticipantID string  `json:"participant_id"`
	CreatedAt     string  `json:"created_at"`
}

// positionResponse is one open position in the account response.
type positionResponse struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Volume        float64 `json:"volume"`
	EntryPrice    float64 `json:"entry_price"`
	CurrentPrice  float64 `json:"current_price"`
	UnrealizedPnl float64 `json:"unrealized_pnl"`
	ReturnPercent float64 `json:"return_percent"`
	OpenedAt      string  `json:"opened_at"`
}

// accountResponse is the JSON response for
// GET /api/participants/{participant_id}/account.
type accountResponse struct {
	ParticipantID string             `json:"participant_id"`
	Name          string             `json:"name"`
	Type          string             `json:"type"`
	Balance       float64            `json:"balance"`
	Equity        float64            `json:"equity"`
	MarginUsed    float64            `json:"margin_used"`
	FreeMargin    float64            `json:"free_margin"`
	Positions     []positionResponse `json:"positions"`
}

// closePositionRequest is the JSON request body for POST /api/positions/close.
type closePositionRequest struct {
	BrokerID      string `json:"broker_id"`
	ParticipantID string `json:"participant_id"`
	Symbol        string `json:"symbol"`
}

// closePositionResponse is the JSON response for POST /api/positions/close.
type closePositionResponse struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Volume        float64 `json:"volume"`
	EntryPrice    float64 `json:"entry_price"`
	ClosePrice    float64 `json:"close_price"`
	RealizedPnl   float64 `json:"realized_pnl"`
	ReturnPercent float64 `json:"return_percent"`
}

// PlaceTrade handles POST /api/trade.
func (h *TradeHandler) PlaceTrade(w http.ResponseWriter, r *http.Request) {
	var req placeTradeRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	side := domain.OrderSide(req.Side)
	if side != domain.OrderSideBuy && side != domain.OrderSideSell {
		WriteValidationError(w, "side must be 'buy' or 'sell'")
		return
	}

	typ := domain.OrderTypeMarket
	if req.Type != "" {
		typ = domain.OrderType(req.Type)
	}
	switch typ {
	case domain.OrderTypeMarket, domain.OrderTypeLimit, domain.OrderTypeStop, domain.OrderTypeStopLimit:
	default:
		WriteValidationError(w, "type must be one of 'market', 'limit', 'stop', 'stop_limit'")
		return
	}

	var price float64
	if req.Price != nil {
		price = *req.Price
	}
	if typ != domain.OrderTypeMarket && price <= 0 {
		WriteValidationError(w, "price is required for non-market orders")
		return
	}

	result, err := h.brokerSvc.PlaceUserOrder(req.BrokerID, req.ParticipantID, req.Symbol, side, req.Amount, typ, price)
	if err != nil {
		mapMarketError(w, err)
		return
	}

	fills := make([]tradeFillResponse, len(result.Trades))
	for i, t := range result.Trades {
		fills[i] = tradeFillResponse{
			TradeID:    t.TradeID,
			Price:      t.Price,
			Volume:     t.Volume,
			ExecutedAt: formatTime(t.ExecutedAt),
		}
	}
	status := http.StatusCreated
	if !result.Accepted {
		status = http.StatusUnprocessableEntity
	}
	WriteJSON(w, status, placeTradeResponse{
		Accepted:       result.Accepted,
		Reason:         result.Reason,
		OrderID:        result.OrderID,
		ExecutionPrice: result.ExecutionPrice,
		Commission:     result.Commission,
		Swap:           result.Swap,
		LatencyMs:      result.LatencyMs,
		FilledVolume:   result.FilledVolume,
		Trades:         fills,
	})
}

// ClosePosition handles POST /api/positions/close.
func (h *TradeHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	var req closePositionRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	pos, err := h.brokerSvc.CloseUserPosition(req.BrokerID, req.ParticipantID, req.Symbol)
	if err != nil {
		mapMarketError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, closePositionResponse{
		Symbol:        pos.Symbol,
		Side:          string(pos.Side),
		Volume:        pos.Volume,
		EntryPrice:    pos.EntryPrice,
		ClosePrice:    pos.CurrentPrice,
		RealizedPnl:   pos.UnrealizedPnl,
		ReturnPercent: pos.ReturnPercent(),
	})
}

// ListBrokers handles GET /api/brokers.
func (h *TradeHandler) ListBrokers(w http.ResponseWriter, r *http.Request) {
	brokers := h.brokerSvc.List()
	out := make([]brokerResponse, len(brokers))
	for i, b := range brokers {
		out[i] = brokerResponse{
			BrokerID:   b.BrokerID,
			Name:       b.Name,
			Type:       string(b.Type),
			Spread:     b.Spread,
			Commission: b.Commission,
		}
	}
	WriteJSON(w, http.StatusOK, out)
}

// GetOrder handles GET /api/orders/{order_id}.
func (h *TradeHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")

	order, err := h.marketSvc.GetOrder(orderID)
	if err != nil {
		mapMarketError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, orderResponse{
		OrderID:       order.OrderID,
		Symbol:        order.Symbol,
		Side:          string(order.Side),
		Type:          string(order.Type),
		Remaining:     order.Amount,
		Price:         order.Price,
		ParticipantID: order.ParticipantID,
		CreatedAt:     formatTime(order.CreatedAt),
	})
}

// GetAccount handles GET /api/participants/{participant_id}/account.
func (h *TradeHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	participantID := chi.URLParam(r, "participant_id")

	snap, err := h.marketSvc.GetAccount(participantID)
	if err != nil {
		mapMarketError(w, err)
		return
	}

	positions := make([]positionResponse, len(snap.Positions))
	for i, p := range snap.Positions {
		positions[i] = positionResponse{
			Symbol:        p.Symbol,
			Side:          string(p.Side),
			Volume:        p.Volume,
			EntryPrice:    p.EntryPrice,
			CurrentPrice:  p.CurrentPrice,
			UnrealizedPnl: p.UnrealizedPnl,
			ReturnPercent: p.ReturnPercent(),
			OpenedAt:      formatTime(p.OpenedAt),
		}
	}
	WriteJSON(w, http.StatusOK, accountResponse{
		ParticipantID: snap.ParticipantID,
		Name:          snap.Name,
		Type:          string(snap.Type),
		Balance:       snap.Balance,
		Equity:        snap.Equity,
		MarginUsed:    snap.MarginUsed,
		FreeMargin:    snap.FreeMargin,
		Positions:     positions,
	})
}
