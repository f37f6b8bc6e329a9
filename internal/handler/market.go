package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/quartzfx/fxsim/internal/domain"
	"github.com/quartzfx/fxsim/internal/service"
)

// MarketHandler handles HTTP requests for market data endpoints.
type MarketHandler struct {
	marketSvc *service.MarketService
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(marketSvc *service.MarketService) *MarketHandler {
	return &MarketHandler{marketSvc: marketSvc}
}

// marketDataResponse is one symbol's entry in GET /api/market-data.
type marketDataResponse struct {
	Symbol           string  `json:"symbol"`
	Bid              float64 `json:"bid"`
	Ask              float64 `json:"ask"`
	Last             float64 `json:"last"`
	High24h          float64 `json:"high_24h"`
	Low24h           float64 `json:"low_24h"`
	Volume24h        float64 `json:"volume_24h"`
	Change24h        float64 `json:"change_24h"`
	ChangePercent24h float64 `json:"change_percent_24h"`
	Timestamp        string  `json:"timestamp"`
}

// bookLevelResponse is a single aggregated level in the book response.
type bookLevelResponse struct {
	Price      float64 `json:"price"`
	Volume     float64 `json:"volume"`
	Cumulative float64 `json:"cumulative"`
}

// bookResponse is the JSON response for GET /api/symbols/{symbol}/book.
type bookResponse struct {
	Symbol     string              `json:"symbol"`
	Bids       []bookLevelResponse `json:"bids"`
	Asks       []bookLevelResponse `json:"asks"`
	Spread     *float64            `json:"spread"`
	SnapshotAt string              `json:"snapshot_at"`
}

// tradeViewResponse is one executed trade in the trades response.
type tradeViewResponse struct {
	TradeID    string  `json:"trade_id"`
	Symbol     string  `json:"symbol"`
	Price      float64 `json:"price"`
	Volume     float64 `json:"volume"`
	Kind       string  `json:"kind"`
	ExecutedAt string  `json:"executed_at"`
}

// candleResponse is one OHLCV bar in the history response.
type candleResponse struct {
	Timestamp string  `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// statsResponse is the JSON response for GET /api/stats.
type statsResponse struct {
	TotalVolume        float64 `json:"total_volume"`
	TotalTrades        uint64  `json:"total_trades"`
	ActiveParticipants int     `json:"active_participants"`
	LiquidityIndex     float64 `json:"liquidity_index"`
	Volatility         float64 `json:"volatility"`
	State              string  `json:"state"`
}

// GetMarketData handles GET /api/market-data.
func (h *MarketHandler) GetMarketData(w http.ResponseWriter, r *http.Request) {
	entries := h.marketSvc.GetMarketData()
	out := make([]marketDataResponse, len(entries))
	for i, e := range entries {
		out[i] = marketDataResponse{
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
	WriteJSON(w, http.StatusOK, out)
}

// ListSymbols handles GET /api/symbols.
func (h *MarketHandler) ListSymbols(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string][]string{"symbols": h.marketSvc.Symbols()})
}

// GetBook handles GET /api/symbols/{symbol}/book.
func (h *MarketHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	depth := 10
	if v := r.URL.Query().Get("depth"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil {
			WriteValidationError(w, "depth must be an integer")
			return
		}
		depth = d
	}

	book, err := h.marketSvc.GetBook(symbol, depth)
	if err != nil {
		mapMarketError(w, err)
		return
	}

	bids := make([]bookLevelResponse, len(book.Bids))
	for i, l := range book.Bids {
		bids[i] = bookLevelResponse{Price: l.Price, Volume: l.Volume, Cumulative: l.Cumulative}
	}
	asks := make([]bookLevelResponse, len(book.Asks))
	for i, l := range book.Asks {
		asks[i] = bookLevelResponse{Price: l.Price, Volume: l.Volume, Cumulative: l.Cumulative}
	}
	WriteJSON(w, http.StatusOK, bookResponse{
		Symbol:     book.Symbol,
		Bids:       bids,
		Asks:       asks,
		Spread:     book.Spread,
		SnapshotAt: formatTime(book.SnapshotAt),
	})
}

// GetTrades handles GET /api/symbols/{symbol}/trades.
func (h *MarketHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			WriteValidationError(w, "limit must be an integer")
			return
		}
		limit = n
	}

	trades, err := h.marketSvc.GetTrades(symbol, limit)
	if err != nil {
		mapMarketError(w, err)
		return
	}

	out := make([]tradeViewResponse, len(trades))
	for i, t := range trades {
		out[i] = tradeViewResponse{
			TradeID:    t.TradeID,
			Symbol:     t.Symbol,
			Price:      t.Price,
			Volume:     t.Volume,
			Kind:       string(t.Kind),
			ExecutedAt: formatTime(t.ExecutedAt),
		}
	}
	WriteJSON(w, http.StatusOK, out)
}

// GetHistory handles GET /api/symbols/{symbol}/history.
func (h *MarketHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	timeframe := r.URL.Query().Get("timeframe")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			WriteValidationError(w, "limit must be an integer")
			return
		}
		limit = n
	}

	candles, err := h.marketSvc.GetHistory(symbol, timeframe, limit)
	if err != nil {
		mapMarketError(w, err)
		return
	}

	out := make([]candleResponse, len(candles))
	for i, c := range candles {
		out[i] = candleResponse{
			Timestamp: formatTime(c.Timestamp),
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		}
	}
	WriteJSON(w, http.StatusOK, out)
}

// GetStats handles GET /api/stats.
func (h *MarketHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := h.marketSvc.GetStats()
	WriteJSON(w, http.StatusOK, statsResponse{
		TotalVolume:        stats.TotalVolume,
		TotalTrades:        stats.TotalTrades,
		ActiveParticipants: stats.ActiveParticipants,
		LiquidityIndex:     stats.LiquidityIndex,
		Volatility:         stats.Volatility,
		State:              string(stats.State),
	})
}

// mapMarketError maps domain errors to HTTP responses for market endpoints.
func mapMarketError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteValidationError(w, validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrUnknownSymbol):
		WriteError(w, http.StatusNotFound, "unknown_symbol", err.Error())
	case errors.Is(err, domain.ErrUnknownParticipant):
		WriteError(w, http.StatusNotFound, "unknown_participant", err.Error())
	case errors.Is(err, domain.ErrOrderNotFound):
		WriteError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, domain.ErrBrokerNotFound):
		WriteError(w, http.StatusNotFound, "broker_not_found", err.Error())
	case errors.Is(err, domain.ErrPositionNotFound):
		WriteError(w, http.StatusNotFound, "position_not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidOrder):
		WriteError(w, http.StatusBadRequest, "invalid_order", err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
