package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quartzfx/fxsim/internal/engine"
	"github.com/quartzfx/fxsim/internal/service"
)

// NewRouter creates a chi router with all routes registered, request logging,
// and Content-Type validation middleware.
func NewRouter(
	eng *engine.MarketEngine,
	marketSvc *service.MarketService,
	brokerSvc *service.BrokerService,
	stream *Stream,
	logger *slog.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	// Create handlers.
	marketH := NewMarketHandler(marketSvc)
	tradeH := NewTradeHandler(brokerSvc, marketSvc)
	simH := NewSimulationHandler(eng)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Market data routes.
	r.Get("/api/market-data", marketH.GetMarketData)
	r.Get("/api/symbols", marketH.ListSymbols)
	r.Get("/api/symbols/{symbol}/book", marketH.GetBook)
	r.Get("/api/symbols/{symbol}/trades", marketH.GetTrades)
	r.Get("/api/symbols/{symbol}/history", marketH.GetHistory)
	r.Get("/api/stats", marketH.GetStats)

	// Trading routes.
	r.Get("/api/brokers", tradeH.ListBrokers)
	r.Post("/api/trade", tradeH.PlaceTrade)
	r.Post("/api/positions/close", tradeH.ClosePosition)
	r.Get("/api/orders/{order_id}", tradeH.GetOrder)
	r.Get("/api/participants/{participant_id}/account", tradeH.GetAccount)

	// Simulation lifecycle routes.
	r.Post("/api/simulation/start", simH.Start)
	r.Post("/api/simulation/stop", simH.Stop)
	r.Post("/api/simulation/reset", simH.Reset)

	// Market data stream.
	r.Get("/ws", stream.Serve)

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT, and
// PATCH requests. If the Content-Type header doesn't start with
// "application/json", it returns 400 Bad Request before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
