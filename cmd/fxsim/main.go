package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quartzfx/fxsim/internal/config"
	"github.com/quartzfx/fxsim/internal/domain"
	"github.com/quartzfx/fxsim/internal/engine"
	"github.com/quartzfx/fxsim/internal/feed"
	"github.com/quartzfx/fxsim/internal/handler"
	"github.com/quartzfx/fxsim/internal/service"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Market settings and seeded randomness. The engine and services share
	// separate rand.Rand instances because *rand.Rand is not safe for
	// concurrent use.
	settings := domain.DefaultSettings()
	settings.TickInterval = cfg.TickInterval
	settings.HistoryLimit = cfg.HistoryLimit

	engineRng := rand.New(rand.NewSource(cfg.Seed))
	brokerRng := rand.New(rand.NewSource(cfg.Seed + 1))
	feedRng := rand.New(rand.NewSource(cfg.Seed + 2))

	// Engine.
	eng, err := engine.NewMarketEngine(settings, engineRng, logger)
	if err != nil {
		logger.Error("failed to create engine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Price feed seeded with every configured symbol.
	priceFeed := feed.NewPriceFeed(feedRng)
	for _, spec := range settings.Symbols {
		priceFeed.AddSymbol(spec.Symbol, spec.BasePrice)
	}

	// Services.
	marketSvc := service.NewMarketService(eng, priceFeed)
	brokerSvc := service.NewBrokerService(eng, brokerRng, logger)

	brokerSvc.Register(domain.NewBroker("direct_access", "Direct Market Access", domain.BrokerDirectAccess, 0.0001, 0))
	brokerSvc.Register(domain.NewBroker("ecn_broker", "ECN Liquidity", domain.BrokerECN, 0, 5))
	brokerSvc.Register(domain.NewBroker("market_maker", "Prime Market Making", domain.BrokerMarketMaker, 0.0003, 0))

	// Demo user account: the only participant whose fills open positions.
	user := domain.NewParticipant("user-1", "Demo User", domain.ParticipantTrader, 10_000)
	user.TracksPositions = true
	if err := eng.AddParticipant(user); err != nil {
		logger.Error("failed to add user account", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Stream.
	stream := handler.NewStream(marketSvc, cfg.StreamInterval, logger)

	// Router.
	router := handler.NewRouter(eng, marketSvc, brokerSvc, stream, logger)

	// Background goroutines: snapshot broadcasting and feed updates from
	// engine quotes.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go stream.Run(ctx)
	go runFeedUpdater(ctx, eng, priceFeed, cfg.TickInterval)

	// Start the simulation.
	if err := eng.Start(); err != nil {
		logger.Error("failed to start simulation", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown: stop HTTP server, then simulation and goroutines.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	if err := eng.Stop(); err != nil {
		logger.Warn("simulation stop", slog.String("error", err.Error()))
	}
	cancel()

	logger.Info("server stopped")
}

// runFeedUpdater folds engine quotes into the price feed at the tick
// cadence.
func runFeedUpdater(ctx context.Context, eng *engine.MarketEngine, priceFeed *feed.PriceFeed, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			quotes := eng.Quotes()
			mapped := make([]feed.MarketQuote, len(quotes))
			for i, q := range quotes {
				mapped[i] = feed.MarketQuote{
					Symbol:      q.Symbol,
					BestBid:     q.BestBid,
					HasBid:      q.HasBid,
					BestAsk:     q.BestAsk,
					HasAsk:      q.HasAsk,
					LastPrice:   q.LastPrice,
					TotalVolume: q.TotalVolume,
				}
			}
			priceFeed.Apply(mapped)
		}
	}
}
