package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cryptoMegaBot/config"
	"cryptoMegaBot/internal/adapters/binanceclient"
	"cryptoMegaBot/internal/adapters/kucoinclient"
	"cryptoMegaBot/internal/coordinator"
	"cryptoMegaBot/internal/ingestor"
	"cryptoMegaBot/internal/ports"
	"cryptoMegaBot/internal/position"
	"cryptoMegaBot/internal/pricing"
	"cryptoMegaBot/internal/risk"
	"cryptoMegaBot/internal/router"
	"cryptoMegaBot/internal/sync"
)

// venueRuntime bundles everything that exists once per connected exchange
// venue: the exchange adapter itself, its price service, coordinator,
// event ingestor, and the slice of periodic synchronizer loops that poll
// it.
type venueRuntime struct {
	venue       string
	exchange    ports.ExchangeClient
	coordinator *coordinator.Coordinator
	ingestor    *ingestor.Ingestor
	loops       []sync.Loop
}

// TradingService orchestrates the trade-lifecycle engine end to end: it
// wires the signal router, one coordinator/ingestor/synchronizer set per
// connected venue, and a small ops HTTP surface, then runs them all until
// shutdown.
type TradingService struct {
	cfg    *config.Config
	logger ports.Logger
	trades ports.TradeRepository

	router    *router.Router
	venues    []*venueRuntime
	scheduler *sync.Scheduler

	httpServer *http.Server
}

// Dependencies holds everything TradingService needs that the caller
// (main) is responsible for constructing: the repository and its
// satellite accessors.
type Dependencies struct {
	Cfg      *config.Config
	Logger   ports.Logger
	Trades   ports.TradeRepository
	Alerts   ports.AlertRepository
	Balances ports.BalanceRepository
}

// NewTradingService builds the full dependency graph described in
// SPEC_FULL.md §2/§4: it always wires Binance as the primary venue, and
// additionally wires KuCoin when cfg.KuCoinEnabled is set.
func NewTradingService(deps Dependencies) (*TradingService, error) {
	if deps.Cfg == nil || deps.Logger == nil || deps.Trades == nil || deps.Alerts == nil || deps.Balances == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	cfg := deps.Cfg
	logger := deps.Logger

	binanceExchange, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.BinanceAPIKey,
		SecretKey:            cfg.BinanceAPISecret,
		UseTestnet:           cfg.BinanceTestnet,
		Logger:               logger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		RequestsPerSecond:    cfg.RESTRequestsPerSecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Binance client: %w", err)
	}

	svc := &TradingService{
		cfg:    cfg,
		logger: logger,
		trades: deps.Trades,
	}

	svc.venues = append(svc.venues, svc.buildVenueRuntime("binance", binanceExchange, deps))

	if cfg.KuCoinEnabled {
		kucoinExchange, err := kucoinclient.New(kucoinclient.Config{
			APIKey:               cfg.KuCoinAPIKey,
			APISecret:            cfg.KuCoinAPISecret,
			APIPassphrase:        cfg.KuCoinPassphrase,
			Logger:               logger,
			ReconnectDelay:       cfg.ReconnectDelay,
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
			RequestsPerSecond:    cfg.RESTRequestsPerSecond,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize KuCoin client: %w", err)
		}
		svc.venues = append(svc.venues, svc.buildVenueRuntime("kucoin", kucoinExchange, deps))
	}

	// The router only ever serializes against a single coordinator
	// (§4.1 binds signals to the primary venue); follow-up alerts are
	// resolved against whichever trade row the original signal created,
	// regardless of venue.
	svc.router = router.New(router.Config{
		Trades:      deps.Trades,
		Alerts:      deps.Alerts,
		Coordinator: svc.venues[0].coordinator,
		Logger:      logger,
	})

	allLoops := make([]sync.Loop, 0, len(svc.venues)*5)
	for _, v := range svc.venues {
		allLoops = append(allLoops, v.loops...)
	}
	svc.scheduler = sync.NewScheduler(logger, allLoops...)

	svc.httpServer = &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: svc.buildMux(),
	}

	return svc, nil
}

func (s *TradingService) buildVenueRuntime(venue string, exchange ports.ExchangeClient, deps Dependencies) *venueRuntime {
	cfg := deps.Cfg
	priceSvc := pricing.New(pricing.Config{Exchange: exchange, Logger: deps.Logger})
	posMgr := position.New(position.Config{
		Trades:            deps.Trades,
		TradeCooldown:     cfg.TradeCooldown,
		PositionCooldown:  cfg.PositionCooldown,
		MaxPositionTrades: cfg.MaxPositionTrades,
	})
	riskMgr := risk.New(risk.Config{
		MaxOpenPositions: cfg.MaxOpenPositions,
		MaxDailyLossUSD:  cfg.MaxDailyLossUSD,
	}, deps.Trades)
	coord := coordinator.New(coordinator.Config{
		Cfg:      cfg,
		Exchange: exchange,
		Trades:   deps.Trades,
		Pricing:  priceSvc,
		Position: posMgr,
		Risk:     riskMgr,
		Logger:   deps.Logger,
	})
	ing := ingestor.New(exchange, deps.Trades, cfg, deps.Logger)

	loops := []sync.Loop{
		sync.NewStatusSync(exchange, deps.Trades, cfg, deps.Logger),
		sync.NewPnLBackfill(exchange, deps.Trades, cfg, deps.Logger),
		sync.NewOrphanCleanup(exchange, deps.Trades, cfg, deps.Logger),
		sync.NewBalanceSync(exchange, deps.Balances, cfg, deps.Logger, cfg.TrackedBalanceAssets),
		sync.NewPositionAudit(exchange, deps.Trades, cfg, deps.Logger),
	}

	return &venueRuntime{venue: venue, exchange: exchange, coordinator: coord, ingestor: ing, loops: loops}
}

// Start runs the event ingestors and periodic synchronizer until ctx is
// canceled or a SIGINT/SIGTERM arrives, then shuts everything down
// gracefully.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "starting trading service", map[string]interface{}{"venues": s.venueNames()})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, v := range s.venues {
		v := v
		go func() {
			if err := v.ingestor.Run(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error(ctx, err, "event ingestor exited unexpectedly", map[string]interface{}{"venue": v.venue})
			}
		}()
	}

	go s.scheduler.Run(ctx)

	go func() {
		s.logger.Info(ctx, "ops http surface listening", map[string]interface{}{"addr": s.cfg.HTTPAddr})
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error(ctx, err, "ops http surface exited unexpectedly")
		}
	}()

	<-ctx.Done()
	s.logger.Info(context.Background(), "shutdown signal received, stopping gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error(shutdownCtx, err, "ops http surface shutdown did not complete cleanly")
	}

	s.logger.Info(context.Background(), "trading service stopped")
	return nil
}

// Router exposes the signal router so a webhook ingress layer (out of
// scope per §1) can dispatch SignalRecords into it.
func (s *TradingService) Router() *router.Router { return s.router }

func (s *TradingService) venueNames() []string {
	names := make([]string, 0, len(s.venues))
	for _, v := range s.venues {
		names = append(names, v.venue)
	}
	return names
}

// buildMux implements §6's ops HTTP surface.
func (s *TradingService) buildMux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /websocket/status", func(w http.ResponseWriter, r *http.Request) {
		status := make(map[string]bool, len(s.venues))
		for _, v := range s.venues {
			status[v.venue] = v.ingestor.Running()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status)
	})

	mux.HandleFunc("GET /scheduler/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.scheduler.Status())
	})

	mux.HandleFunc("POST /scheduler/run/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/scheduler/run/")
		if name == "" {
			http.Error(w, "loop name required", http.StatusBadRequest)
			return
		}
		if !s.scheduler.TriggerNow(r.Context(), name) {
			http.Error(w, fmt.Sprintf("unknown or already running loop %q", name), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	return mux
}
