package internal

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mkorolev/coindeck/config"
	"github.com/mkorolev/coindeck/internal/services/marketdata"
	"github.com/mkorolev/coindeck/internal/services/news"
	"github.com/mkorolev/coindeck/internal/services/resilience"
	"github.com/mkorolev/coindeck/internal/services/trading"
	"github.com/mkorolev/coindeck/internal/storage/portfoliostate"
	"github.com/mkorolev/coindeck/internal/web"
)

// App wires the orchestrator, the trading engine and the web server
// together and supervises their goroutines.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	orchestrator *marketdata.Orchestrator
	engine       *trading.Engine
	manager      *trading.PositionManager
	cash         *trading.CashManager
	scorer       news.Scorer
	store        *portfoliostate.Store
	server       *web.Server
}

// NewApp builds the application from configuration.
func NewApp(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	feed, err := buildFeed(cfg)
	if err != nil {
		return nil, err
	}

	limiter := resilience.NewRateLimiter(resilience.DefaultRateLimiterConfig(), logger)
	breaker := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig(), logger)
	backoff := resilience.NewBackoff(logger)
	health := resilience.NewHealthMonitor()

	orchCfg := marketdata.DefaultConfig()
	orchCfg.CriticalSymbols = cfg.Symbols.Critical
	orchestrator := marketdata.NewOrchestrator(orchCfg, feed, limiter, breaker, backoff, health, logger)
	orchestrator.Initialize(cfg.Symbols.Tracked)

	engineCfg := trading.DefaultEngineConfig()
	engineCfg.InitialCash = cfg.Engine.InitialCash
	engineCfg.FeeRate = cfg.Engine.FeeRate
	engineCfg.BuyEnabled = cfg.Engine.BuyEnabled
	engineCfg.SellEnabled = cfg.Engine.SellEnabled
	sizer := trading.NewSizer(trading.DefaultSizerConfig())
	engine := trading.NewEngine(engineCfg, sizer, orchestrator.MarketRank, logger)

	var store *portfoliostate.Store
	if cfg.State.Name != "" {
		store, err = portfoliostate.NewStore(cfg.State.Name)
		if err != nil {
			return nil, err
		}
	}

	app := &App{
		cfg:          cfg,
		logger:       logger,
		orchestrator: orchestrator,
		engine:       engine,
		manager:      trading.NewPositionManager(trading.DefaultPositionManagerConfig()),
		cash:         trading.NewCashManager(trading.DefaultCashManagerConfig()),
		scorer:       news.NewStaticScorer(nil),
		store:        store,
		server:       web.NewServer(cfg.Web.Addr, orchestrator, engine, logger),
	}
	if err := app.restorePortfolio(); err != nil {
		return nil, err
	}
	return app, nil
}

func buildFeed(cfg config.Config) (marketdata.Feed, error) {
	switch cfg.Feed.Mode {
	case config.FeedBinance:
		client := binance.NewClient(cfg.Feed.APIKey, cfg.Feed.APISecret)
		return marketdata.NewBinanceFeed(client), nil
	case config.FeedSimulated:
		base := make(map[string]decimal.Decimal, len(cfg.Symbols.Tracked))
		price := decimal.NewFromInt(100)
		for _, symbol := range cfg.Symbols.Tracked {
			base[symbol] = price
		}
		return marketdata.NewSimulatedFeed(base, cfg.Feed.Seed), nil
	}
	return nil, errors.Errorf("unknown feed mode %q", cfg.Feed.Mode)
}

func (a *App) restorePortfolio() error {
	if a.store == nil {
		return nil
	}
	state, err := a.store.Load()
	if err != nil {
		return errors.Wrap(err, "load portfolio state")
	}
	if state == nil {
		return nil
	}
	snapshot, err := state.ToSnapshot()
	if err != nil {
		return errors.Wrap(err, "decode portfolio state")
	}
	a.engine.Restore(snapshot)
	a.logger.Info("portfolio restored",
		zap.String("cash", snapshot.Cash.String()),
		zap.Int("positions", len(snapshot.Positions)),
		zap.Int("trades", len(snapshot.Trades)))
	return nil
}

// Engine exposes the trading engine for signal producers.
func (a *App) Engine() *trading.Engine { return a.engine }

// Orchestrator exposes the market data orchestrator.
func (a *App) Orchestrator() *marketdata.Orchestrator { return a.orchestrator }

// Run starts every component and blocks until ctx is cancelled or one
// of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if err := a.orchestrator.Start(ctx); err != nil {
		return errors.Wrap(err, "start orchestrator")
	}
	defer a.orchestrator.Stop()

	// keep position marks current
	unsubscribe := a.orchestrator.Subscribe("engine-marks", []marketdata.DataType{marketdata.DataTypePrices}, func(snap marketdata.Snapshot) {
		prices := make(map[string]decimal.Decimal, len(snap.Prices))
		for symbol, entry := range snap.Prices {
			prices[symbol] = entry.Tick.Price
		}
		a.engine.UpdatePrices(prices)
	})
	defer unsubscribe()

	g.Go(func() error {
		return a.server.Start(ctx)
	})

	g.Go(func() error {
		return a.runDecisionLoop(ctx)
	})

	if a.store != nil && a.cfg.State.SaveInterval > 0 {
		g.Go(func() error {
			return a.runStateSaver(ctx)
		})
	}

	a.logger.Info("app started", zap.String("web_addr", a.cfg.Web.Addr))
	return g.Wait()
}

func (a *App) runStateSaver(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.State.SaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// final flush on shutdown
			a.savePortfolio()
			return ctx.Err()
		case <-ticker.C:
			a.savePortfolio()
		}
	}
}

func (a *App) savePortfolio() {
	snapshot := a.engine.PortfolioSummary()
	if err := a.store.Save(portfoliostate.FromSnapshot(snapshot)); err != nil {
		a.logger.Error("save portfolio state", zap.Error(err))
	}
}
