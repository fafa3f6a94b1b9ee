package app

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/verdictlabs/casemarket/internal/server"
	"github.com/verdictlabs/casemarket/internal/server/handler"
	"github.com/verdictlabs/casemarket/internal/server/ws"
	"github.com/verdictlabs/casemarket/internal/service"
)

// shutdownTimeout bounds the graceful drain of in-flight requests.
const shutdownTimeout = 5 * time.Second

// services bundles the domain services built on top of the wired dependencies.
type services struct {
	markets   *service.MarketService
	bets      *service.BetService
	liquidity *service.LiquidityService
}

// buildServices constructs the service layer from the wired dependencies.
func (a *App) buildServices(deps *Dependencies) *services {
	markets := service.NewMarketService(
		deps.MarketStore, deps.BetStore, deps.Ledger,
		deps.MarketCache, deps.PriceCache, deps.LockManager,
		deps.SignalBus, deps.Archiver, deps.AuditStore,
		deps.Clock, a.logger,
	)
	bets := service.NewBetService(
		deps.MarketStore, deps.BetStore, deps.Ledger,
		deps.LockManager, deps.SignalBus, deps.AuditStore,
		deps.Clock, markets, a.logger,
	)
	liquidity := service.NewLiquidityService(
		deps.MarketStore, deps.Ledger, deps.LockManager,
		deps.AuditStore, deps.Clock, markets, a.logger,
	)
	return &services{
		markets:   markets,
		bets:      bets,
		liquidity: liquidity,
	}
}

// ServeMode runs the HTTP API and WebSocket hub without the deadline sweeper.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, a.buildServices(deps))
	return waitGroup(g)
}

// SweepMode runs only the deadline sweeper, for deployments that separate the
// API replicas from the background worker.
func (a *App) SweepMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sweep mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startSweeper(ctx, g, deps, a.buildServices(deps))
	return waitGroup(g)
}

// FullMode runs the HTTP API, WebSocket hub, and the deadline sweeper in one
// process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)
	a.startHTTPServer(ctx, g, deps, svcs)
	if a.cfg.Sweeper.Enabled {
		a.startSweeper(ctx, g, deps, svcs)
	}
	return waitGroup(g)
}

// startHTTPServer adds the API server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "server.enabled is false, skipping HTTP server")
		return
	}

	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	health := make(map[string]handler.Pinger, len(deps.Health))
	for name, probe := range deps.Health {
		health[name] = pingerFunc(probe)
	}

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKeys:     a.cfg.Server.APIKeys,
		},
		server.Handlers{
			Health:    handler.NewHealthHandler(health, a.logger),
			Markets:   handler.NewMarketHandler(svcs.markets, a.logger),
			Bets:      handler.NewBetHandler(svcs.bets, a.logger),
			Liquidity: handler.NewLiquidityHandler(svcs.liquidity, a.logger),
			Accounts:  handler.NewAccountHandler(deps.Ledger, a.logger),
			Audit:     handler.NewAuditHandler(deps.AuditStore, a.logger),
			Events:    handler.NewEventsHandler(deps.SignalBus, a.logger),
		},
		hub,
		a.logger,
	)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startSweeper adds the deadline sweeper goroutine to the given errgroup.
func (a *App) startSweeper(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	sweeper := service.NewSweeper(
		deps.MarketStore,
		svcs.markets,
		deps.Clock,
		a.cfg.Sweeper.Interval.Duration,
		a.cfg.Sweeper.BatchSize,
		a.logger,
	)
	g.Go(func() error {
		return sweeper.Run(ctx)
	})
}

// waitGroup waits for the errgroup and treats context cancellation as a clean
// shutdown rather than an error.
func waitGroup(g *errgroup.Group) error {
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// pingerFunc adapts a plain probe function to the handler.Pinger interface.
type pingerFunc func(context.Context) error

func (f pingerFunc) Health(ctx context.Context) error { return f(ctx) }
