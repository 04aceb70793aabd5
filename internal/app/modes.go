package app

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/alanyoungcy/zetatrigger/internal/blob/s3"
	"github.com/alanyoungcy/zetatrigger/internal/domain"
	"github.com/alanyoungcy/zetatrigger/internal/messenger"
	"github.com/alanyoungcy/zetatrigger/internal/oracle"
	"github.com/alanyoungcy/zetatrigger/internal/server"
	"github.com/alanyoungcy/zetatrigger/internal/server/handler"
	"github.com/alanyoungcy/zetatrigger/internal/server/ws"
	"github.com/alanyoungcy/zetatrigger/internal/service"
)

// EngineMode runs the execution loop together with settlement upkeep, the
// archive job and, when enabled, the HTTP API.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies, c *Components) error {
	a.logger.InfoContext(ctx, "entering engine mode")
	g, ctx := errgroup.WithContext(ctx)

	a.startCore(ctx, g, deps, c)
	g.Go(func() error { return c.Engine.Run(ctx) })

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, c)
	}
	return wait(g)
}

// ServerMode serves the HTTP API without the periodic loop. Passes are run on
// demand through POST /api/engine/trigger.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies, c *Components) error {
	a.logger.InfoContext(ctx, "entering server mode")
	g, ctx := errgroup.WithContext(ctx)

	a.startCore(ctx, g, deps, c)
	a.startHTTPServer(ctx, g, deps, c)
	return wait(g)
}

// FeederMode only polls the configured price source into the shared cache.
func (a *App) FeederMode(ctx context.Context, deps *Dependencies, c *Components) error {
	a.logger.InfoContext(ctx, "entering feeder mode")
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return c.Events.Run(ctx) })
	feeder := oracle.NewFeeder(c.Source, deps.PriceCache, deps.SignalBus, a.cfg.Oracle.PollInterval.Duration, a.logger)
	g.Go(func() error { return feeder.Run(ctx) })
	return wait(g)
}

// FullMode runs everything in one process. A feeder is added when Redis is
// available and the engine reads the source directly, so other processes can
// share the price.
func (a *App) FullMode(ctx context.Context, deps *Dependencies, c *Components) error {
	a.logger.InfoContext(ctx, "entering full mode")
	g, ctx := errgroup.WithContext(ctx)

	a.startCore(ctx, g, deps, c)
	g.Go(func() error { return c.Engine.Run(ctx) })

	if deps.PriceCache != nil && a.cfg.Oracle.Source != "cache" {
		feeder := oracle.NewFeeder(c.Source, deps.PriceCache, deps.SignalBus, a.cfg.Oracle.PollInterval.Duration, a.logger)
		g.Go(func() error { return feeder.Run(ctx) })
	}
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, c)
	}
	return wait(g)
}

// startCore starts event delivery, the ticket sweeper, the inbound relay and
// the archive job.
func (a *App) startCore(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *Components) {
	g.Go(func() error { return c.Events.Run(ctx) })

	if c.Messenger != nil {
		sweeper := messenger.NewSweeper(c.Messenger, a.cfg.Messenger.SweepInterval.Duration, a.logger)
		g.Go(func() error { return sweeper.Run(ctx) })

		if a.cfg.Messenger.Gateway == "stream" {
			relay := messenger.NewInboundRelay(deps.SignalBus, c.Messenger, a.logger)
			g.Go(func() error { return relay.Run(ctx) })
		}
	}

	if c.Archiver != nil {
		runner := s3blob.NewRunner(c.Archiver, a.cfg.S3.ArchiveAfter.Duration, a.cfg.S3.ArchiveInterval.Duration, a.logger)
		g.Go(func() error { return runner.Run(ctx) })
	}
}

// startHTTPServer adds the API server, the WebSocket hub and its event
// subscription to g. The server shuts down when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *Components) {
	hub := ws.NewHub(c.Engine.Status, a.logger)
	g.Go(func() error { return hub.Run(ctx) })

	feed, unsubscribe := c.Events.Subscribe(256)
	g.Go(func() error {
		defer unsubscribe()
		hub.Forward(ctx, feed)
		return nil
	})

	var tickets handler.TicketLister = noTickets{}
	var gateway *handler.GatewayHandler
	var dests service.Destinations
	if c.Messenger != nil {
		tickets = c.Messenger
		gateway = handler.NewGatewayHandler(c.Messenger, a.logger)
		dests = c.Registry
	}

	h := server.Handlers{
		Health:   handler.NewHealthHandler(c.Engine.Status, a.logger),
		Accounts: handler.NewAccountHandler(service.NewAccountService(c.Ledger, c.Events, a.logger), a.logger),
		Orders:   handler.NewOrderHandler(service.NewOrderService(c.Orders, dests, deps.RateLimiter, c.Events, a.logger), a.logger),
		Prices:   handler.NewPriceHandler(service.NewPriceService(c.Source, c.Guard), a.logger),
		Engine:   handler.NewEngineHandler(c.Engine, a.logger),
		Tickets:  handler.NewTicketHandler(tickets, a.logger),
		Gateway:  gateway,
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, h, server.Deps{
		Hub:     hub,
		Limiter: deps.RateLimiter,
		Webhook: webhookAuth(a.cfg),
	}, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// noTickets backs GET /api/tickets when settlement is disabled.
type noTickets struct{}

func (noTickets) Tickets(domain.TicketStatus) []domain.SettlementTicket { return nil }

// wait treats cancellation as a clean exit.
func wait(g *errgroup.Group) error {
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
