// Package upstream implements the upstream bounded context: a resilient
// session against the Hyperliquid real-time feed.
package upstream

import (
	"context"

	"github.com/hlwatch/tracker/business/upstream/app"
	upstreamDI "github.com/hlwatch/tracker/business/upstream/di"
	"github.com/hlwatch/tracker/business/upstream/domain"
	"github.com/hlwatch/tracker/business/upstream/infra/hyperliquid"
	routerDI "github.com/hlwatch/tracker/business/router/di"
	"github.com/hlwatch/tracker/internal/config"
	"github.com/hlwatch/tracker/internal/di"
	"github.com/hlwatch/tracker/internal/logger"
	"github.com/hlwatch/tracker/internal/monolith"
)

// Module implements the upstream bounded context.
type Module struct{}

// RegisterServices registers the upstream Session with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, upstreamDI.Session, func(sr di.ServiceRegistry) app.Session {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface).With("component", "upstream")

		session, err := hyperliquid.New(hyperliquid.Config{URL: cfg.Upstream.URL}, log)
		if err != nil {
			panic("failed to create hyperliquid session: " + err.Error())
		}
		return session
	})

	return nil
}

// Startup resolves the watched account set and starts the session's Run
// loop in the background, feeding frames into the router's sink.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	cfg := mono.Config()

	watched, err := domain.NewWatchedSet(cfg.Upstream.WatchedAccounts)
	if err != nil {
		return err
	}

	session := upstreamDI.GetSession(mono.Services())
	sink := routerDI.GetFrameSink(mono.Services())

	go func() {
		if err := session.Run(ctx, watched, sink); err != nil {
			log.Error(ctx, "upstream session terminated", "error", err)
		}
	}()

	log.Info(ctx, "upstream module started", "watched_accounts", len(watched))
	return nil
}
