// Package router implements the router bounded context: frame
// normalization, deduplication, and handoff to the rules engine.
package router

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	classifierapp "github.com/hlwatch/tracker/business/classifier/app"
	"github.com/hlwatch/tracker/business/router/app"
	routerDI "github.com/hlwatch/tracker/business/router/di"
	"github.com/hlwatch/tracker/business/router/infra"
	rulesDI "github.com/hlwatch/tracker/business/rules/di"
	upstreamdomain "github.com/hlwatch/tracker/business/upstream/domain"
	"github.com/hlwatch/tracker/internal/config"
	"github.com/hlwatch/tracker/internal/di"
	"github.com/hlwatch/tracker/internal/logger"
	"github.com/hlwatch/tracker/internal/monolith"
)

// Module implements the router bounded context.
type Module struct{}

// RegisterServices registers the router service. It resolves the rules
// engine's evaluator at construction time: both RegisterServices calls
// across all modules complete before any module's Startup runs, so the
// rules module only needs to have registered by this point, not started.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, routerDI.RouterService, func(sr di.ServiceRegistry) *app.RouterService {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface).With("component", "router")

		watched, err := upstreamdomain.NewWatchedSet(cfg.Upstream.WatchedAccounts)
		if err != nil {
			panic("failed to parse watched accounts: " + err.Error())
		}

		thresholds := classifierapp.Thresholds{
			Whale:   decimal.NewFromFloat(cfg.Thresholds.Whale),
			Large:   decimal.NewFromFloat(cfg.Thresholds.Large),
			Medium:  decimal.NewFromFloat(cfg.Thresholds.Medium),
			Notable: decimal.NewFromFloat(cfg.Thresholds.Notable),
		}
		if err := thresholds.Validate(); err != nil {
			panic("invalid size-class thresholds: " + err.Error())
		}

		evaluator := rulesDI.GetEngine(sr)
		parser := infra.NewHyperliquidParser()

		routerCfg := app.Config{
			DedupWindow: time.Duration(cfg.Dedup.WindowSeconds) * time.Second,
			Thresholds:  thresholds,
		}

		svc, err := app.NewRouter(routerCfg, parser, evaluator, watched, log)
		if err != nil {
			panic("failed to create router service: " + err.Error())
		}
		return svc
	})

	return nil
}

// Startup starts the router's owning goroutine.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	svc := routerDI.GetRouter(mono.Services())

	go svc.Run(ctx)

	log.Info(ctx, "router module started")
	return nil
}
