// Package rules implements the rules bounded context: the evaluation
// engine sitting between the router and the dispatcher.
package rules

import (
	"context"

	"github.com/shopspring/decimal"

	dispatchDI "github.com/hlwatch/tracker/business/dispatch/di"
	"github.com/hlwatch/tracker/business/rules/di"
	"github.com/hlwatch/tracker/business/rules/domain"
	"github.com/hlwatch/tracker/business/rules/infra"
	"github.com/hlwatch/tracker/internal/config"
	internaldi "github.com/hlwatch/tracker/internal/di"
	"github.com/hlwatch/tracker/internal/logger"
	"github.com/hlwatch/tracker/internal/monolith"
)

// Module implements the rules bounded context.
type Module struct{}

// RegisterServices builds the engine from the statically configured rule
// list. The custom condition is skipped here: it has no configuration
// representation and is wired programmatically via RegisterCustomRule by
// embedders (none ship by default).
func (m *Module) RegisterServices(c internaldi.Container) error {
	internaldi.RegisterToken(c, di.Engine, func(sr internaldi.ServiceRegistry) *infra.Engine {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface).With("component", "rules")

		sink := dispatchDI.GetDispatcher(sr)

		engine, err := infra.NewEngine(cfg.Dispatch.RingCapacity, sink, log)
		if err != nil {
			panic("failed to create rules engine: " + err.Error())
		}

		for _, rc := range cfg.Rules {
			condition := domain.Condition(rc.Condition)
			if condition == domain.ConditionCustom {
				continue
			}
			engine.AddRule(domain.Rule{
				Name:       rc.Name,
				Enabled:    rc.Enabled,
				Severity:   domain.Severity(rc.Severity),
				Condition:  condition,
				Threshold:  decimal.NewFromFloat(rc.Threshold),
				TimeWindow: rc.RuleTimeWindow(),
			})
		}

		return engine
	})

	return nil
}

// Startup logs the loaded rule set. No custom rules ship by default; the
// hook exists for embedders that build their own binary on this module.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	mono.Logger().Info(ctx, "rules module started", "rule_count", len(mono.Config().Rules))
	return nil
}
