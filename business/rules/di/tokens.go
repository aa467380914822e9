// Package di contains dependency injection tokens for the rules context.
package di

import (
	"github.com/hlwatch/tracker/business/rules/infra"
	internaldi "github.com/hlwatch/tracker/internal/di"
)

// DI tokens for the rules module.
const (
	Engine = "rules.Engine"
)

// GetEngine resolves the rules engine from the registry.
func GetEngine(sr internaldi.ServiceRegistry) *infra.Engine {
	return internaldi.MustResolve[*infra.Engine](sr, Engine)
}
