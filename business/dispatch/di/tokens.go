// Package di contains dependency injection tokens for the dispatch context.
package di

import (
	"github.com/hlwatch/tracker/business/dispatch/app"
	rulesapp "github.com/hlwatch/tracker/business/rules/app"
	internaldi "github.com/hlwatch/tracker/internal/di"
)

// DI tokens for the dispatch module.
const (
	Dispatcher = "dispatch.Dispatcher"
)

// GetDispatcherService resolves the concrete Dispatcher from the registry.
func GetDispatcherService(sr internaldi.ServiceRegistry) *app.Dispatcher {
	return internaldi.MustResolve[*app.Dispatcher](sr, Dispatcher)
}

// GetDispatcher resolves the Dispatcher as the rules context's AlertSink,
// the shape the rules engine forwards triggered alerts into.
func GetDispatcher(sr internaldi.ServiceRegistry) rulesapp.AlertSink {
	return internaldi.MustResolve[*app.Dispatcher](sr, Dispatcher)
}
