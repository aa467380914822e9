// Package di contains dependency injection tokens for the router context.
package di

import (
	"github.com/hlwatch/tracker/business/router/app"
	upstreamapp "github.com/hlwatch/tracker/business/upstream/app"
	internaldi "github.com/hlwatch/tracker/internal/di"
)

// DI tokens for the router module.
const (
	RouterService = "router.RouterService"
)

// GetRouter resolves the router service from the registry.
func GetRouter(sr internaldi.ServiceRegistry) *app.RouterService {
	return internaldi.MustResolve[*app.RouterService](sr, RouterService)
}

// GetFrameSink resolves the router service as the upstream context's
// FrameSink, the shape the upstream session pushes frames into.
func GetFrameSink(sr internaldi.ServiceRegistry) upstreamapp.FrameSink {
	return internaldi.MustResolve[*app.RouterService](sr, RouterService)
}
