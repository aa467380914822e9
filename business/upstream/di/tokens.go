// Package di contains dependency injection tokens for the upstream context.
package di

import (
	"github.com/hlwatch/tracker/business/upstream/app"
	internaldi "github.com/hlwatch/tracker/internal/di"
)

// DI tokens for the upstream module.
const (
	Session = "upstream.Session"
)

// GetSession resolves the upstream Session from the registry.
func GetSession(sr internaldi.ServiceRegistry) app.Session {
	return internaldi.MustResolve[app.Session](sr, Session)
}
