// Package app contains the rules bounded context's port definitions.
package app

import (
	"context"

	"github.com/hlwatch/tracker/business/rules/domain"
)

// AlertSink is implemented by the dispatcher. The engine forwards each
// triggered alert to it synchronously, fully decoupling the dispatcher
// from the router's interfaces.
type AlertSink interface {
	Accept(ctx context.Context, alert domain.TriggeredAlert)
}
