// Package app contains the upstream bounded context's port definitions.
package app

import (
	"context"

	"github.com/hlwatch/tracker/business/upstream/domain"
)

// FrameSink receives raw frames from the session in arrival order. Accept
// must not block for long; returning false counts the frame as dropped.
type FrameSink interface {
	Accept(domain.RawFrame) bool
}

// Session maintains a single subscription session against the upstream
// feed, reconnecting across transient failures.
type Session interface {
	// Run blocks until ctx is cancelled or Shutdown is called.
	Run(ctx context.Context, watched domain.WatchedSet, sink FrameSink) error
	// Shutdown initiates cooperative termination.
	Shutdown()
	// Stats returns the session's current observable state.
	Stats() domain.SessionStats
}
