// Package app contains the router bounded context's port definitions.
package app

import (
	"context"

	"github.com/hlwatch/tracker/business/router/domain"
	upstreamdomain "github.com/hlwatch/tracker/business/upstream/domain"
)

// RuleEvaluator is implemented by the rules engine. The router hands each
// normalized event to it synchronously on the router's own goroutine,
// matching the single owning "router+engine" task the concurrency model
// specifies.
type RuleEvaluator interface {
	Evaluate(ctx context.Context, event domain.Event)
}

// Router receives raw frames pushed by the upstream session and emits
// normalized events to its configured RuleEvaluator. It satisfies the
// upstream bounded context's FrameSink interface structurally.
type Router interface {
	Accept(frame upstreamdomain.RawFrame) bool
	Stats() domain.RouterStats
}

// Parser turns a raw frame's wire-specific payload into zero or more
// normalized events, dropping anything whose account is absent or not in
// watched. It is the only place field-probing on the untyped payload
// happens; everything downstream consumes domain.Event exclusively.
type Parser interface {
	Parse(frame upstreamdomain.RawFrame, watched upstreamdomain.WatchedSet) ([]domain.Event, error)
}
