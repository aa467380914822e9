// Package app contains the dispatch bounded context's port definitions
// and orchestration (queueing, rate limiting, retry, formatting).
package app

import (
	"context"
	"errors"

	"github.com/hlwatch/tracker/business/dispatch/domain"
)

// ChannelSender delivers one dispatch task's already-formatted payload to
// its destination. The caller (the dispatcher) classifies the returned
// error as transient or terminal: a plain error is transient and eligible
// for retry; a *TerminalError is not.
type ChannelSender interface {
	Send(ctx context.Context, task domain.DispatchTask) error
}

// TerminalError marks a send failure as non-retryable (e.g. a 4xx
// response indicating a malformed payload, not a transient outage).
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string { return e.Err.Error() }
func (e *TerminalError) Unwrap() error { return e.Err }

// isTerminal reports whether err was wrapped as non-retryable.
func isTerminal(err error) bool {
	var te *TerminalError
	return errors.As(err, &te)
}
