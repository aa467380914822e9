package domain

import (
	"encoding/json"
	"time"
)

// Kind is the closed set of subscription/frame kinds the upstream session
// recognizes.
type Kind string

const (
	KindFills        Kind = "fills"
	KindUserEvents    Kind = "user-events"
	KindOrderUpdates Kind = "order-updates"
	KindSubscriptionAck Kind = "subscription-ack"
	KindError        Kind = "error"
	KindOther        Kind = "other"
)

// EventBearing reports whether frames of this kind produce normalized
// events downstream (fills, user-events, order-updates only).
func (k Kind) EventBearing() bool {
	switch k {
	case KindFills, KindUserEvents, KindOrderUpdates:
		return true
	default:
		return false
	}
}

// kindByChannel maps the wire-level "channel" field to a Kind.
var kindByChannel = map[string]Kind{
	"userFills":            KindFills,
	"userEvents":           KindUserEvents,
	"orderUpdates":         KindOrderUpdates,
	"subscriptionResponse": KindSubscriptionAck,
	"error":                KindError,
}

// KindFromChannel resolves the wire "channel" field to a Kind, defaulting
// to KindOther for anything unrecognized.
func KindFromChannel(channel string) Kind {
	if k, ok := kindByChannel[channel]; ok {
		return k
	}
	return KindOther
}

// RawFrame is an unparsed payload from the upstream feed, tagged with its
// kind and carrying the decoded-but-untyped body for the router to probe.
type RawFrame struct {
	Kind       Kind
	Channel    string
	Data       json.RawMessage
	ReceivedAt time.Time
}

// SessionStats exposes the upstream session's observable state.
type SessionStats struct {
	Connected           bool
	Ready               bool
	TotalFrames         uint64
	FailedParses        uint64
	ReconnectCount      int
	ConsecutiveFailures int
	LastFrameAt         time.Time
}
