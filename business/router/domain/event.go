// Package domain contains the router bounded context's core type: the
// normalized event produced from a raw upstream frame.
package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	upstreamdomain "github.com/hlwatch/tracker/business/upstream/domain"
)

// Side is the optional trade side carried on an event.
type Side string

const (
	SideBuy     Side = "buy"
	SideSell    Side = "sell"
	SideLong    Side = "long"
	SideShort   Side = "short"
	SideUnknown Side = "unknown"
)

// Event is the normalized record flowing through the core pipeline.
// Numeric fields are nil when absent, never a zero-value sentinel, so
// invariant 2 ("usd_value is either absent or strictly positive") stays
// checkable.
type Event struct {
	Kind       upstreamdomain.Kind
	Account    upstreamdomain.Account
	Coin       *string
	Side       Side
	Price      *decimal.Decimal
	Size       *decimal.Decimal
	USDValue   *decimal.Decimal
	ObservedAt time.Time
	Raw        json.RawMessage
}

// Fingerprint computes the pipe-joined dedup key over
// (kind, account, coin, side, usd_value, size, price), rendering absent
// fields as empty strings.
func (e Event) Fingerprint() string {
	fields := []string{
		string(e.Kind),
		e.Account.String(),
		deref(e.Coin),
		string(e.Side),
		decimalString(e.USDValue),
		decimalString(e.Size),
		decimalString(e.Price),
	}
	return strings.Join(fields, "|")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func decimalString(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

// RouterStats exposes the router's observable state.
type RouterStats struct {
	FramesReceived uint64
	FailedParses   uint64
	Discarded      uint64
	Deduplicated   uint64
	EventsEmitted  uint64
}
