package hyperliquid

import "encoding/json"

// subscribeRequest is the outbound subscribe frame:
// {"method":"subscribe","subscription":{"type":<kind>,"user":<account>}}.
type subscribeRequest struct {
	Method       string       `json:"method"`
	Subscription subscription `json:"subscription"`
}

type subscription struct {
	Type string `json:"type"`
	User string `json:"user"`
}

// pingRequest is the outbound liveness ping: {"method":"ping","id":<uint64>}.
type pingRequest struct {
	Method string `json:"method"`
	ID     uint64 `json:"id"`
}

// inboundFrame is the envelope every inbound message is parsed into before
// being handed to the router as a domain.RawFrame; Data is kept as
// json.RawMessage so nothing downstream of this package probes the body.
type inboundFrame struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// subscriptionKindWire maps a domain subscription kind to the wire-level
// subscription "type" value.
var subscriptionKindWire = map[string]string{
	"fills":        "userFills",
	"user-events":  "userEvents",
	"order-updates": "orderUpdates",
}
