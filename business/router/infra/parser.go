// Package infra holds wire-format-specific implementations of the router
// bounded context's ports. HyperliquidParser is the only place in the
// pipeline that probes untyped JSON: everything downstream of it consumes
// domain.Event exclusively.
package infra

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hlwatch/tracker/business/router/app"
	"github.com/hlwatch/tracker/business/router/domain"
	upstreamdomain "github.com/hlwatch/tracker/business/upstream/domain"
)

var accountFields = []string{"user", "wallet", "address", "account", "from", "to", "owner", "trader", "userAddress"}

var sentinelAccounts = map[string]struct{}{
	"unknown":          {},
	"multiple_wallets": {},
	"0x0":              {},
	"null":             {},
}

var usdValueFields = []string{"usd_value", "usdValue", "value_usd", "valueUSD", "total_value", "totalValue", "amount_usd", "amountUSD"}
var priceFields = []string{"price", "limitPx", "limit_px"}
var sizeFields = []string{"size", "sz", "quantity", "amount", "volume"}

// HyperliquidParser parses fills/user-events/order-updates payloads into
// normalized events.
type HyperliquidParser struct{}

// NewHyperliquidParser constructs a stateless parser.
func NewHyperliquidParser() *HyperliquidParser { return &HyperliquidParser{} }

var _ app.Parser = (*HyperliquidParser)(nil)

// Parse implements app.Parser.
func (p *HyperliquidParser) Parse(frame upstreamdomain.RawFrame, watched upstreamdomain.WatchedSet) ([]domain.Event, error) {
	if !frame.Kind.EventBearing() {
		return nil, nil
	}

	records, err := decodeRecords(frame.Data)
	if err != nil {
		return nil, err
	}

	observedAt := time.Now()
	events := make([]domain.Event, 0, len(records))
	for _, rec := range records {
		raw, ok := extractAccount(rec)
		if !ok {
			continue
		}
		account, valid := upstreamdomain.ParseAccount(raw)
		if !valid || !watched.Contains(account) {
			continue
		}

		ev := domain.Event{
			Kind:       frame.Kind,
			Account:    account,
			Coin:       extractString(rec, "coin"),
			Side:       extractSide(rec),
			Price:      extractDecimal(rec, priceFields),
			ObservedAt: observedAt,
			Raw:        frame.Data,
		}
		ev.Size = extractDecimal(rec, sizeFields)
		ev.USDValue = deriveUSDValue(rec, ev.Price, ev.Size)
		events = append(events, ev)
	}
	return events, nil
}

// decodeRecords handles both list-shaped and record-shaped payloads,
// per the router's "one normalized event per element, or one for a
// record" rule.
func decodeRecords(data json.RawMessage) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var list []map[string]any
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return []map[string]any{rec}, nil
}

func extractAccount(rec map[string]any) (string, bool) {
	for _, field := range accountFields {
		v, ok := rec[field]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		if _, sentinel := sentinelAccounts[strings.ToLower(s)]; sentinel {
			continue
		}
		return s, true
	}
	return "", false
}

func extractString(rec map[string]any, field string) *string {
	v, ok := rec[field]
	if !ok {
		return nil
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

func extractSide(rec map[string]any) domain.Side {
	raw := extractString(rec, "side")
	if raw == nil {
		return domain.SideUnknown
	}
	switch strings.ToLower(*raw) {
	case "buy", "b":
		return domain.SideBuy
	case "sell", "s", "a":
		return domain.SideSell
	case "long":
		return domain.SideLong
	case "short":
		return domain.SideShort
	default:
		return domain.SideUnknown
	}
}

func extractDecimal(rec map[string]any, fields []string) *decimal.Decimal {
	for _, field := range fields {
		v, ok := rec[field]
		if !ok {
			continue
		}
		if d, ok := toDecimal(v); ok {
			return &d
		}
	}
	return nil
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	case float64:
		return decimal.NewFromFloat(t), true
	default:
		return decimal.Decimal{}, false
	}
}

// deriveUSDValue prefers an explicit usd-value field, falling back to
// price*size. A non-positive result is treated as absent: invariant 2
// requires usd_value to be either absent or strictly positive.
func deriveUSDValue(rec map[string]any, price, size *decimal.Decimal) *decimal.Decimal {
	if d := extractDecimal(rec, usdValueFields); d != nil {
		if d.IsPositive() {
			return d
		}
		return nil
	}
	if price != nil && size != nil {
		v := price.Mul(*size)
		if v.IsPositive() {
			return &v
		}
	}
	return nil
}
