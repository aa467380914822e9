// Package domain contains the rules bounded context's core types: the
// declarative rule record and the alert it produces.
package domain

import (
	"time"

	"github.com/shopspring/decimal"

	routerdomain "github.com/hlwatch/tracker/business/router/domain"
)

// Severity is the alert severity, also used to derive dispatch priority.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Priority maps severity to dispatch queue priority: critical sorts first.
func (s Severity) Priority() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Condition is the closed set of rule evaluation strategies.
type Condition string

const (
	ConditionPositionSize    Condition = "position-size"
	ConditionAggregateVolume Condition = "aggregate-volume"
	ConditionFrequency       Condition = "frequency"
	ConditionCustom          Condition = "custom"
)

// Rule is a declarative trigger evaluated against every normalized event.
// Predicate is populated only for Condition == ConditionCustom; it cannot
// be expressed in static configuration.
type Rule struct {
	Name       string
	Enabled    bool
	Severity   Severity
	Condition  Condition
	Threshold  decimal.Decimal
	TimeWindow time.Duration
	Predicate  func(routerdomain.Event) bool
}

// TriggeredAlert is the pair (rule, event) the engine hands to the
// dispatcher, one per rule per event.
type TriggeredAlert struct {
	Rule    Rule
	Event   routerdomain.Event
	FiredAt time.Time
}

// RuleStats tracks a single rule's observed behavior across its lifetime.
type RuleStats struct {
	TriggeredCount  uint64
	LastTriggeredAt time.Time
	TotalConsidered uint64
	SuccessRate     float64
}
