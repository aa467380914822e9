// Package app holds the classifier's pure, stateless classification
// function. It is invoked inline by both the router (for debug logging) and the
// dispatcher (for alert formatting) rather than run as its own goroutine,
// matching the single router+engine task the concurrency model specifies.
package app

import (
	"github.com/shopspring/decimal"

	"github.com/hlwatch/tracker/business/classifier/domain"
	routerdomain "github.com/hlwatch/tracker/business/router/domain"
)

// Thresholds are the runtime-configurable monetary cutoffs for each size
// class. Ordering must satisfy Whale > Large > Medium > Notable.
type Thresholds struct {
	Whale   decimal.Decimal
	Large   decimal.Decimal
	Medium  decimal.Decimal
	Notable decimal.Decimal
}

// Validate enforces the strict descending ordering the classifier depends
// on; callers treat a violation as a fatal configuration error.
func (t Thresholds) Validate() error {
	if !t.Whale.GreaterThan(t.Large) {
		return errThresholdOrder("whale", "large")
	}
	if !t.Large.GreaterThan(t.Medium) {
		return errThresholdOrder("large", "medium")
	}
	if !t.Medium.GreaterThan(t.Notable) {
		return errThresholdOrder("medium", "notable")
	}
	return nil
}

type thresholdOrderError struct{ upper, lower string }

func errThresholdOrder(upper, lower string) error {
	return &thresholdOrderError{upper: upper, lower: lower}
}

func (e *thresholdOrderError) Error() string {
	return "threshold ordering violated: " + e.upper + " must be greater than " + e.lower
}

var hundred = decimal.NewFromInt(100)
var pointEight = decimal.NewFromFloat(0.8)
var pointSix = decimal.NewFromFloat(0.6)
var oneTwo = decimal.NewFromFloat(1.2)

// Classify assigns a size class and confidence score to an event's
// usd_value. An event with no usd_value classifies as small with zero
// confidence: there is nothing to size.
func Classify(event routerdomain.Event, thresholds Thresholds) domain.Classification {
	if event.USDValue == nil {
		return domain.Classification{SizeClass: domain.SizeSmall, Confidence: 0}
	}

	usd := *event.USDValue
	sizeClass := domain.SizeSmall
	switch {
	case usd.GreaterThanOrEqual(thresholds.Whale):
		sizeClass = domain.SizeWhale
	case usd.GreaterThanOrEqual(thresholds.Large):
		sizeClass = domain.SizeLarge
	case usd.GreaterThanOrEqual(thresholds.Medium):
		sizeClass = domain.SizeMedium
	case usd.GreaterThanOrEqual(thresholds.Notable):
		sizeClass = domain.SizeNotable
	}

	confidence := decimal.NewFromInt(1)
	if event.Price == nil || event.Size == nil {
		confidence = confidence.Mul(pointEight)
	}
	if usd.LessThan(hundred) {
		confidence = confidence.Mul(pointSix)
	}
	if usd.GreaterThanOrEqual(thresholds.Whale) {
		confidence = confidence.Mul(oneTwo)
	}

	f, _ := confidence.Float64()
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}

	return domain.Classification{SizeClass: sizeClass, Confidence: f}
}
