// Package infra implements the rules engine: the stateful evaluator that
// owns the event ring and per-rule statistics, grounded on the single
// "router+engine" owning-goroutine model.
package infra

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hlwatch/tracker/business/rules/app"
	"github.com/hlwatch/tracker/business/rules/domain"
	routerdomain "github.com/hlwatch/tracker/business/router/domain"
	"github.com/hlwatch/tracker/internal/apperror"
	"github.com/hlwatch/tracker/internal/logger"
)

const (
	defaultRingCapacity = 1000
	tracerName          = "rules"
	meterName           = "rules"
)

type engineMetrics struct {
	eventsConsidered metric.Int64Counter
	alertsTriggered  metric.Int64Counter
	ruleErrors       metric.Int64Counter
}

// Engine evaluates the configured rule set against each normalized event,
// in declaration order, on the caller's goroutine (the router's). It does
// not run its own goroutine; AddRule/RemoveRule/EnableRule/DisableRule are
// safe to call from any goroutine, guarded by mu.
type Engine struct {
	logger  logger.LoggerInterface
	tracer  trace.Tracer
	metrics *engineMetrics
	sink    app.AlertSink

	mu    sync.Mutex
	rules []domain.Rule
	stats map[string]*domain.RuleStats

	ringMu       sync.Mutex
	ring         []routerdomain.Event
	ringCapacity int
	ringHead     int
	ringSize     int
}

// NewEngine constructs an Engine. Alerts fire into sink synchronously from
// within Evaluate.
func NewEngine(ringCapacity int, sink app.AlertSink, log logger.LoggerInterface) (*Engine, error) {
	if ringCapacity <= 0 {
		ringCapacity = defaultRingCapacity
	}
	e := &Engine{
		logger:       log,
		tracer:       otel.Tracer(tracerName),
		sink:         sink,
		stats:        make(map[string]*domain.RuleStats),
		ring:         make([]routerdomain.Event, ringCapacity),
		ringCapacity: ringCapacity,
	}
	if err := e.initMetrics(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) initMetrics() error {
	meter := otel.Meter(meterName)
	m := &engineMetrics{}
	var err error

	if m.eventsConsidered, err = meter.Int64Counter("rules.events_considered"); err != nil {
		return err
	}
	if m.alertsTriggered, err = meter.Int64Counter("rules.alerts_triggered"); err != nil {
		return err
	}
	if m.ruleErrors, err = meter.Int64Counter("rules.errors"); err != nil {
		return err
	}
	e.metrics = m
	return nil
}

// AddRule appends a rule. Safe to call concurrently with Evaluate; the
// mutation takes effect at the next event boundary.
func (e *Engine) AddRule(rule domain.Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, rule)
	if _, ok := e.stats[rule.Name]; !ok {
		e.stats[rule.Name] = &domain.RuleStats{}
	}
}

// RemoveRule drops a rule by name.
func (e *Engine) RemoveRule(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	filtered := e.rules[:0]
	for _, r := range e.rules {
		if r.Name != name {
			filtered = append(filtered, r)
		}
	}
	e.rules = filtered
	delete(e.stats, name)
}

func (e *Engine) setEnabled(name string, enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.rules {
		if e.rules[i].Name == name {
			e.rules[i].Enabled = enabled
		}
	}
}

// EnableRule re-enables a disabled rule by name.
func (e *Engine) EnableRule(name string) { e.setEnabled(name, true) }

// DisableRule disables a rule by name without removing its statistics.
func (e *Engine) DisableRule(name string) { e.setEnabled(name, false) }

// RegisterCustomRule wires a programmatic predicate-based rule. The
// custom condition has no static configuration representation.
func (e *Engine) RegisterCustomRule(name string, severity domain.Severity, predicate func(routerdomain.Event) bool) {
	e.AddRule(domain.Rule{
		Name:      name,
		Enabled:   true,
		Severity:  severity,
		Condition: domain.ConditionCustom,
		Predicate: predicate,
	})
}

// RuleStats returns a rule's observed statistics.
func (e *Engine) RuleStats(name string) (domain.RuleStats, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.stats[name]
	if !ok {
		return domain.RuleStats{}, false
	}
	return *s, true
}

// Evaluate implements router/app.RuleEvaluator structurally: the router
// calls it synchronously, on its own goroutine, for every normalized
// event, after dedup.
func (e *Engine) Evaluate(ctx context.Context, event routerdomain.Event) {
	ctx, span := e.tracer.Start(ctx, "rules.evaluate")
	defer span.End()

	e.pushRing(event)

	e.mu.Lock()
	rules := make([]domain.Rule, len(e.rules))
	copy(rules, e.rules)
	e.mu.Unlock()

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		e.metrics.eventsConsidered.Add(ctx, 1)

		fired := e.fires(ctx, rule, event)
		e.recordConsidered(rule.Name, fired)
		if !fired {
			continue
		}

		e.metrics.alertsTriggered.Add(ctx, 1)
		e.sink.Accept(ctx, domain.TriggeredAlert{Rule: rule, Event: event, FiredAt: time.Now()})
	}
}

func (e *Engine) fires(ctx context.Context, rule domain.Rule, event routerdomain.Event) bool {
	switch rule.Condition {
	case domain.ConditionPositionSize:
		return event.USDValue != nil && event.USDValue.GreaterThanOrEqual(rule.Threshold)
	case domain.ConditionAggregateVolume:
		return e.aggregateVolume(rule.TimeWindow).GreaterThanOrEqual(rule.Threshold)
	case domain.ConditionFrequency:
		return decimal.NewFromInt(int64(e.frequency(event, rule.TimeWindow))).GreaterThanOrEqual(rule.Threshold)
	case domain.ConditionCustom:
		return e.fireCustom(ctx, rule, event)
	default:
		return false
	}
}

// fireCustom recovers from a panicking predicate, counting it as a
// non-fire rather than letting it cross the engine's boundary.
func (e *Engine) fireCustom(ctx context.Context, rule domain.Rule, event routerdomain.Event) (fired bool) {
	if rule.Predicate == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			e.metrics.ruleErrors.Add(ctx, 1)
			e.logger.Error(ctx, "custom rule predicate panicked",
				"rule", rule.Name,
				"panic", r,
				"code", apperror.CodeRuleEvaluation,
			)
			fired = false
		}
	}()
	return rule.Predicate(event)
}

// aggregateVolume sums usd_value across ring events observed within
// window, including the event that triggered this evaluation (already
// pushed onto the ring by Evaluate).
func (e *Engine) aggregateVolume(window time.Duration) decimal.Decimal {
	cutoff := time.Now().Add(-window)
	sum := decimal.Zero

	e.ringMu.Lock()
	defer e.ringMu.Unlock()
	for i := 0; i < e.ringSize; i++ {
		ev := e.ringAt(i)
		if ev.ObservedAt.Before(cutoff) {
			continue
		}
		if ev.USDValue != nil {
			sum = sum.Add(*ev.USDValue)
		}
	}
	return sum
}

// frequency counts ring events for event.Account observed within window.
func (e *Engine) frequency(event routerdomain.Event, window time.Duration) int {
	cutoff := time.Now().Add(-window)
	count := 0

	e.ringMu.Lock()
	defer e.ringMu.Unlock()
	for i := 0; i < e.ringSize; i++ {
		ev := e.ringAt(i)
		if ev.ObservedAt.Before(cutoff) {
			continue
		}
		if ev.Account == event.Account {
			count++
		}
	}
	return count
}

func (e *Engine) pushRing(event routerdomain.Event) {
	e.ringMu.Lock()
	defer e.ringMu.Unlock()
	e.ring[e.ringHead] = event
	e.ringHead = (e.ringHead + 1) % e.ringCapacity
	if e.ringSize < e.ringCapacity {
		e.ringSize++
	}
}

// ringAt returns the i-th oldest of the ringSize live entries. Caller
// holds ringMu.
func (e *Engine) ringAt(i int) routerdomain.Event {
	idx := (e.ringHead - e.ringSize + i + e.ringCapacity) % e.ringCapacity
	return e.ring[idx]
}

func (e *Engine) recordConsidered(name string, fired bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats, ok := e.stats[name]
	if !ok {
		stats = &domain.RuleStats{}
		e.stats[name] = stats
	}
	stats.TotalConsidered++
	if fired {
		stats.TriggeredCount++
		stats.LastTriggeredAt = time.Now()
	}
	if stats.TotalConsidered > 0 {
		stats.SuccessRate = float64(stats.TriggeredCount) / float64(stats.TotalConsidered)
	}
}
