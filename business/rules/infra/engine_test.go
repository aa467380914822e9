package infra

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hlwatch/tracker/business/rules/domain"
	routerdomain "github.com/hlwatch/tracker/business/router/domain"
	upstreamdomain "github.com/hlwatch/tracker/business/upstream/domain"
	"github.com/hlwatch/tracker/internal/logger"
)

type fakeSink struct {
	mu     sync.Mutex
	alerts []domain.TriggeredAlert
}

func (s *fakeSink) Accept(ctx context.Context, alert domain.TriggeredAlert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func testLogger() logger.LoggerInterface {
	return logger.New(nil, logger.LevelError, "test", nil)
}

func eventWithUSD(account string, usd string) routerdomain.Event {
	d := decimal.RequireFromString(usd)
	return routerdomain.Event{
		Kind:       upstreamdomain.KindFills,
		Account:    upstreamdomain.Account(account),
		USDValue:   &d,
		ObservedAt: time.Now(),
	}
}

func TestEngine_PositionSize_FiresAtOrAboveThreshold(t *testing.T) {
	sink := &fakeSink{}
	engine, err := NewEngine(100, sink, testLogger())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	engine.AddRule(domain.Rule{
		Name: "big", Enabled: true, Severity: domain.SeverityHigh,
		Condition: domain.ConditionPositionSize, Threshold: decimal.NewFromInt(1000),
	})

	engine.Evaluate(context.Background(), eventWithUSD("0xabc", "999"))
	if sink.count() != 0 {
		t.Errorf("alerts = %d, want 0 below threshold", sink.count())
	}

	engine.Evaluate(context.Background(), eventWithUSD("0xabc", "1000"))
	if sink.count() != 1 {
		t.Errorf("alerts = %d, want 1 at threshold", sink.count())
	}
}

func TestEngine_DisabledRuleNeverFires(t *testing.T) {
	sink := &fakeSink{}
	engine, err := NewEngine(100, sink, testLogger())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	engine.AddRule(domain.Rule{
		Name: "big", Enabled: false, Severity: domain.SeverityHigh,
		Condition: domain.ConditionPositionSize, Threshold: decimal.NewFromInt(1),
	})

	engine.Evaluate(context.Background(), eventWithUSD("0xabc", "1000000"))
	if sink.count() != 0 {
		t.Errorf("alerts = %d, want 0 for disabled rule", sink.count())
	}
}

func TestEngine_AggregateVolume_SumsWithinWindow(t *testing.T) {
	sink := &fakeSink{}
	engine, err := NewEngine(100, sink, testLogger())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	engine.AddRule(domain.Rule{
		Name: "volume", Enabled: true, Severity: domain.SeverityMedium,
		Condition: domain.ConditionAggregateVolume, Threshold: decimal.NewFromInt(1500), TimeWindow: time.Minute,
	})

	engine.Evaluate(context.Background(), eventWithUSD("0xabc", "1000"))
	if sink.count() != 0 {
		t.Errorf("alerts = %d, want 0 (1000 < 1500)", sink.count())
	}

	engine.Evaluate(context.Background(), eventWithUSD("0xabc", "600"))
	if sink.count() != 1 {
		t.Errorf("alerts = %d, want 1 (1000+600 >= 1500)", sink.count())
	}
}

func TestEngine_Frequency_CountsPerAccountWithinWindow(t *testing.T) {
	sink := &fakeSink{}
	engine, err := NewEngine(100, sink, testLogger())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	engine.AddRule(domain.Rule{
		Name: "freq", Enabled: true, Severity: domain.SeverityLow,
		Condition: domain.ConditionFrequency, Threshold: decimal.NewFromInt(3), TimeWindow: time.Minute,
	})

	for i := 0; i < 2; i++ {
		engine.Evaluate(context.Background(), eventWithUSD("0xabc", "1"))
	}
	if sink.count() != 0 {
		t.Errorf("alerts = %d, want 0 before third event", sink.count())
	}

	engine.Evaluate(context.Background(), eventWithUSD("0xabc", "1"))
	if sink.count() != 1 {
		t.Errorf("alerts = %d, want 1 on third event", sink.count())
	}

	// A different account's events must not count toward 0xabc's frequency.
	engine.Evaluate(context.Background(), eventWithUSD("0xdef", "1"))
	if sink.count() != 1 {
		t.Errorf("alerts = %d, want still 1 after an unrelated account's event", sink.count())
	}
}

func TestEngine_CustomRule_PanicRecoveredAsNonFire(t *testing.T) {
	sink := &fakeSink{}
	engine, err := NewEngine(100, sink, testLogger())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	engine.RegisterCustomRule("panics", domain.SeverityCritical, func(routerdomain.Event) bool {
		panic("boom")
	})

	engine.Evaluate(context.Background(), eventWithUSD("0xabc", "1"))

	if sink.count() != 0 {
		t.Errorf("alerts = %d, want 0 when the predicate panics", sink.count())
	}
	stats, ok := engine.RuleStats("panics")
	if !ok {
		t.Fatalf("RuleStats(panics) not found")
	}
	if stats.TotalConsidered != 1 || stats.TriggeredCount != 0 {
		t.Errorf("stats = %+v, want 1 considered, 0 triggered", stats)
	}
}

func TestEngine_CustomRule_FiresFromPredicate(t *testing.T) {
	sink := &fakeSink{}
	engine, err := NewEngine(100, sink, testLogger())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	engine.RegisterCustomRule("always", domain.SeverityInfo, func(routerdomain.Event) bool { return true })

	engine.Evaluate(context.Background(), eventWithUSD("0xabc", "1"))

	if sink.count() != 1 {
		t.Errorf("alerts = %d, want 1", sink.count())
	}
}

func TestEngine_RingCapacity_EvictsOldestForWindowedRules(t *testing.T) {
	sink := &fakeSink{}
	engine, err := NewEngine(2, sink, testLogger())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	engine.AddRule(domain.Rule{
		Name: "volume", Enabled: true, Severity: domain.SeverityMedium,
		Condition: domain.ConditionAggregateVolume, Threshold: decimal.NewFromInt(65), TimeWindow: time.Minute,
	})

	// Ring capacity 2: the first event falls out once a third arrives.
	// Without eviction the third sum would be 70 and the rule would fire.
	engine.Evaluate(context.Background(), eventWithUSD("0xabc", "50"))
	engine.Evaluate(context.Background(), eventWithUSD("0xabc", "10"))
	engine.Evaluate(context.Background(), eventWithUSD("0xabc", "10"))

	if sink.count() != 0 {
		t.Errorf("alerts = %d, want 0 (sum of last 2 events is 20, first 50 evicted)", sink.count())
	}
}

func TestEngine_EnableDisableRule(t *testing.T) {
	sink := &fakeSink{}
	engine, err := NewEngine(100, sink, testLogger())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	engine.AddRule(domain.Rule{
		Name: "big", Enabled: true, Severity: domain.SeverityHigh,
		Condition: domain.ConditionPositionSize, Threshold: decimal.NewFromInt(1),
	})

	engine.DisableRule("big")
	engine.Evaluate(context.Background(), eventWithUSD("0xabc", "100"))
	if sink.count() != 0 {
		t.Errorf("alerts = %d, want 0 while disabled", sink.count())
	}

	engine.EnableRule("big")
	engine.Evaluate(context.Background(), eventWithUSD("0xabc", "100"))
	if sink.count() != 1 {
		t.Errorf("alerts = %d, want 1 after re-enabling", sink.count())
	}
}
