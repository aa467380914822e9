package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	classifierapp "github.com/hlwatch/tracker/business/classifier/app"
	"github.com/hlwatch/tracker/business/router/domain"
	upstreamdomain "github.com/hlwatch/tracker/business/upstream/domain"
	"github.com/hlwatch/tracker/internal/logger"
)

type fakeParser struct {
	events []domain.Event
	err    error
}

func (p *fakeParser) Parse(frame upstreamdomain.RawFrame, watched upstreamdomain.WatchedSet) ([]domain.Event, error) {
	return p.events, p.err
}

type fakeEvaluator struct {
	mu       sync.Mutex
	received []domain.Event
}

func (e *fakeEvaluator) Evaluate(ctx context.Context, event domain.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.received = append(e.received, event)
}

func (e *fakeEvaluator) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.received)
}

func testLogger() logger.LoggerInterface {
	return logger.New(nil, logger.LevelError, "test", nil)
}

func testRouterConfig() Config {
	return Config{
		DedupWindow: time.Minute,
		Thresholds: classifierapp.Thresholds{
			Whale:   decimal.NewFromInt(1_000_000),
			Large:   decimal.NewFromInt(100_000),
			Medium:  decimal.NewFromInt(10_000),
			Notable: decimal.NewFromInt(1_000),
		},
	}
}

func sampleEvent(fingerprint string) domain.Event {
	return domain.Event{
		Kind:    upstreamdomain.KindFills,
		Account: upstreamdomain.Account("0xabc"),
		Coin:    &fingerprint,
		Side:    domain.SideBuy,
	}
}

func TestRouterService_Accept_DropsOnFullQueue(t *testing.T) {
	parser := &fakeParser{}
	evaluator := &fakeEvaluator{}
	svc, err := NewRouter(testRouterConfig(), parser, evaluator, upstreamdomain.WatchedSet{}, testLogger())
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	// Fill the queue without a consumer running.
	accepted := 0
	for i := 0; i < frameQueueCapacity+10; i++ {
		if svc.Accept(upstreamdomain.RawFrame{Kind: upstreamdomain.KindFills}) {
			accepted++
		}
	}

	if accepted != frameQueueCapacity {
		t.Errorf("accepted = %d, want exactly queue capacity %d", accepted, frameQueueCapacity)
	}

	stats := svc.Stats()
	if stats.Discarded == 0 {
		t.Errorf("Discarded = 0, want > 0 once the queue is full")
	}
}

func TestRouterService_Process_DeduplicatesWithinWindow(t *testing.T) {
	coin := "ETH"
	parser := &fakeParser{events: []domain.Event{sampleEvent(coin)}}
	evaluator := &fakeEvaluator{}
	svc, err := NewRouter(testRouterConfig(), parser, evaluator, upstreamdomain.WatchedSet{}, testLogger())
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	ctx := context.Background()
	frame := upstreamdomain.RawFrame{Kind: upstreamdomain.KindFills}

	svc.process(ctx, frame)
	svc.process(ctx, frame)

	if got := evaluator.count(); got != 1 {
		t.Errorf("evaluator received %d events, want 1 (second should dedup)", got)
	}
	if svc.Stats().Deduplicated != 1 {
		t.Errorf("Deduplicated = %d, want 1", svc.Stats().Deduplicated)
	}
}

func TestRouterService_Process_DistinctEventsBothEvaluated(t *testing.T) {
	coinA, coinB := "ETH", "BTC"
	parser := &fakeParser{events: []domain.Event{sampleEvent(coinA), sampleEvent(coinB)}}
	evaluator := &fakeEvaluator{}
	svc, err := NewRouter(testRouterConfig(), parser, evaluator, upstreamdomain.WatchedSet{}, testLogger())
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	svc.process(context.Background(), upstreamdomain.RawFrame{Kind: upstreamdomain.KindFills})

	if got := evaluator.count(); got != 2 {
		t.Errorf("evaluator received %d events, want 2", got)
	}
}

func TestRouterService_Process_NonEventBearingFrameSkipped(t *testing.T) {
	parser := &fakeParser{events: []domain.Event{sampleEvent("ETH")}}
	evaluator := &fakeEvaluator{}
	svc, err := NewRouter(testRouterConfig(), parser, evaluator, upstreamdomain.WatchedSet{}, testLogger())
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	svc.process(context.Background(), upstreamdomain.RawFrame{Kind: upstreamdomain.KindSubscriptionAck})

	if got := evaluator.count(); got != 0 {
		t.Errorf("evaluator received %d events, want 0 for a subscription ack frame", got)
	}
}

func TestRouterService_Process_ParseErrorIncrementsFailedParses(t *testing.T) {
	parser := &fakeParser{err: context.DeadlineExceeded}
	evaluator := &fakeEvaluator{}
	svc, err := NewRouter(testRouterConfig(), parser, evaluator, upstreamdomain.WatchedSet{}, testLogger())
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	svc.process(context.Background(), upstreamdomain.RawFrame{Kind: upstreamdomain.KindFills})

	if svc.Stats().FailedParses != 1 {
		t.Errorf("FailedParses = %d, want 1", svc.Stats().FailedParses)
	}
	if got := evaluator.count(); got != 0 {
		t.Errorf("evaluator received %d events, want 0 on parse failure", got)
	}
}

func TestRouterService_SweepDedup_EvictsStaleEntries(t *testing.T) {
	parser := &fakeParser{}
	evaluator := &fakeEvaluator{}
	svc, err := NewRouter(testRouterConfig(), parser, evaluator, upstreamdomain.WatchedSet{}, testLogger())
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	svc.dedupMu.Lock()
	svc.dedup["stale"] = time.Now().Add(-2 * dedupSweepInterval)
	svc.dedup["fresh"] = time.Now()
	svc.dedupMu.Unlock()

	svc.sweepDedup()

	svc.dedupMu.Lock()
	defer svc.dedupMu.Unlock()
	if _, ok := svc.dedup["stale"]; ok {
		t.Errorf("stale entry survived sweep")
	}
	if _, ok := svc.dedup["fresh"]; !ok {
		t.Errorf("fresh entry evicted by sweep")
	}
}
