package app

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	classifierapp "github.com/hlwatch/tracker/business/classifier/app"
	"github.com/hlwatch/tracker/business/dispatch/domain"
	rulesdomain "github.com/hlwatch/tracker/business/rules/domain"
	routerdomain "github.com/hlwatch/tracker/business/router/domain"
	upstreamdomain "github.com/hlwatch/tracker/business/upstream/domain"
	"github.com/hlwatch/tracker/internal/logger"
)

func testLogger() logger.LoggerInterface {
	return logger.New(nil, logger.LevelError, "test", nil)
}

func testThresholds() classifierapp.Thresholds {
	return classifierapp.Thresholds{
		Whale:   decimal.NewFromInt(1_000_000),
		Large:   decimal.NewFromInt(100_000),
		Medium:  decimal.NewFromInt(10_000),
		Notable: decimal.NewFromInt(1_000),
	}
}

func sampleAlert(severity rulesdomain.Severity) rulesdomain.TriggeredAlert {
	usd := decimal.NewFromInt(50_000)
	return rulesdomain.TriggeredAlert{
		Rule: rulesdomain.Rule{Name: "r", Severity: severity, Condition: rulesdomain.ConditionPositionSize, Threshold: usd},
		Event: routerdomain.Event{
			Kind:     upstreamdomain.KindFills,
			Account:  upstreamdomain.Account("0xabc"),
			USDValue: &usd,
		},
		FiredAt: time.Now(),
	}
}

// fakeSender lets tests script a sequence of outcomes for successive sends.
type fakeSender struct {
	mu    sync.Mutex
	calls int
	errs  []error // errs[i] is returned for the i-th call; last value repeats after exhausted
}

func (s *fakeSender) Send(ctx context.Context, task domain.DispatchTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if len(s.errs) == 0 {
		return nil
	}
	if i >= len(s.errs) {
		i = len(s.errs) - 1
	}
	return s.errs[i]
}

func (s *fakeSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func baseConfig() Config {
	return Config{
		MaxRetries:     3,
		RetryBaseDelay: 10 * time.Millisecond,
		Thresholds:     testThresholds(),
		Channels: map[domain.Channel]ChannelConfig{
			domain.ChannelDiscord:  {Enabled: true, RateLimit: RateLimitConfig{Strategy: "token-bucket", RefillPerSecond: 1000, BurstCapacity: 1000}},
			domain.ChannelTelegram: {Enabled: true, RateLimit: RateLimitConfig{Strategy: "token-bucket", RefillPerSecond: 1000, BurstCapacity: 1000}},
		},
	}
}

func TestTaskHeap_OrdersByPriorityThenFIFO(t *testing.T) {
	now := time.Now()
	h := taskHeap{
		{ID: "low-first", Priority: 1, CreatedAt: now},
		{ID: "high", Priority: 4, CreatedAt: now.Add(time.Second)},
		{ID: "low-second", Priority: 1, CreatedAt: now.Add(time.Millisecond)},
	}
	heap.Init(&h)

	var order []string
	for h.Len() > 0 {
		order = append(order, heap.Pop(&h).(domain.DispatchTask).ID)
	}

	want := []string{"high", "low-first", "low-second"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order = %v, want %v", order, want)
		}
	}
}

func TestDispatcher_Accept_EnqueuesOneTaskPerEnabledChannel(t *testing.T) {
	senders := map[domain.Channel]ChannelSender{
		domain.ChannelDiscord:  &fakeSender{},
		domain.ChannelTelegram: &fakeSender{},
	}
	d, err := NewDispatcher(baseConfig(), senders, testLogger())
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	d.Accept(context.Background(), sampleAlert(rulesdomain.SeverityHigh))

	for channel, w := range d.workers {
		w.mu.Lock()
		n := w.pending.Len()
		w.mu.Unlock()
		if n != 1 {
			t.Errorf("channel %s pending = %d, want 1", channel, n)
		}
	}
}

func TestDispatcher_Accept_DisabledChannelNeverGetsAWorker(t *testing.T) {
	cfg := baseConfig()
	cfg.Channels[domain.ChannelEmail] = ChannelConfig{Enabled: false}
	senders := map[domain.Channel]ChannelSender{
		domain.ChannelDiscord: &fakeSender{},
		domain.ChannelEmail:   &fakeSender{},
	}
	d, err := NewDispatcher(cfg, senders, testLogger())
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	if _, ok := d.workers[domain.ChannelEmail]; ok {
		t.Errorf("disabled channel got a worker")
	}
	if _, ok := d.workers[domain.ChannelDiscord]; !ok {
		t.Errorf("enabled channel missing a worker")
	}
}

func TestDispatcher_Drain_SuccessfulSendRecordsStats(t *testing.T) {
	sender := &fakeSender{}
	senders := map[domain.Channel]ChannelSender{domain.ChannelDiscord: sender}
	cfg := baseConfig()
	delete(cfg.Channels, domain.ChannelTelegram)
	d, err := NewDispatcher(cfg, senders, testLogger())
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	d.Accept(context.Background(), sampleAlert(rulesdomain.SeverityHigh))
	d.drain(context.Background(), d.workers[domain.ChannelDiscord])

	stats := d.Stats().PerChannel[domain.ChannelDiscord]
	if stats.Succeeded != 1 {
		t.Errorf("Succeeded = %d, want 1", stats.Succeeded)
	}
	if stats.Attempted != 1 {
		t.Errorf("Attempted = %d, want 1", stats.Attempted)
	}
	if sender.callCount() != 1 {
		t.Errorf("sender called %d times, want 1", sender.callCount())
	}
}

func TestDispatcher_Send_TerminalErrorDoesNotRetry(t *testing.T) {
	sender := &fakeSender{errs: []error{&TerminalError{Err: errors.New("bad payload")}}}
	senders := map[domain.Channel]ChannelSender{domain.ChannelDiscord: sender}
	cfg := baseConfig()
	delete(cfg.Channels, domain.ChannelTelegram)
	d, err := NewDispatcher(cfg, senders, testLogger())
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	task := domain.DispatchTask{ID: "t1", Channel: domain.ChannelDiscord, Account: "0xabc", CreatedAt: time.Now()}
	d.send(context.Background(), d.workers[domain.ChannelDiscord], task)

	w := d.workers[domain.ChannelDiscord]
	w.mu.Lock()
	retryLen := len(w.retry)
	w.mu.Unlock()
	if retryLen != 0 {
		t.Errorf("retry list = %d entries, want 0 for a terminal error", retryLen)
	}
	if w.stats().Failed != 1 {
		t.Errorf("Failed = %d, want 1", w.stats().Failed)
	}
}

func TestDispatcher_Send_TransientErrorSchedulesExponentialBackoff(t *testing.T) {
	sender := &fakeSender{errs: []error{errors.New("transient: timeout")}}
	senders := map[domain.Channel]ChannelSender{domain.ChannelDiscord: sender}
	cfg := baseConfig()
	delete(cfg.Channels, domain.ChannelTelegram)
	cfg.RetryBaseDelay = 100 * time.Millisecond
	cfg.MaxRetries = 5
	d, err := NewDispatcher(cfg, senders, testLogger())
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	before := time.Now()
	task := domain.DispatchTask{ID: "t1", Channel: domain.ChannelDiscord, Account: "0xabc", CreatedAt: time.Now(), AttemptCount: 2}
	d.send(context.Background(), d.workers[domain.ChannelDiscord], task)

	w := d.workers[domain.ChannelDiscord]
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.retry) != 1 {
		t.Fatalf("retry list = %d entries, want 1", len(w.retry))
	}
	got := w.retry[0]
	if got.AttemptCount != 3 {
		t.Errorf("AttemptCount = %d, want 3", got.AttemptCount)
	}
	// backoff = RetryBaseDelay * 2^(AttemptCount-1) = 100ms * 4 = 400ms
	wantDelay := cfg.RetryBaseDelay * 4
	gotDelay := got.NextAttemptAt.Sub(before)
	if gotDelay < wantDelay-20*time.Millisecond || gotDelay > wantDelay+50*time.Millisecond {
		t.Errorf("NextAttemptAt delay = %v, want ~%v", gotDelay, wantDelay)
	}
}

func TestDispatcher_Send_ExhaustedRetriesIsTerminal(t *testing.T) {
	sender := &fakeSender{errs: []error{errors.New("transient")}}
	senders := map[domain.Channel]ChannelSender{domain.ChannelDiscord: sender}
	cfg := baseConfig()
	delete(cfg.Channels, domain.ChannelTelegram)
	cfg.MaxRetries = 1
	d, err := NewDispatcher(cfg, senders, testLogger())
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	task := domain.DispatchTask{ID: "t1", Channel: domain.ChannelDiscord, Account: "0xabc", CreatedAt: time.Now(), AttemptCount: 1}
	d.send(context.Background(), d.workers[domain.ChannelDiscord], task)

	w := d.workers[domain.ChannelDiscord]
	w.mu.Lock()
	retryLen := len(w.retry)
	w.mu.Unlock()
	if retryLen != 0 {
		t.Errorf("retry list = %d entries, want 0 once retries are exhausted", retryLen)
	}
	if w.stats().Failed != 1 {
		t.Errorf("Failed = %d, want 1", w.stats().Failed)
	}
}

func TestDispatcher_Sweep_MovesOnlyReadyRetriesBackToPending(t *testing.T) {
	senders := map[domain.Channel]ChannelSender{domain.ChannelDiscord: &fakeSender{}}
	cfg := baseConfig()
	delete(cfg.Channels, domain.ChannelTelegram)
	d, err := NewDispatcher(cfg, senders, testLogger())
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	w := d.workers[domain.ChannelDiscord]

	w.addRetry(domain.DispatchTask{ID: "ready", NextAttemptAt: time.Now().Add(-time.Second)})
	w.addRetry(domain.DispatchTask{ID: "waiting", NextAttemptAt: time.Now().Add(time.Hour)})

	d.sweep()

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.retry) != 1 || w.retry[0].ID != "waiting" {
		t.Errorf("retry list = %+v, want only the still-waiting task", w.retry)
	}
	if w.pending.Len() != 1 || w.pending[0].ID != "ready" {
		t.Errorf("pending = %+v, want only the ready task", w.pending)
	}
}

func TestDispatcher_RateLimiter_DefersOverLimitTasks(t *testing.T) {
	senders := map[domain.Channel]ChannelSender{domain.ChannelDiscord: &fakeSender{}}
	cfg := Config{
		MaxRetries:     3,
		RetryBaseDelay: 10 * time.Millisecond,
		Thresholds:     testThresholds(),
		Channels: map[domain.Channel]ChannelConfig{
			domain.ChannelDiscord: {Enabled: true, RateLimit: RateLimitConfig{Strategy: "token-bucket", RefillPerSecond: 0.0001, BurstCapacity: 1}},
		},
	}
	d, err := NewDispatcher(cfg, senders, testLogger())
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	w := d.workers[domain.ChannelDiscord]

	w.enqueue(domain.DispatchTask{ID: "first", Account: "0xabc", CreatedAt: time.Now()})
	w.enqueue(domain.DispatchTask{ID: "second", Account: "0xabc", CreatedAt: time.Now()})
	d.drain(context.Background(), w)

	if w.stats().RateLimited == 0 {
		t.Errorf("RateLimited = 0, want > 0 (burst of 1, two tasks from the same account)")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.retry) != 1 {
		t.Errorf("retry list = %d entries, want 1 deferred task", len(w.retry))
	}
}
