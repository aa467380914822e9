package app

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	classifierapp "github.com/hlwatch/tracker/business/classifier/app"
	"github.com/hlwatch/tracker/business/dispatch/domain"
	rulesdomain "github.com/hlwatch/tracker/business/rules/domain"
	"github.com/hlwatch/tracker/internal/circuitbreaker"
	"github.com/hlwatch/tracker/internal/logger"
	"github.com/hlwatch/tracker/internal/ratelimit"
)

const (
	tracerName = "dispatch"
	meterName  = "dispatch"

	retryListCapacity   = 10000
	retrySweepInterval  = 5 * time.Second
	workerPollInterval  = 200 * time.Millisecond
	rateLimitedDeferral = time.Second
)

// RateLimitConfig configures one channel's admission strategy.
type RateLimitConfig struct {
	Strategy        string // "fixed-window" | "sliding-window" | "token-bucket"
	MaxRequests      int
	WindowSeconds    int
	RefillPerSecond  float64
	BurstCapacity    int
}

// ChannelConfig is a single channel's dispatch configuration.
type ChannelConfig struct {
	Enabled   bool
	RateLimit RateLimitConfig
}

// Config configures the Dispatcher.
type Config struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
	Thresholds     classifierapp.Thresholds
	Channels       map[domain.Channel]ChannelConfig
}

type dispatchMetrics struct {
	attempted  metric.Int64Counter
	succeeded  metric.Int64Counter
	failed     metric.Int64Counter
	retried    metric.Int64Counter
	rateLimited metric.Int64Counter
	latencyMs  metric.Float64Histogram
}

// taskHeap orders pending tasks by severity priority, then FIFO, backing
// the per-channel queue with container/heap.
type taskHeap []domain.DispatchTask

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].CreatedAt.Before(h[j].CreatedAt)
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(domain.DispatchTask)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

type channelWorker struct {
	channel domain.Channel
	sender  ChannelSender
	limiter *ratelimit.PartitionedLimiter
	breaker *circuitbreaker.CircuitBreaker[struct{}]
	wakeCh  chan struct{}

	mu      sync.Mutex
	pending taskHeap
	retry   []domain.DispatchTask

	attempted   atomic.Uint64
	succeeded   atomic.Uint64
	failed      atomic.Uint64
	retried     atomic.Uint64
	rateLimited atomic.Uint64
	latencySum  atomic.Int64
}

func (w *channelWorker) enqueue(task domain.DispatchTask) {
	w.mu.Lock()
	heap.Push(&w.pending, task)
	w.mu.Unlock()

	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
}

func (w *channelWorker) addRetry(task domain.DispatchTask) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.retry) >= retryListCapacity {
		w.retry = w.retry[1:]
	}
	w.retry = append(w.retry, task)
}

func (w *channelWorker) popPending() (domain.DispatchTask, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending.Len() == 0 {
		return domain.DispatchTask{}, false
	}
	return heap.Pop(&w.pending).(domain.DispatchTask), true
}

func (w *channelWorker) stats() domain.ChannelStats {
	return domain.ChannelStats{
		Attempted:      w.attempted.Load(),
		Succeeded:      w.succeeded.Load(),
		Failed:         w.failed.Load(),
		Retried:        w.retried.Load(),
		RateLimited:    w.rateLimited.Load(),
		TotalLatencyMs: w.latencySum.Load(),
	}
}

// Dispatcher implements rules/app.AlertSink: it receives each triggered
// alert, fans it out to every enabled channel as a DispatchTask, and
// delivers under per-channel rate limiting, a circuit breaker, and bounded
// retry with exponential backoff.
type Dispatcher struct {
	cfg     Config
	logger  logger.LoggerInterface
	tracer  trace.Tracer
	metrics *dispatchMetrics

	workers map[domain.Channel]*channelWorker
	wg      sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher with one worker per sender whose
// channel is enabled in cfg.
func NewDispatcher(cfg Config, senders map[domain.Channel]ChannelSender, log logger.LoggerInterface) (*Dispatcher, error) {
	d := &Dispatcher{
		cfg:     cfg,
		logger:  log,
		tracer:  otel.Tracer(tracerName),
		workers: make(map[domain.Channel]*channelWorker),
	}
	if err := d.initMetrics(); err != nil {
		return nil, err
	}

	for channel, sender := range senders {
		chCfg := cfg.Channels[channel]
		if !chCfg.Enabled {
			continue
		}
		w := &channelWorker{
			channel: channel,
			sender:  sender,
			limiter: buildLimiter(chCfg.RateLimit),
			breaker: circuitbreaker.New[struct{}](circuitbreaker.DefaultConfig(string(channel))),
			wakeCh:  make(chan struct{}, 1),
		}
		heap.Init(&w.pending)
		d.workers[channel] = w
	}

	return d, nil
}

func buildLimiter(cfg RateLimitConfig) *ratelimit.PartitionedLimiter {
	switch cfg.Strategy {
	case "fixed-window":
		return ratelimit.NewPartitionedLimiter(func() ratelimit.Strategy {
			return ratelimit.NewFixedWindow(cfg.MaxRequests, time.Duration(cfg.WindowSeconds)*time.Second)
		})
	case "token-bucket":
		return ratelimit.NewPartitionedLimiter(func() ratelimit.Strategy {
			return ratelimit.NewWithBurst(cfg.RefillPerSecond, cfg.BurstCapacity)
		})
	default:
		return ratelimit.NewPartitionedLimiter(func() ratelimit.Strategy {
			return ratelimit.NewSlidingWindow(cfg.MaxRequests, time.Duration(cfg.WindowSeconds)*time.Second)
		})
	}
}

func (d *Dispatcher) initMetrics() error {
	meter := otel.Meter(meterName)
	m := &dispatchMetrics{}
	var err error

	if m.attempted, err = meter.Int64Counter("dispatch.attempted"); err != nil {
		return err
	}
	if m.succeeded, err = meter.Int64Counter("dispatch.succeeded"); err != nil {
		return err
	}
	if m.failed, err = meter.Int64Counter("dispatch.failed"); err != nil {
		return err
	}
	if m.retried, err = meter.Int64Counter("dispatch.retried"); err != nil {
		return err
	}
	if m.rateLimited, err = meter.Int64Counter("dispatch.rate_limited"); err != nil {
		return err
	}
	if m.latencyMs, err = meter.Float64Histogram("dispatch.latency_ms"); err != nil {
		return err
	}
	d.metrics = m
	return nil
}

// Accept implements rules/app.AlertSink. It formats the alert once per
// channel and enqueues one dispatch task per enabled channel.
func (d *Dispatcher) Accept(ctx context.Context, alert rulesdomain.TriggeredAlert) {
	for channel, w := range d.workers {
		payload, err := d.format(channel, alert)
		if err != nil {
			d.logger.Error(ctx, "failed to format alert", "channel", channel, "error", err)
			continue
		}

		task := domain.DispatchTask{
			ID:            uuid.NewString(),
			Channel:       channel,
			Account:       alert.Event.Account.String(),
			Alert:         alert,
			Payload:       payload,
			CreatedAt:     time.Now(),
			NextAttemptAt: time.Now(),
			Priority:      alert.Rule.Severity.Priority(),
		}
		w.enqueue(task)
	}
}

func (d *Dispatcher) format(channel domain.Channel, alert rulesdomain.TriggeredAlert) ([]byte, error) {
	switch channel {
	case domain.ChannelDiscord, domain.ChannelTelegram:
		line, err := FormatLine(alert, d.cfg.Thresholds)
		return []byte(line), err
	case domain.ChannelEmail:
		content, err := FormatEmail(alert, d.cfg.Thresholds)
		if err != nil {
			return nil, err
		}
		return marshalEmail(content)
	default:
		return FormatWebhook(alert)
	}
}

// Run starts one goroutine per enabled channel plus the shared retry
// sweeper, and returns immediately; the goroutines run until ctx is
// cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for _, w := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, w)
	}
	d.wg.Add(1)
	go d.runRetrySweeper(ctx)
}

// Shutdown blocks until every worker and the retry sweeper have returned.
// Callers cancel the context passed to Run first.
func (d *Dispatcher) Shutdown() {
	d.wg.Wait()
}

func (d *Dispatcher) runWorker(ctx context.Context, w *channelWorker) {
	defer d.wg.Done()
	ticker := time.NewTicker(workerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wakeCh:
		case <-ticker.C:
		}
		d.drain(ctx, w)
	}
}

// drain processes every ready task on w's pending heap. A channel only
// ever has one send in flight at a time since this loop is the only
// caller of send for this worker.
func (d *Dispatcher) drain(ctx context.Context, w *channelWorker) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, ok := w.popPending()
		if !ok {
			return
		}

		key := ratelimit.Key(string(w.channel), task.Account)
		if !w.limiter.Allow(key) {
			task.NextAttemptAt = time.Now().Add(rateLimitedDeferral)
			w.addRetry(task)
			w.rateLimited.Add(1)
			d.metrics.rateLimited.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", string(w.channel))))
			continue
		}

		d.send(ctx, w, task)
	}
}

func (d *Dispatcher) send(ctx context.Context, w *channelWorker, task domain.DispatchTask) {
	ctx, span := d.tracer.Start(ctx, "dispatch.send")
	defer span.End()

	attrs := metric.WithAttributes(attribute.String("channel", string(w.channel)))

	w.attempted.Add(1)
	d.metrics.attempted.Add(ctx, 1, attrs)

	start := time.Now()
	_, err := w.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, w.sender.Send(ctx, task)
	})
	latency := time.Since(start)

	if err == nil {
		w.succeeded.Add(1)
		w.latencySum.Add(latency.Milliseconds())
		d.metrics.succeeded.Add(ctx, 1, attrs)
		d.metrics.latencyMs.Record(ctx, float64(latency.Milliseconds()), attrs)
		return
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		task.NextAttemptAt = time.Now().Add(d.cfg.RetryBaseDelay)
		w.addRetry(task)
		w.failed.Add(1)
		d.metrics.failed.Add(ctx, 1, attrs)
		d.logger.Warn(ctx, "channel circuit open, deferring", "channel", w.channel, "task_id", task.ID)
		return
	}

	if isTerminal(err) || task.AttemptCount+1 > d.cfg.MaxRetries {
		w.failed.Add(1)
		d.metrics.failed.Add(ctx, 1, attrs)
		d.logger.Error(ctx, "dispatch terminally failed", "channel", w.channel, "task_id", task.ID, "error", err, "attempts", task.AttemptCount)
		return
	}

	task.AttemptCount++
	backoff := d.cfg.RetryBaseDelay * time.Duration(int64(1)<<uint(task.AttemptCount-1))
	task.NextAttemptAt = time.Now().Add(backoff)
	w.addRetry(task)
	w.retried.Add(1)
	d.metrics.retried.Add(ctx, 1, attrs)
	d.logger.Warn(ctx, "dispatch transient failure, retrying", "channel", w.channel, "task_id", task.ID, "error", err, "attempts", task.AttemptCount, "next_attempt_at", task.NextAttemptAt)
}

// runRetrySweeper wakes every 5s, moves any task whose NextAttemptAt has
// elapsed back onto its channel's pending heap, and leaves the rest. This
// single worker owns both the dispatcher's retry list and the
// rate-limiter's backpressure queue: both are just tasks with a
// NextAttemptAt, admission-tested against the rate limiter when popped.
func (d *Dispatcher) runRetrySweeper(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(retrySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweep()
		}
	}
}

func (d *Dispatcher) sweep() {
	now := time.Now()
	for _, w := range d.workers {
		w.mu.Lock()
		var ready, waiting []domain.DispatchTask
		for _, t := range w.retry {
			if !t.NextAttemptAt.After(now) {
				ready = append(ready, t)
			} else {
				waiting = append(waiting, t)
			}
		}
		w.retry = waiting
		for _, t := range ready {
			heap.Push(&w.pending, t)
		}
		w.mu.Unlock()

		if len(ready) > 0 {
			select {
			case w.wakeCh <- struct{}{}:
			default:
			}
		}
	}
}

// Stats returns the dispatcher's observable state, for the status CLI
// command and the /status health endpoint.
func (d *Dispatcher) Stats() domain.Stats {
	per := make(map[domain.Channel]domain.ChannelStats, len(d.workers))
	for channel, w := range d.workers {
		per[channel] = w.stats()
	}
	return domain.Stats{PerChannel: per}
}
