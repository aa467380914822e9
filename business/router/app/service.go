// Package app implements the router bounded context: it owns the frame
// queue, the dedup table, and hands normalized events to the rules engine.
// This is the single "router+engine" goroutine the concurrency model
// specifies; the engine side lives behind the injected RuleEvaluator.
package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	classifierapp "github.com/hlwatch/tracker/business/classifier/app"
	"github.com/hlwatch/tracker/business/router/domain"
	upstreamdomain "github.com/hlwatch/tracker/business/upstream/domain"
	"github.com/hlwatch/tracker/internal/logger"
)

const (
	tracerName = "router"
	meterName  = "router"

	dedupSweepInterval = 60 * time.Second
	frameQueueCapacity = 4096
)

// Config configures the router's dedup and classification behavior.
type Config struct {
	DedupWindow time.Duration
	Thresholds  classifierapp.Thresholds
}

type routerMetrics struct {
	framesReceived metric.Int64Counter
	framesDropped  metric.Int64Counter
	failedParses   metric.Int64Counter
	deduplicated   metric.Int64Counter
	eventsEmitted  metric.Int64Counter
}

type routerStats struct {
	framesReceived atomic.Uint64
	failedParses   atomic.Uint64
	discarded      atomic.Uint64
	deduplicated   atomic.Uint64
	eventsEmitted  atomic.Uint64
}

// RouterService queues raw frames off the upstream session's goroutine,
// then parses, deduplicates, classifies (for debug logging), and evaluates them
// against rules on its own owning goroutine. It implements the Router
// interface declared in ports.go.
type RouterService struct {
	cfg       Config
	parser    Parser
	evaluator RuleEvaluator
	watched   upstreamdomain.WatchedSet
	logger    logger.LoggerInterface
	tracer    trace.Tracer
	metrics   *routerMetrics

	frameCh chan upstreamdomain.RawFrame

	dedupMu sync.Mutex
	dedup   map[string]time.Time

	stats routerStats
}

var _ Router = (*RouterService)(nil)

// NewRouter constructs a Router. watched is fixed for the process lifetime;
// the watched account set does not change without a restart.
func NewRouter(cfg Config, parser Parser, evaluator RuleEvaluator, watched upstreamdomain.WatchedSet, log logger.LoggerInterface) (*RouterService, error) {
	r := &RouterService{
		cfg:       cfg,
		parser:    parser,
		evaluator: evaluator,
		watched:   watched,
		logger:    log,
		tracer:    otel.Tracer(tracerName),
		dedup:     make(map[string]time.Time),
		frameCh:   make(chan upstreamdomain.RawFrame, frameQueueCapacity),
	}
	if err := r.initMetrics(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RouterService) initMetrics() error {
	meter := otel.Meter(meterName)
	m := &routerMetrics{}
	var err error

	if m.framesReceived, err = meter.Int64Counter("router.frames_received"); err != nil {
		return err
	}
	if m.framesDropped, err = meter.Int64Counter("router.frames_dropped"); err != nil {
		return err
	}
	if m.failedParses, err = meter.Int64Counter("router.failed_parses"); err != nil {
		return err
	}
	if m.deduplicated, err = meter.Int64Counter("router.deduplicated"); err != nil {
		return err
	}
	if m.eventsEmitted, err = meter.Int64Counter("router.events_emitted"); err != nil {
		return err
	}
	r.metrics = m
	return nil
}

// Accept implements upstream/app.FrameSink and this package's Router
// interface. It never blocks the caller: a full queue drops the frame,
// following wsconn.go's non-blocking readLoop send.
func (r *RouterService) Accept(frame upstreamdomain.RawFrame) bool {
	select {
	case r.frameCh <- frame:
		r.stats.framesReceived.Add(1)
		r.metrics.framesReceived.Add(context.Background(), 1)
		return true
	default:
		r.stats.discarded.Add(1)
		r.metrics.framesDropped.Add(context.Background(), 1)
		return false
	}
}

// Run is the router's owning goroutine: it drains the frame queue and
// periodically sweeps the dedup table. It returns when ctx is cancelled.
func (r *RouterService) Run(ctx context.Context) {
	sweep := time.NewTicker(dedupSweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-r.frameCh:
			r.process(ctx, frame)
		case <-sweep.C:
			r.sweepDedup()
		}
	}
}

func (r *RouterService) process(ctx context.Context, frame upstreamdomain.RawFrame) {
	ctx, span := r.tracer.Start(ctx, "router.process")
	defer span.End()

	switch frame.Kind {
	case upstreamdomain.KindError:
		r.logger.Warn(ctx, "upstream reported error frame", "channel", frame.Channel)
		return
	case upstreamdomain.KindSubscriptionAck:
		return
	}
	if !frame.Kind.EventBearing() {
		return
	}

	events, err := r.parser.Parse(frame, r.watched)
	if err != nil {
		r.stats.failedParses.Add(1)
		r.metrics.failedParses.Add(ctx, 1)
		r.logger.Warn(ctx, "failed to parse frame", "error", err, "channel", frame.Channel)
		return
	}

	for _, event := range events {
		if r.isDuplicate(event) {
			r.stats.deduplicated.Add(1)
			r.metrics.deduplicated.Add(ctx, 1)
			continue
		}

		class := classifierapp.Classify(event, r.cfg.Thresholds)
		r.logger.Debug(ctx, "event routed",
			"account", event.Account.String(),
			"kind", string(event.Kind),
			"size_class", string(class.SizeClass),
			"confidence", class.Confidence,
		)

		r.stats.eventsEmitted.Add(1)
		r.metrics.eventsEmitted.Add(ctx, 1)
		r.evaluator.Evaluate(ctx, event)
	}
}

// isDuplicate reports whether event's fingerprint was seen within the
// configured dedup window, refreshing the last-seen timestamp either way.
func (r *RouterService) isDuplicate(event domain.Event) bool {
	fingerprint := event.Fingerprint()
	now := time.Now()

	r.dedupMu.Lock()
	defer r.dedupMu.Unlock()

	last, seen := r.dedup[fingerprint]
	r.dedup[fingerprint] = now
	return seen && now.Sub(last) < r.cfg.DedupWindow
}

// sweepDedup evicts entries older than 60 seconds, bounding the dedup
// table's memory regardless of the configured window.
func (r *RouterService) sweepDedup() {
	cutoff := time.Now().Add(-dedupSweepInterval)

	r.dedupMu.Lock()
	defer r.dedupMu.Unlock()

	for fp, ts := range r.dedup {
		if ts.Before(cutoff) {
			delete(r.dedup, fp)
		}
	}
}

// Stats implements Router.
func (r *RouterService) Stats() domain.RouterStats {
	return domain.RouterStats{
		FramesReceived: r.stats.framesReceived.Load(),
		FailedParses:   r.stats.failedParses.Load(),
		Discarded:      r.stats.discarded.Load(),
		Deduplicated:   r.stats.deduplicated.Load(),
		EventsEmitted:  r.stats.eventsEmitted.Load(),
	}
}
