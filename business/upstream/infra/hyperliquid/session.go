// Package hyperliquid implements the upstream Session against the
// Hyperliquid real-time feed, grounded on the teacher's
// business/pricing/infra/binance wsconn-wrapping client.
package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hlwatch/tracker/business/upstream/app"
	"github.com/hlwatch/tracker/business/upstream/domain"
	"github.com/hlwatch/tracker/internal/apperror"
	"github.com/hlwatch/tracker/internal/logger"
	"github.com/hlwatch/tracker/internal/wsconn"
)

const (
	tracerName = "hyperliquid"
	meterName  = "hyperliquid"

	subscribePacing  = 300 * time.Millisecond
	probeTimeout     = 10 * time.Second
	maxProbeFailures = 2
)

var subscriptionKinds = []string{"fills", "user-events", "order-updates"}

// Config configures the Hyperliquid session.
type Config struct {
	URL string
}

type sessionMetrics struct {
	connectionState metric.Int64Gauge
	framesReceived  metric.Int64Counter
	framesDropped   metric.Int64Counter
	reconnects      metric.Int64Counter
	pingsTotal      metric.Int64Counter
	pingsFailed     metric.Int64Counter
}

// Session implements app.Session against the Hyperliquid feed.
type Session struct {
	cfg    Config
	logger logger.LoggerInterface
	tracer trace.Tracer
	metrics *sessionMetrics

	mu                  sync.Mutex
	consecutiveFailures int
	reconnectCount      int
	totalFrames         uint64
	failedParses        uint64
	connected           bool
	ready               bool
	lastFrameAt         time.Time

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

var _ app.Session = (*Session)(nil)

// New builds a Session against cfg.
func New(cfg Config, log logger.LoggerInterface) (*Session, error) {
	s := &Session{
		cfg:        cfg,
		logger:     log,
		tracer:     otel.Tracer(tracerName),
		shutdownCh: make(chan struct{}),
	}
	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return s, nil
}

func (s *Session) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error
	m := &sessionMetrics{}

	if m.connectionState, err = meter.Int64Gauge("upstream_connection_state",
		metric.WithDescription("Upstream session connection state (0=disconnected, 1=connected)")); err != nil {
		return err
	}
	if m.framesReceived, err = meter.Int64Counter("upstream_frames_received_total",
		metric.WithDescription("Total raw frames received from upstream")); err != nil {
		return err
	}
	if m.framesDropped, err = meter.Int64Counter("upstream_frames_dropped_total",
		metric.WithDescription("Total raw frames dropped because the sink rejected them")); err != nil {
		return err
	}
	if m.reconnects, err = meter.Int64Counter("upstream_reconnects_total",
		metric.WithDescription("Total upstream reconnect attempts")); err != nil {
		return err
	}
	if m.pingsTotal, err = meter.Int64Counter("upstream_pings_total",
		metric.WithDescription("Total upstream liveness pings sent")); err != nil {
		return err
	}
	if m.pingsFailed, err = meter.Int64Counter("upstream_pings_failed_total",
		metric.WithDescription("Total upstream liveness ping failures")); err != nil {
		return err
	}
	s.metrics = m
	return nil
}

// Run blocks until ctx is cancelled or Shutdown is called, repeatedly
// (re)connecting per the session algorithm.
func (s *Session) Run(ctx context.Context, watched domain.WatchedSet, sink app.FrameSink) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.shutdownCh:
			return nil
		default:
		}

		delivered, err := s.runOnce(ctx, watched, sink)
		if err != nil {
			s.logger.Warn(ctx, "upstream session ended", "error", err)
		}

		s.mu.Lock()
		if delivered {
			s.consecutiveFailures = 0
		} else {
			s.consecutiveFailures++
		}
		delay := reconnectDelay(s.consecutiveFailures)
		s.reconnectCount++
		s.mu.Unlock()

		s.metrics.reconnects.Add(ctx, 1)

		select {
		case <-ctx.Done():
			return nil
		case <-s.shutdownCh:
			return nil
		case <-time.After(delay):
		}
	}
}

// reconnectDelay implements the piecewise reconnect-delay formula: 2s for
// <=3 consecutive failures, 5s for <=10, otherwise min(30, failures)s.
func reconnectDelay(consecutiveFailures int) time.Duration {
	switch {
	case consecutiveFailures <= 3:
		return 2 * time.Second
	case consecutiveFailures <= 10:
		return 5 * time.Second
	default:
		d := consecutiveFailures
		if d > 30 {
			d = 30
		}
		return time.Duration(d) * time.Second
	}
}

// pingInterval implements min(30, 5+2*consecutiveFailures) seconds.
func pingInterval(consecutiveFailures int) time.Duration {
	d := 5 + 2*consecutiveFailures
	if d > 30 {
		d = 30
	}
	return time.Duration(d) * time.Second
}

// runOnce connects, subscribes, and forwards frames until the connection
// closes (by transport error or health-probe failure) or ctx/shutdown
// fires. It returns whether any frame was delivered during this attempt.
func (s *Session) runOnce(ctx context.Context, watched domain.WatchedSet, sink app.FrameSink) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "hyperliquid.session",
		trace.WithAttributes(attribute.String("url", s.cfg.URL)))
	defer span.End()

	wsCfg := wsconn.DefaultConfig(s.cfg.URL, "hyperliquid")
	// The session drives its own outer reconnect loop and its own
	// two-strikes health probe, so wsconn's built-in ping is disabled
	// here, and a dropped connection ends this attempt (see lostCh below)
	// so wsconn's own reconnect never redials on the session's behalf.
	wsCfg.PingInterval = 0
	wsCfg.MaxReconnects = 1

	conn, err := wsconn.New(wsCfg)
	if err != nil {
		return false, apperror.New(apperror.CodeUpstreamConnectionFailed, apperror.WithCause(err))
	}

	delivered := false
	var deliveredMu sync.Mutex

	readyOnce := sync.Once{}
	readyCh := make(chan struct{})

	conn.OnMessage(func(msgCtx context.Context, data []byte) {
		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.mu.Lock()
			s.failedParses++
			s.mu.Unlock()
			s.logger.Debug(msgCtx, "failed to parse upstream frame", "error", err)
			return
		}

		kind := domain.KindFromChannel(frame.Channel)
		if kind == domain.KindSubscriptionAck {
			readyOnce.Do(func() { close(readyCh) })
			return
		}

		raw := domain.RawFrame{
			Kind:       kind,
			Channel:    frame.Channel,
			Data:       frame.Data,
			ReceivedAt: time.Now(),
		}

		s.mu.Lock()
		s.totalFrames++
		s.lastFrameAt = raw.ReceivedAt
		s.mu.Unlock()
		s.metrics.framesReceived.Add(msgCtx, 1)

		deliveredMu.Lock()
		delivered = true
		deliveredMu.Unlock()

		if !sink.Accept(raw) {
			s.metrics.framesDropped.Add(msgCtx, 1)
		}
	})

	// wsconn reports a dropped connection as StateReconnecting.
	lostCh := make(chan struct{})
	lostOnce := sync.Once{}
	conn.OnStateChange(func(state wsconn.State, _ error) {
		if state == wsconn.StateReconnecting {
			lostOnce.Do(func() { close(lostCh) })
		}
	})

	if err := conn.Connect(ctx); err != nil {
		return false, apperror.New(apperror.CodeUpstreamConnectionFailed, apperror.WithCause(err))
	}
	defer conn.Close()

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	s.metrics.connectionState.Record(ctx, 1)
	defer func() {
		s.mu.Lock()
		s.connected = false
		s.ready = false
		s.mu.Unlock()
		s.metrics.connectionState.Record(ctx, 0)
	}()

	if err := s.subscribeAll(ctx, conn, watched); err != nil {
		return delivered, err
	}

	select {
	case <-readyCh:
		s.mu.Lock()
		s.ready = true
		s.mu.Unlock()
	case <-time.After(5 * time.Second):
		s.logger.Warn(ctx, "no subscription acknowledgement received within grace period")
	case <-ctx.Done():
		return delivered, nil
	}

	probeCtx, stopProbe := context.WithCancel(ctx)
	defer stopProbe()
	closedCh := make(chan struct{})
	go func() {
		defer close(closedCh)
		s.healthProbeLoop(probeCtx, conn)
	}()

	select {
	case <-ctx.Done():
	case <-s.shutdownCh:
	case <-closedCh:
	case <-lostCh:
	}

	deliveredMu.Lock()
	defer deliveredMu.Unlock()
	return delivered, nil
}

// subscribeAll sends one subscribe request per (account, kind) pair with
// 300ms inter-request pacing.
func (s *Session) subscribeAll(ctx context.Context, conn *wsconn.Client, watched domain.WatchedSet) error {
	for _, account := range watched.List() {
		for _, kind := range subscriptionKinds {
			wireType, ok := subscriptionKindWire[kind]
			if !ok {
				continue
			}
			req := subscribeRequest{
				Method: "subscribe",
				Subscription: subscription{
					Type: wireType,
					User: account.String(),
				},
			}
			if err := conn.SendJSON(ctx, req); err != nil {
				return apperror.New(apperror.CodeUpstreamSubscribeFailed, apperror.WithCause(err))
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(subscribePacing):
			}
		}
	}
	return nil
}

// healthProbeLoop sends a liveness ping every pingInterval(consecutiveFailures)
// seconds and closes conn after two consecutive failed probes.
func (s *Session) healthProbeLoop(ctx context.Context, conn *wsconn.Client) {
	probeFailures := 0
	id := uint64(0)

	for {
		s.mu.Lock()
		interval := pingInterval(s.consecutiveFailures)
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-s.shutdownCh:
			return
		case <-time.After(interval):
		}

		id++
		pingCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := conn.SendJSON(pingCtx, pingRequest{Method: "ping", ID: id})
		cancel()

		if err != nil {
			probeFailures++
			s.metrics.pingsFailed.Add(ctx, 1)
			s.logger.Warn(ctx, "upstream liveness probe failed", "error", err, "consecutive_probe_failures", probeFailures)
			if probeFailures >= maxProbeFailures {
				s.logger.Warn(ctx, "closing upstream session after repeated probe failures")
				conn.Close()
				return
			}
			continue
		}

		probeFailures = 0
		s.metrics.pingsTotal.Add(ctx, 1)
	}
}

// Shutdown initiates cooperative termination.
func (s *Session) Shutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

// Stats returns the session's current observable state.
func (s *Session) Stats() domain.SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.SessionStats{
		Connected:           s.connected,
		Ready:               s.ready,
		TotalFrames:         s.totalFrames,
		FailedParses:        s.failedParses,
		ReconnectCount:      s.reconnectCount,
		ConsecutiveFailures: s.consecutiveFailures,
		LastFrameAt:         s.lastFrameAt,
	}
}
