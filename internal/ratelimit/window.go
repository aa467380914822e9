package ratelimit

import (
	"sync"
	"time"
)

// Strategy decides whether an event may proceed right now. All three
// strategies in this package (token-bucket via Limiter, fixed-window,
// sliding-window) satisfy it so callers can swap strategies per channel
// without changing call sites.
type Strategy interface {
	Allow() bool
}

// FixedWindow allows up to limit events per fixed-size window. A new window
// starts at the first request made once `width` has elapsed since the
// current window began, so bursts can cluster at window edges.
type FixedWindow struct {
	mu          sync.Mutex
	limit       int
	width       time.Duration
	windowStart time.Time
	count       int
	now         func() time.Time
}

// NewFixedWindow returns a FixedWindow allowing limit events per width.
func NewFixedWindow(limit int, width time.Duration) *FixedWindow {
	return &FixedWindow{
		limit:       limit,
		width:       width,
		windowStart: time.Now(),
		now:         time.Now,
	}
}

// Allow reports whether an event may happen now, advancing the window if
// its width has elapsed.
func (w *FixedWindow) Allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if now.Sub(w.windowStart) >= w.width {
		w.windowStart = now
		w.count = 0
	}
	if w.count >= w.limit {
		return false
	}
	w.count++
	return true
}

// SlidingWindow allows up to limit events within any trailing window of
// width `width`, weighting the previous window's count by how much of it
// still overlaps the current instant. This smooths the edge-burst behavior
// FixedWindow allows.
type SlidingWindow struct {
	mu           sync.Mutex
	limit        int
	width        time.Duration
	currStart    time.Time
	currCount    int
	prevCount    int
	now          func() time.Time
}

// NewSlidingWindow returns a SlidingWindow allowing limit events per width.
func NewSlidingWindow(limit int, width time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:     limit,
		width:     width,
		currStart: time.Now(),
		now:       time.Now,
	}
}

// Allow reports whether an event may happen now under the weighted count
// of the current and previous windows.
func (w *SlidingWindow) Allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	elapsed := now.Sub(w.currStart)
	if elapsed >= w.width {
		windowsElapsed := int64(elapsed / w.width)
		if windowsElapsed == 1 {
			w.prevCount = w.currCount
		} else {
			w.prevCount = 0
		}
		w.currCount = 0
		w.currStart = w.currStart.Add(time.Duration(windowsElapsed) * w.width)
		elapsed = now.Sub(w.currStart)
	}

	weight := 1 - float64(elapsed)/float64(w.width)
	if weight < 0 {
		weight = 0
	}
	weighted := float64(w.prevCount)*weight + float64(w.currCount)
	if weighted >= float64(w.limit) {
		return false
	}
	w.currCount++
	return true
}

// PartitionedLimiter fans a single logical rate limit out across keys, each
// key (e.g. "channel:account") getting its own independent Strategy
// instance built lazily on first use via factory.
type PartitionedLimiter struct {
	mu        sync.Mutex
	factory   func() Strategy
	instances map[string]Strategy
}

// NewPartitionedLimiter returns a PartitionedLimiter whose per-key
// strategies are created by factory on first observation of that key.
func NewPartitionedLimiter(factory func() Strategy) *PartitionedLimiter {
	return &PartitionedLimiter{
		factory:   factory,
		instances: make(map[string]Strategy),
	}
}

// Allow reports whether an event keyed by key may happen now.
func (p *PartitionedLimiter) Allow(key string) bool {
	p.mu.Lock()
	s, ok := p.instances[key]
	if !ok {
		s = p.factory()
		p.instances[key] = s
	}
	p.mu.Unlock()
	return s.Allow()
}

// Key builds the partition key used throughout the dispatcher: the full
// channel name and account address, not a truncated prefix.
func Key(channel, account string) string {
	return channel + ":" + account
}
