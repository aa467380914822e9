package ratelimit

import (
	"testing"
	"time"
)

func TestFixedWindow_AllowsUpToLimitThenBlocks(t *testing.T) {
	w := NewFixedWindow(3, time.Minute)
	now := time.Now()
	w.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !w.Allow() {
			t.Fatalf("Allow() call %d = false, want true within limit", i)
		}
	}
	if w.Allow() {
		t.Errorf("Allow() = true, want false once limit is reached")
	}
}

func TestFixedWindow_ResetsOnWindowBoundary(t *testing.T) {
	w := NewFixedWindow(1, time.Minute)
	now := time.Now()
	w.now = func() time.Time { return now }

	if !w.Allow() {
		t.Fatalf("first Allow() = false, want true")
	}
	if w.Allow() {
		t.Fatalf("second Allow() within the same window = true, want false")
	}

	now = now.Add(time.Minute)
	if !w.Allow() {
		t.Errorf("Allow() after window elapsed = false, want true")
	}
}

func TestSlidingWindow_WeightsPreviousWindowByOverlap(t *testing.T) {
	w := NewSlidingWindow(10, time.Minute)
	now := time.Now()
	w.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		if !w.Allow() {
			t.Fatalf("Allow() call %d = false, want true filling the first window", i)
		}
	}

	// Halfway into the next window, the previous window's 10 events still
	// weigh in at ~50%, so 5 more should be allowed before hitting the limit.
	now = now.Add(90 * time.Second)
	allowed := 0
	for i := 0; i < 10; i++ {
		if w.Allow() {
			allowed++
		}
	}
	if allowed < 4 || allowed > 6 {
		t.Errorf("allowed = %d in the half-overlapping window, want ~5", allowed)
	}
}

func TestSlidingWindow_FullyIndependentAfterTwoWindows(t *testing.T) {
	w := NewSlidingWindow(2, time.Minute)
	now := time.Now()
	w.now = func() time.Time { return now }

	w.Allow()
	w.Allow()

	now = now.Add(2 * time.Minute)
	if !w.Allow() {
		t.Errorf("Allow() after 2 full windows elapsed = false, want true (previous count should not carry over)")
	}
}

func TestPartitionedLimiter_IsolatesKeys(t *testing.T) {
	calls := 0
	p := NewPartitionedLimiter(func() Strategy {
		calls++
		return NewFixedWindow(1, time.Minute)
	})

	if !p.Allow("a") {
		t.Fatalf("Allow(a) first call = false, want true")
	}
	if p.Allow("a") {
		t.Errorf("Allow(a) second call = true, want false (limit 1)")
	}
	if !p.Allow("b") {
		t.Errorf("Allow(b) = false, want true (independent key)")
	}
	if calls != 2 {
		t.Errorf("factory invoked %d times, want 2 (one per distinct key)", calls)
	}
}

func TestKey_CombinesChannelAndAccount(t *testing.T) {
	if got, want := Key("discord", "0xabc"), "discord:0xabc"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}
