package ratelimit

import (
	"testing"
	"time"
)

func newTestLimiter(userCfg, toolCfg Config) *Limiter {
	return &Limiter{
		buckets:    make(map[string]*bucket),
		userConfig: userCfg,
		toolConfig: toolCfg,
	}
}

func TestLimiter_AllowsWithinBurst(t *testing.T) {
	l := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 3}, DefaultToolConfig)

	for i := 0; i < 3; i++ {
		r := l.Check("u1", "")
		if !r.Allowed {
			t.Fatalf("request %d: expected allowed, got denied", i)
		}
	}
}

func TestLimiter_DeniesBeyondBurst(t *testing.T) {
	l := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 2}, DefaultToolConfig)

	l.Check("u1", "")
	l.Check("u1", "")
	r := l.Check("u1", "")
	if r.Allowed {
		t.Fatal("expected denial after burst exhausted")
	}
	if r.RetryAfter <= 0 {
		t.Fatalf("RetryAfter = %v, want > 0", r.RetryAfter)
	}
}

func TestLimiter_UserDenialShortCircuitsToolKey(t *testing.T) {
	l := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 1}, Config{RequestsPerMinute: 6000, BurstSize: 100})

	l.Check("u1", "calc_add")
	r := l.Check("u1", "calc_add")
	if r.Allowed {
		t.Fatal("expected user-level denial")
	}

	// The denied call must not have touched u1's tool bucket: only the
	// first, allowed call took a token from its burst of 100.
	if tb := l.buckets[toolKey("u1", "calc_add")]; tb.tokens < 99 {
		t.Fatalf("u1 tool bucket tokens = %v, want 99 (denied call consumed it)", tb.tokens)
	}

	// A separate user has its own user and tool buckets.
	r2 := l.Check("u2", "calc_add")
	if !r2.Allowed {
		t.Fatal("expected u2's independent user bucket to allow")
	}
}

func TestLimiter_ToolKeyAppliesIndependently(t *testing.T) {
	l := newTestLimiter(Config{RequestsPerMinute: 6000, BurstSize: 100}, Config{RequestsPerMinute: 60, BurstSize: 1})

	r1 := l.Check("u1", "calc_add")
	if !r1.Allowed {
		t.Fatal("expected first tool call allowed")
	}
	r2 := l.Check("u1", "calc_add")
	if r2.Allowed {
		t.Fatal("expected second tool call denied by per-tool burst")
	}

	// A different tool name gets its own bucket.
	r3 := l.Check("u1", "calc_sub")
	if !r3.Allowed {
		t.Fatal("expected a different tool name to have an independent bucket")
	}
}

func TestLimiter_RefillOverTime(t *testing.T) {
	l := newTestLimiter(Config{RequestsPerMinute: 600, BurstSize: 1}, DefaultToolConfig)

	l.Check("u1", "")
	r := l.Check("u1", "")
	if r.Allowed {
		t.Fatal("expected denial immediately after exhausting burst")
	}

	time.Sleep(150 * time.Millisecond)
	r2 := l.Check("u1", "")
	if !r2.Allowed {
		t.Fatal("expected a token to have refilled after waiting")
	}
}

func TestLimiter_MaybeSweepReapsIdleBuckets(t *testing.T) {
	l := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 5}, DefaultToolConfig)
	l.Check("stale-user", "")

	l.mu.Lock()
	l.buckets[userKey("stale-user")].lastUpdate = time.Now().Add(-reapIdleThreshold - time.Second)
	l.lastSweep = time.Now().Add(-reapSweepInterval - time.Second)
	l.mu.Unlock()

	l.maybeSweep()

	l.mu.Lock()
	_, ok := l.buckets[userKey("stale-user")]
	l.mu.Unlock()
	if ok {
		t.Fatal("expected stale bucket to be reaped")
	}
}

func TestNew_UsesDefaultConfigs(t *testing.T) {
	l := New()
	r := l.Check("u1", "calc_add")
	if !r.Allowed {
		t.Fatal("expected first call with default generous config to be allowed")
	}
	if r.Limit != DefaultToolConfig.BurstSize {
		t.Errorf("Limit = %d, want %d", r.Limit, DefaultToolConfig.BurstSize)
	}
}
