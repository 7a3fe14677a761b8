package utils

import (
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("u1") || !rl.Allow("u1") {
		t.Fatal("first two requests must pass")
	}
	if rl.Allow("u1") {
		t.Fatal("third request inside the window must be rejected")
	}
	if !rl.Allow("u2") {
		t.Fatal("keys must be limited independently")
	}
	if got := rl.GetRemaining("u1"); got != 0 {
		t.Errorf("GetRemaining = %d, want 0", got)
	}
	if got := rl.GetResetTime("u1"); !got.Equal(now.Add(time.Minute)) {
		t.Errorf("GetResetTime = %v, want %v", got, now.Add(time.Minute))
	}

	now = now.Add(time.Minute + time.Second)
	if !rl.Allow("u1") {
		t.Fatal("request after the window must pass")
	}
	if got := rl.GetRemaining("u1"); got != 1 {
		t.Errorf("GetRemaining after window = %d, want 1", got)
	}

	rl.Reset("u1")
	if got := rl.GetRemaining("u1"); got != 2 {
		t.Errorf("GetRemaining after reset = %d, want 2", got)
	}
}
