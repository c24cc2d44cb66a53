package console

import (
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/rconbridge/internal/testutil/testlog"
)

func TestRetryPolicyGrowsAndCaps(t *testing.T) {
	testlog.Start(t)
	p := RetryPolicy{Delay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: 300 * time.Millisecond}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for i, w := range want {
		if got := p.Wait(i+1, nil); got != w {
			t.Fatalf("attempt %d: got %v want %v", i+1, got, w)
		}
	}
}

func TestRetryPolicyDefaultIsFixed(t *testing.T) {
	testlog.Start(t)
	p := DefaultConfig().Retry
	for attempt := 1; attempt <= 4; attempt++ {
		if got := p.Wait(attempt, nil); got != 5*time.Second {
			t.Fatalf("attempt %d: got %v", attempt, got)
		}
	}
}

func TestRetryPolicyMultiplierBelowOneHolds(t *testing.T) {
	testlog.Start(t)
	p := RetryPolicy{Delay: time.Second, Multiplier: 0.5}
	if got := p.Wait(3, nil); got != time.Second {
		t.Fatalf("delay must not shrink, got %v", got)
	}
	if got := (RetryPolicy{}).Wait(2, nil); got != 0 {
		t.Fatalf("zero policy must not wait, got %v", got)
	}
}

func TestRetryPolicyJitterBounds(t *testing.T) {
	testlog.Start(t)
	p := RetryPolicy{Delay: time.Second, Multiplier: 1, Jitter: 0.25}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		got := p.Wait(2, rng)
		if got < 750*time.Millisecond || got > 1250*time.Millisecond {
			t.Fatalf("jittered delay out of range: %v", got)
		}
	}
}
