package console

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy spaces console dial attempts. The first retry waits Delay and
// each later one multiplies it by Multiplier, capped at MaxDelay. Jitter
// spreads every wait by up to that fraction in either direction.
type RetryPolicy struct {
	Delay      time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	Jitter     float64
}

// Wait returns the pause after failed dial attempt n (1-based).
func (p RetryPolicy) Wait(n int, rng *rand.Rand) time.Duration {
	if p.Delay <= 0 {
		return 0
	}
	if n < 1 {
		n = 1
	}
	d := float64(p.Delay) * math.Pow(math.Max(p.Multiplier, 1), float64(n-1))
	if p.MaxDelay > 0 {
		d = math.Min(d, float64(p.MaxDelay))
	}
	if j := math.Min(p.Jitter, 1); j > 0 && rng != nil {
		d *= 1 + j*(2*rng.Float64()-1)
	}
	return time.Duration(d)
}
