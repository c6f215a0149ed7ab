package transport

import (
	"math"
	"math/rand"
	"time"
)

// Backoff describes the wait between redial attempts.
type Backoff struct {
	// Min is the wait after the first failed attempt. Optional; default 100ms.
	Min time.Duration
	// Max caps every wait. Optional; default 5s.
	Max time.Duration
	// Factor multiplies the wait per attempt. Optional; default 2.
	Factor float64
	// Jitter spreads each wait by +/- Jitter of itself, capped at 1. Optional; default none.
	Jitter float64
	// MaxAttempts stops Redial after that many failed dials. Optional; default 0 (until ctx is done).
	MaxAttempts int
	// Rand returns values in [0, 1) for jitter. Optional; default math/rand.
	Rand func() float64
}

// DefaultBackoff provides conservative redial defaults.
func DefaultBackoff() Backoff {
	return Backoff{
		Min:    250 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// Exhausted reports whether attempt failed dials use up the budget.
func (b Backoff) Exhausted(attempt int) bool {
	return b.MaxAttempts > 0 && attempt >= b.MaxAttempts
}

// Next returns the wait after the given failed attempt (1-based).
func (b Backoff) Next(attempt int) time.Duration {
	floor, ceil := b.bounds()
	if attempt < 1 {
		attempt = 1
	}

	factor := b.Factor
	if factor <= 1 {
		factor = 2.0
	}

	grown := float64(floor) * math.Pow(factor, float64(attempt-1))
	wait := ceil
	if grown < float64(ceil) {
		wait = time.Duration(grown)
	}
	return b.spread(wait)
}

func (b Backoff) bounds() (time.Duration, time.Duration) {
	floor, ceil := b.Min, b.Max
	if floor <= 0 {
		floor = 100 * time.Millisecond
	}
	if ceil <= 0 {
		ceil = 5 * time.Second
	}
	if floor > ceil {
		floor = ceil
	}
	return floor, ceil
}

func (b Backoff) spread(wait time.Duration) time.Duration {
	jitter := math.Min(b.Jitter, 1)
	if jitter <= 0 {
		return wait
	}
	random := b.Rand
	if random == nil {
		random = rand.Float64
	}
	delta := float64(wait) * jitter
	return wait + time.Duration((random()*2-1)*delta)
}
