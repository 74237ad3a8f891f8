package observer

import (
	"math/rand"
	"time"
)

// Backoff computes reconnect delays: min(base*2^retry, max) plus uniform
// jitter of up to Jitter times the capped delay, so a fleet of observers does
// not reconnect in lockstep after a server restart.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64 // fraction of the delay added as noise, 0 disables

	// rnd returns a value in [0, 1); nil selects the global source.
	rnd func() float64
}

// DefaultBackoff mirrors typical reconnect tuning: 1s doubling to a 60s cap
// with 20% jitter.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:   time.Second,
		Max:    60 * time.Second,
		Jitter: 0.2,
	}
}

// Delay returns the wait before attempt number retry (0-based).
func (b Backoff) Delay(retry int) time.Duration {
	d := b.Base
	for i := 0; i < retry && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}

	if b.Jitter > 0 {
		r := b.rnd
		if r == nil {
			r = rand.Float64
		}
		d += time.Duration(r() * b.Jitter * float64(d))
	}
	return d
}
