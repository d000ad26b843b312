package banyantask

import (
	"math/rand/v2"
	"time"
)

// Backoff computes the delay before a retry record becomes claimable.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
	// Jitter is the fraction of the delay that is randomized, 0..1.
	Jitter float64
}

// DefaultBackoff is 1s doubling per attempt, capped at one hour, with 20% jitter.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Max: time.Hour, Jitter: 0.2}
}

// Delay returns the wait after the failed zero-based attempt. It grows as
// Base*2^attempt and never exceeds Max.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	d := b.Base
	for i := 0; i < attempt; i++ {
		if b.Max > 0 && d >= b.Max {
			break
		}
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	if b.Jitter > 0 {
		j := b.Jitter
		if j > 1 {
			j = 1
		}
		// subtract up to j of the delay so the cap still holds
		d -= time.Duration(rand.Float64() * j * float64(d))
	}
	return d
}
