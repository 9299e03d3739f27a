package engine

import (
	"math/rand/v2"
	"time"
)

// backoff computes capped exponential reconnect delays with jitter, so a
// flapping backend is not hammered in lockstep by every client.
type backoff struct {
	base   time.Duration
	cap    time.Duration
	jitter float64 // fraction of the delay, 0.2 = ±20%
}

func newBackoff(base, cap time.Duration) backoff {
	if base <= 0 {
		base = time.Second
	}
	if cap <= 0 {
		cap = 30 * time.Second
	}
	return backoff{base: base, cap: cap, jitter: 0.2}
}

// Delay returns the wait before reconnect attempt n (0-based).
func (b backoff) Delay(attempt int) time.Duration {
	d := b.cap
	if attempt < 31 {
		if shifted := b.base << uint(attempt); shifted < b.cap {
			d = shifted
		}
	}
	if b.jitter > 0 {
		span := float64(d) * b.jitter
		d += time.Duration((rand.Float64()*2 - 1) * span)
	}
	if d < 0 {
		d = 0
	}
	return d
}
