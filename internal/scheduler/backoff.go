package scheduler

import (
	"math/rand"
	"sync"
	"time"
)

// backoff computes bounded exponential retry delays with jitter:
// base * 2^attempt capped at max, then spread ±jitter fraction so
// simultaneous failures do not retry in lockstep.
type backoff struct {
	base   time.Duration
	max    time.Duration
	jitter float64

	mu  sync.Mutex
	rng *rand.Rand
}

func newBackoff(base, max time.Duration, jitter float64) *backoff {
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = 5 * time.Minute
	}
	return &backoff{
		base:   base,
		max:    max,
		jitter: jitter,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// delay returns the wait before retry number attempt (0-based: the first
// retry waits ~base).
func (b *backoff) delay(attempt int) time.Duration {
	d := b.base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.max {
			d = b.max
			break
		}
	}
	if d > b.max {
		d = b.max
	}
	if b.jitter > 0 {
		b.mu.Lock()
		f := 1 + b.jitter*(2*b.rng.Float64()-1)
		b.mu.Unlock()
		d = time.Duration(float64(d) * f)
	}
	return d
}
