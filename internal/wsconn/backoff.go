package wsconn

import (
	"math/rand/v2"
	"time"
)

// Backoff computes reconnect delays: min(Base*2^n, Max) plus a jitter drawn
// uniformly from [0, Jitter).
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter time.Duration

	// rand returns a value in [0, n). Nil uses math/rand/v2.
	rand func(n int64) int64
}

// Envelope returns the delay for attempt n without jitter.
func (b Backoff) Envelope(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	delay := b.Base
	for i := 0; i < n && delay < b.Max; i++ {
		delay *= 2
	}
	if delay > b.Max {
		delay = b.Max
	}
	return delay
}

// Delay returns the delay to wait before reconnect attempt n.
func (b Backoff) Delay(n int) time.Duration {
	delay := b.Envelope(n)
	if b.Jitter <= 0 {
		return delay
	}
	rnd := b.rand
	if rnd == nil {
		rnd = rand.Int64N
	}
	return delay + time.Duration(rnd(int64(b.Jitter)))
}
