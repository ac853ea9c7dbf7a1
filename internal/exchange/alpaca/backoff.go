package alpaca

import "time"

// Backoff yields reconnect delays that double from initial up to max.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	next    time.Duration
}

// NewBackoff returns the venue reconnect schedule: 2s doubling to 60s.
func NewBackoff() *Backoff {
	return newBackoff(2*time.Second, 60*time.Second)
}

func newBackoff(initial, max time.Duration) *Backoff {
	return &Backoff{initial: initial, max: max, next: initial}
}

// Next returns the delay to wait now and advances the schedule.
func (b *Backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}
	return d
}

// Reset restarts the schedule at the initial delay.
func (b *Backoff) Reset() {
	b.next = b.initial
}
