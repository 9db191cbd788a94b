package venue

import (
	"sync"
	"time"
)

// Backoff produces the reconnect delay schedule: initial, initial*mult,
// initial*mult^2, ... capped at max. Reset after a healthy stream returns
// the schedule to the start.
type Backoff struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64

	mu      sync.Mutex
	current time.Duration
	attempt int
}

// NewBackoff creates a backoff schedule. A multiplier below 1 is coerced
// to 2.
func NewBackoff(initial, max time.Duration, multiplier float64) *Backoff {
	if initial <= 0 {
		initial = 5 * time.Second
	}

	if max < initial {
		max = initial
	}

	if multiplier < 1 {
		multiplier = 2
	}

	return &Backoff{
		initial:    initial,
		max:        max,
		multiplier: multiplier,
		current:    initial,
	}
}

// Next returns the delay for the upcoming attempt and advances the
// schedule.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.current
	b.attempt++

	b.current = time.Duration(float64(b.current) * b.multiplier)
	if b.current > b.max {
		b.current = b.max
	}

	return delay
}

// Reset returns the schedule to the initial delay.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = b.initial
	b.attempt = 0
}

// Attempt returns how many delays have been handed out since the last
// reset.
func (b *Backoff) Attempt() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.attempt
}
