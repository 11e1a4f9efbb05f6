// Package breaker halts the poll loop after a burst of closely spaced failures.
package breaker

import (
	"errors"
	"time"
)

var ErrTripped = errors.New("circuit breaker tripped")

// Breaker counts errors that arrive less than window apart. A gap of at
// least window resets the count before the new error is recorded.
type Breaker struct {
	threshold int
	window    time.Duration
	count     int
	last      time.Time
	now       func() time.Time
}

func New(threshold int, window time.Duration) *Breaker {
	return &Breaker{
		threshold: threshold,
		window:    window,
		now:       time.Now,
	}
}

// RecordError registers one failure and reports whether the threshold is reached.
func (b *Breaker) RecordError() bool {
	now := b.now()
	if b.count > 0 && now.Sub(b.last) >= b.window {
		b.count = 0
	}
	b.count++
	b.last = now
	return b.count >= b.threshold
}

func (b *Breaker) Count() int {
	return b.count
}

func (b *Breaker) Tripped() bool {
	return b.count >= b.threshold
}
