package ratelimit

import "time"

// Option applies a configuration option to the Limiter.
type Option func(*Limiter)

// WithLimit sets the number of commands allowed per window.
func WithLimit(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.limit = n
		}
	}
}

// WithWindow sets the fixed window length.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithBlockDuration sets how long a participant stays refused after exceeding
// the limit. Zero blocks until the current window ends.
func WithBlockDuration(d time.Duration) Option {
	return func(l *Limiter) {
		if d >= 0 {
			l.block = d
		}
	}
}
