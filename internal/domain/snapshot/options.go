package snapshot

import "time"

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithTTL bounds snapshot age.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithDepth sets how many entries each snapshot captures. It must be at
// least the top-K size served to readers.
func WithDepth(depth int) Option {
	return func(c *Cache) {
		if depth > 0 {
			c.depth = depth
		}
	}
}

// WithName labels the cache's metrics and logs.
func WithName(name string) Option {
	return func(c *Cache) {
		if name != "" {
			c.name = name
		}
	}
}

// WithClock overrides time.Now for age checks.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}
