package ratelimit

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/podium/pkg/metrics"
)

// InstanceLimiter is a token bucket bounding accepted commands per second
// across every participant on this process. A nil *InstanceLimiter allows
// everything.
type InstanceLimiter struct {
	limiter *rate.Limiter
}

// NewInstance returns a bucket refilled at perSec with the given burst, or nil
// when perSec is not positive.
func NewInstance(perSec float64, burst int) *InstanceLimiter {
	if perSec <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &InstanceLimiter{limiter: rate.NewLimiter(rate.Limit(perSec), burst)}
}

// Allow takes one token at now.
func (l *InstanceLimiter) Allow(now time.Time) bool {
	if l == nil {
		return true
	}
	if l.limiter.AllowN(now, 1) {
		return true
	}
	metrics.RecordRateLimitRefusal("instance")
	return false
}

// Reserve takes one token at now and returns release, which puts the token
// back when the command is refused further on. ok is false when the bucket is
// empty.
func (l *InstanceLimiter) Reserve(now time.Time) (release func(), ok bool) {
	if l == nil {
		return func() {}, true
	}
	r := l.limiter.ReserveN(now, 1)
	if !r.OK() {
		metrics.RecordRateLimitRefusal("instance")
		return nil, false
	}
	if r.DelayFrom(now) > 0 {
		r.CancelAt(now)
		metrics.RecordRateLimitRefusal("instance")
		return nil, false
	}
	return func() { r.CancelAt(now) }, true
}
