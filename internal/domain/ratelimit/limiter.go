// Package ratelimit bounds how many commands a participant may submit per
// fixed window, plus an optional instance-wide token bucket.
package ratelimit

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/metrics"
)

// window is the per-participant counter. The mutex makes increment-and-check
// one step; different participants never share a lock.
type window struct {
	mu           sync.Mutex
	start        time.Time
	count        int
	blockedUntil time.Time
	dead         bool // removed by Sweep; callers must look up again
}

// Limiter is a per-participant fixed-window limiter.
type Limiter struct {
	windows *xsync.Map[string, *window]
	limit   int
	window  time.Duration
	block   time.Duration
}

// New constructs a Limiter. Defaults: 10 commands per 60s window, blocked
// until the window ends once exceeded.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		windows: xsync.NewMap[string, *window](),
		limit:   10,
		window:  time.Minute,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow counts one command for participantID at now and reports whether it
// is within the limit. A refused command is not counted.
func (l *Limiter) Allow(participantID string, now time.Time) bool {
	for {
		w, ok := l.windows.Load(participantID)
		if !ok {
			w, _ = l.windows.LoadOrStore(participantID, &window{start: now})
		}

		w.mu.Lock()
		if w.dead {
			w.mu.Unlock()
			continue
		}
		allowed := l.allowLocked(w, now)
		w.mu.Unlock()
		return allowed
	}
}

func (l *Limiter) allowLocked(w *window, now time.Time) bool {
	if now.Before(w.blockedUntil) {
		return false
	}
	if !now.Before(w.start.Add(l.window)) {
		w.start = now
		w.count = 0
	}
	if w.count >= l.limit {
		if l.block > 0 {
			w.blockedUntil = now.Add(l.block)
		} else {
			w.blockedUntil = w.start.Add(l.window)
		}
		return false
	}
	w.count++
	return true
}

// Gate adapts Allow to the ranking store's gate signature. It runs after the
// idempotency check so only guard-accepted commands consume quota.
func (l *Limiter) Gate(_ *model.Participant, cmd model.ScoreDelta, now time.Time) error {
	if l.Allow(cmd.ParticipantID, now) {
		return nil
	}
	metrics.RecordRateLimitRefusal("participant")
	return ErrRateLimited
}

// Sweep drops windows that have expired and are not blocking, returning the
// number removed.
func (l *Limiter) Sweep(now time.Time) int {
	removed := 0
	l.windows.Range(func(id string, w *window) bool {
		w.mu.Lock()
		idle := !now.Before(w.start.Add(l.window)) && !now.Before(w.blockedUntil)
		if idle {
			w.dead = true
			l.windows.Delete(id)
			removed++
		}
		w.mu.Unlock()
		return true
	})
	metrics.UpdateRateLimitWindows(l.windows.Size())
	return removed
}

// Len returns the number of live windows.
func (l *Limiter) Len() int {
	return l.windows.Size()
}
