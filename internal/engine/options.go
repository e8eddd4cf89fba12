package engine

import (
	"time"

	"github.com/okian/podium/internal/adapters/bus"
	"github.com/okian/podium/internal/adapters/ledger"
	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/ratelimit"
	"github.com/okian/podium/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithTopK sets the size of the observed top view. Default 10.
func WithTopK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithSnapshotDepth sets how many entries each snapshot holds. It is raised
// to the top-K size when smaller.
func WithSnapshotDepth(depth int) Option {
	return func(e *Engine) {
		if depth > 0 {
			e.depth = depth
		}
	}
}

// WithSnapshotTTL bounds snapshot age.
func WithSnapshotTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithRateLimit configures the per-participant fixed window.
func WithRateLimit(limit int, window, block time.Duration) Option {
	return func(e *Engine) {
		e.limitOpts = append(e.limitOpts,
			ratelimit.WithLimit(limit),
			ratelimit.WithWindow(window),
			ratelimit.WithBlockDuration(block),
		)
		if window > 0 {
			e.sweepEvery = window
		}
	}
}

// WithInstanceRate caps accepted commands per second for the engine. Zero
// disables it.
func WithInstanceRate(perSec float64, burst int) Option {
	return func(e *Engine) {
		e.bucket = ratelimit.NewInstance(perSec, burst)
	}
}

// WithScoreBounds sets the inclusive score floor and ceiling.
func WithScoreBounds(floor, ceiling int64) Option {
	return func(e *Engine) {
		e.storeOpts = append(e.storeOpts, repository.WithScoreBounds(floor, ceiling))
	}
}

// WithUnderflowPolicy selects clamp or reject.
func WithUnderflowPolicy(p repository.UnderflowPolicy) Option {
	return func(e *Engine) {
		e.storeOpts = append(e.storeOpts, repository.WithUnderflowPolicy(p))
	}
}

// WithTieBreak sets the ordering among equal scores.
func WithTieBreak(p repository.TieBreak) Option {
	return func(e *Engine) {
		e.storeOpts = append(e.storeOpts, repository.WithTieBreak(p))
	}
}

// WithTrackZero decides whether zero-score participants are ranked.
func WithTrackZero(track bool) Option {
	return func(e *Engine) {
		e.storeOpts = append(e.storeOpts, repository.WithTrackZero(track))
	}
}

// WithScoreOnlyChanges also emits events for score changes that keep every
// position.
func WithScoreOnlyChanges(enabled bool) Option {
	return func(e *Engine) {
		e.scoreOnly = enabled
	}
}

// WithPublisher sets where change events go. The caller owns p.
func WithPublisher(p bus.Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// WithLedger records every commit in l and enables Replay. The caller owns l.
func WithLedger(l ledger.Ledger) Option {
	return func(e *Engine) {
		e.ledger = l
	}
}

// WithEventQueueSize bounds the change-event queue.
func WithEventQueueSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.eventQueueSize = n
		}
	}
}

// WithLedgerQueueSize bounds the ledger queue.
func WithLedgerQueueSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.ledgerQueueSize = n
		}
	}
}

// WithInstanceID stamps events with id instead of a random one.
func WithInstanceID(id string) Option {
	return func(e *Engine) {
		if id != "" {
			e.instance = id
		}
	}
}

// WithSweepInterval sets how often idle rate-limit windows are dropped.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.sweepEvery = d
		}
	}
}

// WithClock overrides time.Now across the store, limiter and cache.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}
