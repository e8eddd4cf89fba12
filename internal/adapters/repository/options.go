package repository

import (
	"time"

	"github.com/okian/podium/internal/domain/model"
)

// TieBreak selects how equal scores are ordered.
type TieBreak string

// Tie-break policies.
const (
	TieBreakIDAsc        TieBreak = "id_asc"
	TieBreakIDDesc       TieBreak = "id_desc"
	TieBreakFirstReached TieBreak = "first_reached"
)

// UnderflowPolicy selects what happens when a delta would drop below the floor.
type UnderflowPolicy string

// Underflow policies.
const (
	UnderflowClamp  UnderflowPolicy = "clamp"
	UnderflowReject UnderflowPolicy = "reject"
)

// Option applies a configuration option to the TreapStore.
type Option func(*TreapStore)

// WithName labels the store's metrics, usually with the board name.
func WithName(name string) Option {
	return func(s *TreapStore) {
		if name != "" {
			s.name = name
		}
	}
}

// WithTieBreak sets the ordering among equal scores.
func WithTieBreak(p TieBreak) Option {
	return func(s *TreapStore) {
		switch p {
		case TieBreakIDAsc, TieBreakIDDesc, TieBreakFirstReached:
			s.tieBreak = p
		}
	}
}

// WithScoreBounds sets the inclusive score floor and ceiling. The ceiling is
// capped at model.MaxSafeScore.
func WithScoreBounds(floor, ceiling int64) Option {
	return func(s *TreapStore) {
		if ceiling > model.MaxSafeScore {
			ceiling = model.MaxSafeScore
		}
		if floor < ceiling {
			s.floor, s.ceiling = floor, ceiling
		}
	}
}

// WithUnderflowPolicy selects clamp (default) or reject.
func WithUnderflowPolicy(p UnderflowPolicy) Option {
	return func(s *TreapStore) {
		switch p {
		case UnderflowClamp, UnderflowReject:
			s.underflow = p
		}
	}
}

// WithTrackZero decides whether zero-score participants are ordered.
func WithTrackZero(track bool) Option {
	return func(s *TreapStore) {
		s.trackZero = track
	}
}

// WithGates installs gates that run before every Apply, ahead of any gates
// passed per call.
func WithGates(gates ...Gate) Option {
	return func(s *TreapStore) {
		s.gates = append(s.gates, gates...)
	}
}

// WithCommitHook installs the observer called for every commit.
func WithCommitHook(h CommitHook) Option {
	return func(s *TreapStore) {
		s.hook = h
	}
}

// WithTopK sets the size of the top views handed to the commit hook.
func WithTopK(k int) Option {
	return func(s *TreapStore) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *TreapStore) {
		if now != nil {
			s.now = now
		}
	}
}
