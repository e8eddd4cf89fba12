// Package idempotency rejects score-delta commands that were already applied
// or that arrive behind a newer command for the same participant.
package idempotency

import (
	"sync/atomic"
	"time"

	"github.com/okian/podium/internal/domain/model"
)

// Guard enforces strictly increasing command ids per participant.
//
// It keeps no state of its own: the last applied id lives on the participant
// record inside the ranking store, and Admit runs inside the store's write
// critical section so the check and the sequence update are one step.
type Guard struct {
	duplicates atomic.Uint64
	stale      atomic.Uint64
}

// Stats counts rejections since construction.
type Stats struct {
	Duplicates uint64
	Stale      uint64
}

// New returns a ready Guard.
func New() *Guard {
	return &Guard{}
}

// Admit accepts cmd iff its command id is greater than the participant's last
// applied id. A nil participant is unknown and always accepted.
//
// The signature matches the ranking store's gate type.
func (g *Guard) Admit(current *model.Participant, cmd model.ScoreDelta, _ time.Time) error {
	if cmd.CommandID == 0 {
		return model.ErrMissingCommandID
	}
	if current == nil {
		return nil
	}
	switch {
	case cmd.CommandID == current.LastSeq:
		g.duplicates.Add(1)
		return ErrDuplicateCommand
	case cmd.CommandID < current.LastSeq:
		g.stale.Add(1)
		return ErrStaleCommand
	}
	return nil
}

// Stats returns a point-in-time copy of the rejection counters.
func (g *Guard) Stats() Stats {
	return Stats{Duplicates: g.duplicates.Load(), Stale: g.stale.Load()}
}
