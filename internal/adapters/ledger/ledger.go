// Package ledger defines the append-only record of committed commands used to
// rebuild ranking state after a restart.
package ledger

import (
	"context"
	"time"
)

// KindResume marks a record that only moves the generation forward. It
// carries no participant.
const KindResume = "resume"

// Record is one committed state change, in the order it was committed.
type Record struct {
	Board         string
	Generation    uint64
	Kind          string // delta, suppress, reinstate, resume
	ParticipantID string
	Delta         int64
	CommandID     uint64
	SubmittedAt   time.Time
	CommittedAt   time.Time
}

// Ledger persists commits and replays them in generation order.
type Ledger interface {
	Append(ctx context.Context, r Record) error
	// Replay calls fn for every record of board in ascending generation
	// order. It stops at the first error fn returns.
	Replay(ctx context.Context, board string, fn func(Record) error) error
	// LastGeneration returns the highest stored generation of board, or 0.
	LastGeneration(ctx context.Context, board string) (uint64, error)
	Close() error
}
