// Package repository holds the authoritative ranking store.
package repository

import (
	"context"
	"time"

	"github.com/okian/podium/internal/domain/model"
)

// Gate inspects a command inside the store's write critical section before
// it is applied. current is nil for an unknown participant. A non-nil error
// rejects the command without any state change.
type Gate func(current *model.Participant, cmd model.ScoreDelta, now time.Time) error

// CommitKind identifies what produced a commit.
type CommitKind uint8

// Commit kinds.
const (
	CommitDelta CommitKind = iota + 1
	CommitSuppress
	CommitReinstate
	CommitResume
)

func (k CommitKind) String() string {
	switch k {
	case CommitDelta:
		return "delta"
	case CommitSuppress:
		return "suppress"
	case CommitReinstate:
		return "reinstate"
	case CommitResume:
		return "resume"
	default:
		return "unknown"
	}
}

// ParseCommitKind is the inverse of CommitKind.String.
func ParseCommitKind(s string) (CommitKind, bool) {
	switch s {
	case "delta":
		return CommitDelta, true
	case "suppress":
		return CommitSuppress, true
	case "reinstate":
		return CommitReinstate, true
	case "resume":
		return CommitResume, true
	}
	return 0, false
}

// Commit describes one state change. It is handed to the commit hook while
// the write lock is held and returned to the caller afterwards.
type Commit struct {
	Kind       CommitKind
	Generation uint64 // strictly increasing per store
	At         time.Time
	Command    model.ScoreDelta // zero unless Kind is CommitDelta

	Participant   model.Participant // state after the commit
	PreviousScore int64
	Rank          int // 1-based rank after the commit; 0 if not ordered

	// Top views before and after the commit, sized by WithTopK. Nil when no
	// commit hook is installed.
	TopBefore []model.RankEntry
	TopAfter  []model.RankEntry
}

// CommitHook observes commits in generation order. It runs under the store's
// write lock and must not call back into the store.
type CommitHook func(c Commit)

// Store provides read/write access to the ranking state.
type Store interface {
	// Apply runs the gates, applies the delta and records the command id as
	// one atomic step.
	Apply(ctx context.Context, cmd model.ScoreDelta, gates ...Gate) (Commit, error)

	// TopK returns at most k entries in rank order.
	TopK(ctx context.Context, k int) ([]model.RankEntry, error)

	// RankOf returns the rank and score of an ordered participant.
	// Returns ErrNotFound for unknown or suppressed participants.
	RankOf(ctx context.Context, participantID string) (model.RankedEntry, error)

	// Capture copies the top depth entries with the current generation.
	Capture(ctx context.Context, depth int) (*model.Snapshot, error)

	// Participant returns the stored record, ordered or not.
	Participant(ctx context.Context, participantID string) (model.Participant, error)

	// Suppress removes a participant from the ordering, keeping its record.
	Suppress(ctx context.Context, participantID string) (Commit, error)
	// Reinstate puts a suppressed participant back into the ordering.
	Reinstate(ctx context.Context, participantID string) (Commit, error)

	// Resume raises the generation to gen without touching any participant.
	// It is a no-op when gen is not above the current generation.
	Resume(ctx context.Context, gen uint64) (Commit, error)

	// Count returns the number of ordered participants.
	Count(ctx context.Context) int

	// Generation returns the generation of the last commit.
	Generation() uint64

	Close() error
}
