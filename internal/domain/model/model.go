// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// MaxSafeScore is the largest score representable without precision loss in
// IEEE-754 doubles (2^53-1). It is the default score ceiling.
const MaxSafeScore int64 = 1<<53 - 1

// ScoreDelta is a score-changing command. It is a value type and is never
// mutated after construction.
type ScoreDelta struct {
	ParticipantID string    // opaque participant identity
	Delta         int64     // signed score change
	CommandID     uint64    // strictly increasing per participant, starts at 1
	SubmittedAt   time.Time // client submission time, informational
}

// Validate reports whether the command is well formed. It does not check
// score bounds; those depend on the participant's current score.
func (c ScoreDelta) Validate() error {
	switch {
	case strings.TrimSpace(c.ParticipantID) == "":
		return ErrMissingParticipant
	case c.CommandID == 0:
		return ErrMissingCommandID
	case c.Delta == 0:
		return ErrZeroDelta
	}
	return nil
}

// Participant is the authoritative per-participant record held by the
// ranking store.
type Participant struct {
	ID         string
	Score      int64
	LastSeq    uint64    // last applied command id
	UpdatedAt  time.Time // time of the last applied command
	ReachedSeq uint64    // commit sequence at which the current score was reached
	Suppressed bool      // excluded from ranking, record retained
}

// RankEntry is the ordering key of a ranked participant.
type RankEntry struct {
	Score         int64
	ParticipantID string
	TieBreak      uint64
}

// RankedEntry is the read shape returned by ranking queries.
type RankedEntry struct {
	Rank          int    `json:"rank"`
	ParticipantID string `json:"participant_id"`
	Score         int64  `json:"score"`
}

// Snapshot is an immutable copy of the top of the leaderboard.
type Snapshot struct {
	Generation uint64
	CreatedAt  time.Time
	Entries    []RankEntry
	Digest     uint64
	// Stale is set when the snapshot is served after a failed rebuild.
	Stale bool
}

// Ranked converts the snapshot entries into 1-based ranked rows, limited to n.
func (s *Snapshot) Ranked(n int) []RankedEntry {
	if s == nil {
		return nil
	}
	if n < 0 || n > len(s.Entries) {
		n = len(s.Entries)
	}
	return RankEntries(s.Entries[:n])
}

// RankEntries assigns consecutive 1-based ranks to already ordered entries.
func RankEntries(entries []RankEntry) []RankedEntry {
	out := make([]RankedEntry, len(entries))
	for i, e := range entries {
		out[i] = RankedEntry{Rank: i + 1, ParticipantID: e.ParticipantID, Score: e.Score}
	}
	return out
}

// ChangeEvent is published whenever the top-K view changes. It always carries
// the full current top-K so a consumer that missed events converges by
// applying the latest one.
type ChangeEvent struct {
	Board      string        `json:"board"`
	Source     string        `json:"source"`
	Generation uint64        `json:"generation"`
	CreatedAt  time.Time     `json:"created_at"`
	TopK       []RankedEntry `json:"top_k"`
	Affected   []string      `json:"affected_participants"`
}

// Status is the terminal outcome of a command.
type Status string

// Command outcomes.
const (
	StatusApplied             Status = "applied"
	StatusRejectedDuplicate   Status = "rejected_duplicate"
	StatusRejectedRateLimited Status = "rejected_rate_limited"
	StatusRejectedInvalid     Status = "rejected_invalid"
)

// Outcome is returned to the caller for every submitted command.
type Outcome struct {
	Status   Status `json:"status"`
	NewScore int64  `json:"new_score,omitempty"`
	// NewRank is 1-based; 0 means the participant is not in the ordering.
	NewRank int   `json:"new_rank,omitempty"`
	Err     error `json:"-"`
}

// Applied reports whether the command was committed.
func (o Outcome) Applied() bool { return o.Status == StatusApplied }
