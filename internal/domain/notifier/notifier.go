// Package notifier decides whether a commit changed the observable top-K
// view and builds the change event when it did.
package notifier

import (
	"time"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/metrics"
)

// Transition is the input to Evaluate: the top-K views around one commit.
type Transition struct {
	ParticipantID string
	Generation    uint64
	At            time.Time
	Before        []model.RankEntry
	After         []model.RankEntry
}

// Notifier is a pure evaluator; it holds configuration only.
type Notifier struct {
	board     string
	source    string
	scoreOnly bool
}

// New returns a Notifier for board.
func New(board string, opts ...Option) *Notifier {
	n := &Notifier{board: board}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Evaluate returns the event for t and true when the commit is observable.
//
// A commit is observable when the participant is in the top view before or
// after it, and the membership or any position inside the view changed.
// Commits entirely outside the view never emit.
func (n *Notifier) Evaluate(t Transition) (model.ChangeEvent, bool) {
	beforePos := positions(t.Before)
	afterPos := positions(t.After)

	_, wasRanked := beforePos[t.ParticipantID]
	_, isRanked := afterPos[t.ParticipantID]
	if !wasRanked && !isRanked {
		metrics.RecordChangeEvaluation(n.board, false)
		return model.ChangeEvent{}, false
	}

	affected := Affected(t.Before, t.After)
	emit := len(affected) > 0
	if !emit && n.scoreOnly && wasRanked && isRanked {
		b := t.Before[beforePos[t.ParticipantID]]
		a := t.After[afterPos[t.ParticipantID]]
		if a.Score != b.Score {
			emit = true
			affected = []string{t.ParticipantID}
		}
	}

	metrics.RecordChangeEvaluation(n.board, emit)
	if !emit {
		return model.ChangeEvent{}, false
	}
	return model.ChangeEvent{
		Board:      n.board,
		Source:     n.source,
		Generation: t.Generation,
		CreatedAt:  t.At,
		TopK:       model.RankEntries(t.After),
		Affected:   affected,
	}, true
}

// Affected lists participants whose position differs between two views:
// those that moved or entered in the order of after, then those that left in
// the order of before.
func Affected(before, after []model.RankEntry) []string {
	beforePos := positions(before)
	afterPos := positions(after)

	var out []string
	for i, e := range after {
		if p, ok := beforePos[e.ParticipantID]; !ok || p != i {
			out = append(out, e.ParticipantID)
		}
	}
	for _, e := range before {
		if _, ok := afterPos[e.ParticipantID]; !ok {
			out = append(out, e.ParticipantID)
		}
	}
	return out
}

func positions(view []model.RankEntry) map[string]int {
	m := make(map[string]int, len(view))
	for i, e := range view {
		m[e.ParticipantID] = i
	}
	return m
}
