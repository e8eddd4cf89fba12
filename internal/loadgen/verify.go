package loadgen

import (
	"fmt"
	"sort"
)

// Expected ranks locally tallied scores the way the service does with the
// default tie-break: score descending, then participant id ascending.
func Expected(scores map[string]int64) []Entry {
	out := make([]Entry, 0, len(scores))
	for id, s := range scores {
		out = append(out, Entry{ParticipantID: id, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ParticipantID < out[j].ParticipantID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// verify compares the first n rows of the served leaderboard with the
// expected ranking and returns one line per difference.
func verify(expected, served []Entry, n int) []string {
	if n > len(expected) {
		n = len(expected)
	}
	var diffs []string
	if len(served) != n {
		diffs = append(diffs, fmt.Sprintf("leaderboard has %d rows, want %d", len(served), n))
	}
	for i := 0; i < n && i < len(served); i++ {
		if served[i] != expected[i] {
			diffs = append(diffs, fmt.Sprintf("row %d: got %s=%d rank %d, want %s=%d",
				i+1, served[i].ParticipantID, served[i].Score, served[i].Rank,
				expected[i].ParticipantID, expected[i].Score))
		}
	}
	return diffs
}
