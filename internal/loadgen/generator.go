package loadgen

import (
	"context"
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"

	"github.com/okian/podium/pkg/logger"
)

// randomDelta returns a value in [1, maxDelta].
func randomDelta(maxDelta int64) int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(maxDelta))
	if err != nil {
		return 1
	}
	return n.Int64() + 1
}

// generate builds one ordered command sequence per participant. Command ids
// start at 1 and increase by one, so each sequence must be sent in order.
func generate(ctx context.Context, cfg *Config, stats *Stats) [][]Command {
	logger.Get().Info(ctx, "generating commands",
		logger.Int("participants", cfg.Participants),
		logger.Int("commands", cfg.Commands))

	seqs := make([][]Command, cfg.Participants)
	for i := range seqs {
		id := uuid.NewString()
		seq := make([]Command, cfg.Commands)
		for j := range seq {
			seq[j] = Command{
				ParticipantID: id,
				Delta:         randomDelta(cfg.MaxDelta),
				CommandID:     uint64(j + 1),
			}
		}
		seqs[i] = seq
		stats.Generated += len(seq)
	}
	return seqs
}

// partition spreads sequences across n workers. A participant's sequence is
// never split so its commands stay ordered.
func partition(seqs [][]Command, n int) [][][]Command {
	if n > len(seqs) {
		n = len(seqs)
	}
	out := make([][][]Command, n)
	for i, seq := range seqs {
		out[i%n] = append(out[i%n], seq)
	}
	return out
}
