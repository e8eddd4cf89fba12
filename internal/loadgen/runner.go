package loadgen

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/podium/pkg/logger"
)

// tally accumulates outcomes across submitters.
type tally struct {
	mu       sync.Mutex
	stats    *Stats
	expected map[string]int64
}

func (t *tally) record(cmd Command, res SubmitResult, err error, replay bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.Submitted++
	if err != nil {
		t.stats.Failed++
		return
	}
	switch res.Code {
	case http.StatusOK:
		t.stats.Applied++
		t.expected[cmd.ParticipantID] += cmd.Delta
		if want := t.expected[cmd.ParticipantID]; res.NewScore != want {
			t.stats.Mismatches = append(t.stats.Mismatches,
				fmt.Sprintf("%s command %d: score %d, want %d", cmd.ParticipantID, cmd.CommandID, res.NewScore, want))
		}
		if replay {
			t.stats.Mismatches = append(t.stats.Mismatches,
				fmt.Sprintf("%s command %d: replay was applied", cmd.ParticipantID, cmd.CommandID))
		}
	case http.StatusConflict:
		t.stats.Duplicate++
	case http.StatusTooManyRequests:
		t.stats.RateLimited++
	default:
		t.stats.Invalid++
	}
}

// Run executes a complete load run and returns its statistics. A non-nil
// error with non-nil stats means the run finished but verification failed.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.Get().Named("loadgen")
	stats := &Stats{StartTime: time.Now()}
	client := NewClient(cfg.BaseURL, cfg.Board, cfg.Timeout)

	log.Info(ctx, "starting podium load run",
		logger.String("base_url", cfg.BaseURL),
		logger.String("board", cfg.Board),
		logger.Int("participants", cfg.Participants),
		logger.Int("commands", cfg.Commands),
		logger.Int("workers", cfg.Workers))

	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	seqs := generate(ctx, cfg, stats)
	t := &tally{stats: stats, expected: make(map[string]int64, len(seqs))}

	g, gctx := errgroup.WithContext(ctx)
	for _, part := range partition(seqs, cfg.Workers) {
		g.Go(func() error {
			return submit(gctx, client, cfg, part, t)
		})
	}
	if err := g.Wait(); err != nil {
		return stats, fmt.Errorf("submission failed: %w", err)
	}

	board, err := client.Leaderboard(ctx, cfg.TopN)
	if err != nil {
		return stats, fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	stats.LeaderboardEntries = len(board)
	stats.Mismatches = append(stats.Mismatches, verify(Expected(t.expected), board, cfg.TopN)...)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	report(ctx, log, stats)

	if len(stats.Mismatches) > 0 {
		for _, m := range stats.Mismatches {
			log.Warn(ctx, "verification mismatch", logger.String("detail", m))
		}
		return stats, fmt.Errorf("verification failed with %d mismatches", len(stats.Mismatches))
	}
	return stats, nil
}

func submit(ctx context.Context, client *Client, cfg *Config, seqs [][]Command, t *tally) error {
	n := 0
	for _, seq := range seqs {
		for _, cmd := range seq {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := client.Submit(ctx, cmd)
			t.record(cmd, res, err, false)
			n++
			if cfg.ReplayEvery > 0 && n%cfg.ReplayEvery == 0 {
				res, err = client.Submit(ctx, cmd)
				t.record(cmd, res, err, true)
			}
		}
	}
	return nil
}

func report(ctx context.Context, log logger.Logger, stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("applied", stats.Applied),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("rate_limited", stats.RateLimited),
		logger.Int("invalid", stats.Invalid),
		logger.Int("failed", stats.Failed),
		logger.Int("leaderboard_entries", stats.LeaderboardEntries),
		logger.Int("mismatches", len(stats.Mismatches)),
		logger.Duration("duration", stats.Duration),
		logger.Float64("commands_per_second", perSecond))
}
