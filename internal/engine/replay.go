package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/podium/internal/adapters/bus"
	"github.com/okian/podium/internal/adapters/ledger"
	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// Recover prepares a fresh engine to take over a board: it replays the ledger
// and then moves the generation past the highest one recorded in the ledger
// or held by the publisher as the latest event. Commits after a restart
// therefore never reuse a generation observers have already seen, even
// without a ledger or when the ledger tail was lost. It must run before
// Start.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	n, err := e.Replay(ctx)
	if err != nil {
		return n, err
	}

	e.mu.Lock()
	switch {
	case e.closed:
		e.mu.Unlock()
		return n, ErrClosed
	case e.started:
		e.mu.Unlock()
		return n, ErrAlreadyStarted
	}
	e.mu.Unlock()

	recorded, published, err := e.highWater(ctx)
	if err != nil {
		return n, err
	}
	if published > e.lastPublished.Load() {
		e.lastPublished.Store(published)
	}

	floor := max(recorded, published)
	if floor <= e.store.Generation() {
		return n, nil
	}
	c, err := e.store.Resume(ctx, floor)
	if err != nil {
		return n, fmt.Errorf("resume at generation %d: %w", floor, err)
	}
	e.log.Info(ctx, "generation resumed",
		logger.Uint64("generation", c.Generation),
		logger.Uint64("recorded", recorded),
		logger.Uint64("published", published),
	)
	return n, nil
}

// highWater reads the last generation the ledger holds and the generation of
// the latest event the publisher remembers. Either is 0 when unknown.
func (e *Engine) highWater(ctx context.Context) (recorded, published uint64, err error) {
	if e.ledger != nil {
		recorded, err = e.ledger.LastGeneration(ctx, e.board)
		if err != nil {
			return 0, 0, fmt.Errorf("ledger last generation: %w", err)
		}
	}
	if lr, ok := e.publisher.(bus.LatestReader); ok {
		ev, err := lr.Latest(ctx, e.board)
		switch {
		case err == nil:
			published = ev.Generation
		case errors.Is(err, bus.ErrNoLatest), errors.Is(err, bus.ErrKVDisabled):
		default:
			return 0, 0, fmt.Errorf("latest published generation: %w", err)
		}
	}
	return recorded, published, nil
}

// Replay rebuilds the board from the ledger in generation order. It must run
// before Start and before any command is applied; replayed commits produce no
// events and are not written back to the ledger. Returns the number of
// records applied.
func (e *Engine) Replay(ctx context.Context) (int, error) {
	if e.ledger == nil {
		return 0, nil
	}

	e.mu.Lock()
	switch {
	case e.closed:
		e.mu.Unlock()
		return 0, ErrClosed
	case e.started:
		e.mu.Unlock()
		return 0, ErrAlreadyStarted
	}
	e.mu.Unlock()

	e.replaying.Store(true)
	defer e.replaying.Store(false)

	n := 0
	err := e.ledger.Replay(ctx, e.board, func(r ledger.Record) error {
		c, err := e.replayOne(ctx, r)
		if err != nil {
			return fmt.Errorf("replay generation %d: %w", r.Generation, err)
		}
		if c.Generation != r.Generation {
			return fmt.Errorf("%w: record %d replayed as %d", ErrLedgerGap, r.Generation, c.Generation)
		}
		n++
		return nil
	})
	metrics.RecordLedgerReplayed(n)
	if err != nil {
		return n, err
	}

	e.log.Info(ctx, "ledger replayed",
		logger.Int("records", n),
		logger.Uint64("generation", e.store.Generation()),
		logger.Int("participants", e.store.Count(ctx)),
	)
	return n, nil
}

func (e *Engine) replayOne(ctx context.Context, r ledger.Record) (repository.Commit, error) {
	kind, ok := repository.ParseCommitKind(r.Kind)
	if !ok {
		return repository.Commit{}, fmt.Errorf("%w: %q", ErrUnknownRecord, r.Kind)
	}
	switch kind {
	case repository.CommitSuppress:
		return e.store.Suppress(ctx, r.ParticipantID)
	case repository.CommitReinstate:
		return e.store.Reinstate(ctx, r.ParticipantID)
	case repository.CommitResume:
		return e.store.Resume(ctx, r.Generation)
	default:
		return e.store.Apply(ctx, model.ScoreDelta{
			ParticipantID: r.ParticipantID,
			Delta:         r.Delta,
			CommandID:     r.CommandID,
			SubmittedAt:   r.SubmittedAt,
		})
	}
}
