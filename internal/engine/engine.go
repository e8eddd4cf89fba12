// Package engine assembles one ranked leaderboard: the ranking store with its
// idempotency and rate-limit gates, the snapshot cache, the change notifier
// and the ordered dispatchers that publish events and record the ledger.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/podium/internal/adapters/bus"
	"github.com/okian/podium/internal/adapters/ledger"
	"github.com/okian/podium/internal/adapters/mq/queue"
	"github.com/okian/podium/internal/adapters/mq/worker"
	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/idempotency"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/notifier"
	"github.com/okian/podium/internal/domain/ratelimit"
	"github.com/okian/podium/internal/domain/snapshot"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// Engine serves one board.
type Engine struct {
	board    string
	instance string
	log      logger.Logger
	now      func() time.Time

	topK            int
	depth           int
	ttl             time.Duration
	sweepEvery      time.Duration
	scoreOnly       bool
	eventQueueSize  int
	ledgerQueueSize int
	storeOpts       []repository.Option
	limitOpts       []ratelimit.Option

	publisher bus.Publisher
	ledger    ledger.Ledger

	store    *repository.TreapStore
	guard    *idempotency.Guard
	limiter  *ratelimit.Limiter
	bucket   *ratelimit.InstanceLimiter
	cache    *snapshot.Cache
	notifier *notifier.Notifier

	events       *queue.InMemoryQueue[model.ChangeEvent]
	records      *queue.InMemoryQueue[ledger.Record]
	eventWorker  *worker.InMemoryWorker[model.ChangeEvent]
	ledgerWorker *worker.InMemoryWorker[ledger.Record]

	replaying     atomic.Bool
	lastPublished atomic.Uint64

	mu        sync.Mutex
	started   bool
	closed    bool
	cancel    context.CancelFunc
	sweepDone chan struct{}
}

// Stats is a point-in-time view of an engine.
type Stats struct {
	Board            string `json:"board"`
	Instance         string `json:"instance"`
	Started          bool   `json:"started"`
	Participants     int    `json:"participants"`
	Generation       uint64 `json:"generation"`
	LastPublished    uint64 `json:"last_published"`
	EventQueue       int    `json:"event_queue"`
	LedgerQueue      int    `json:"ledger_queue"`
	Duplicates       uint64 `json:"duplicates"`
	Stale            uint64 `json:"stale"`
	RateLimitWindows int    `json:"rate_limit_windows"`
}

// New builds an engine for board. Commands may be applied right away; events
// and ledger records queue up until Start.
func New(board string, opts ...Option) (*Engine, error) {
	board = strings.TrimSpace(board)
	if board == "" {
		return nil, ErrInvalidBoard
	}

	e := &Engine{
		board:           board,
		now:             time.Now,
		topK:            10,
		depth:           100,
		ttl:             5 * time.Second,
		sweepEvery:      time.Minute,
		eventQueueSize:  10_000,
		ledgerQueueSize: 10_000,
		publisher:       bus.NopBus{},
		sweepDone:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.depth < e.topK {
		e.depth = e.topK
	}
	if e.instance == "" {
		e.instance = uuid.NewString()
	}
	if e.log == nil {
		e.log = logger.Get().Named("engine")
	}
	e.log = e.log.With(logger.String("board", board))

	e.guard = idempotency.New()
	e.limiter = ratelimit.New(e.limitOpts...)
	e.notifier = notifier.New(board,
		notifier.WithSource(e.instance),
		notifier.WithScoreOnlyChanges(e.scoreOnly),
	)

	storeOpts := append([]repository.Option{
		repository.WithName(board),
		repository.WithClock(e.now),
	}, e.storeOpts...)
	storeOpts = append(storeOpts,
		repository.WithTopK(e.topK),
		repository.WithGates(e.guard.Admit),
		repository.WithCommitHook(e.onCommit),
	)
	e.store = repository.NewTreapStore(storeOpts...)

	e.cache = snapshot.New(e.store,
		snapshot.WithName(board),
		snapshot.WithDepth(e.depth),
		snapshot.WithTTL(e.ttl),
		snapshot.WithClock(e.now),
	)

	e.events = queue.NewInMemoryQueue[model.ChangeEvent](
		queue.WithName("events:"+board),
		queue.WithCapacity(e.eventQueueSize),
	)
	e.eventWorker = worker.NewInMemoryWorker[model.ChangeEvent](e.events, e.publish,
		worker.WithName("dispatcher"),
		worker.WithLogger(e.log.Named("dispatcher")),
	)

	if e.ledger != nil {
		e.records = queue.NewInMemoryQueue[ledger.Record](
			queue.WithName("ledger:"+board),
			queue.WithCapacity(e.ledgerQueueSize),
		)
		e.ledgerWorker = worker.NewInMemoryWorker[ledger.Record](e.records, e.appendRecord,
			worker.WithName("ledger"),
			worker.WithLogger(e.log.Named("ledger")),
		)
	}
	return e, nil
}

// Board returns the board name.
func (e *Engine) Board() string { return e.board }

// Instance returns the id stamped on published events.
func (e *Engine) Instance() string { return e.instance }

// TopKSize returns the size of the observed top view.
func (e *Engine) TopKSize() int { return e.topK }

// Depth returns the number of entries a snapshot holds.
func (e *Engine) Depth() int { return e.depth }

// Start runs the event dispatcher, the ledger writer and the rate-limit
// sweeper. They keep running after ctx is cancelled until Close drains them.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.cancel = cancel

	go e.eventWorker.Run(runCtx)
	if e.ledgerWorker != nil {
		go e.ledgerWorker.Run(runCtx)
	}
	go e.sweep(runCtx)

	e.started = true
	e.log.Info(ctx, "engine started",
		logger.String("instance", e.instance),
		logger.Int("top_k", e.topK),
		logger.Int("snapshot_depth", e.depth),
		logger.Bool("ledger", e.ledger != nil),
	)
	return nil
}

// Close stops accepting commands, then waits for queued events and ledger
// records to be handled or ctx to expire. Reads keep being served from the
// last snapshot.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	started, cancel := e.started, e.cancel
	e.mu.Unlock()

	_ = e.store.Close()
	_ = e.events.Close()
	if e.records != nil {
		_ = e.records.Close()
	}
	if !started {
		return nil
	}

	var errs []error
	if err := e.eventWorker.Drain(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain events: %w", err))
	}
	if e.ledgerWorker != nil {
		if err := e.ledgerWorker.Drain(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain ledger: %w", err))
		}
	}
	cancel()
	<-e.sweepDone

	e.log.Info(ctx, "engine stopped", logger.Uint64("last_published", e.lastPublished.Load()))
	return errors.Join(errs...)
}

// Apply submits one score delta. Rejections are reported in the outcome; the
// error is reserved for a closed engine or a cancelled context.
func (e *Engine) Apply(ctx context.Context, cmd model.ScoreDelta) (model.Outcome, error) {
	start := time.Now()
	defer func() {
		metrics.RecordCommandLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	c, err := e.store.Apply(ctx, cmd, e.admitRate)
	out, err := outcomeOf(c, err)
	if err != nil {
		return model.Outcome{}, err
	}
	metrics.RecordCommand(e.board, string(out.Status))
	if !out.Applied() {
		e.log.Debug(ctx, "command rejected",
			logger.String("participant", cmd.ParticipantID),
			logger.Uint64("command_id", cmd.CommandID),
			logger.String("status", string(out.Status)),
			logger.Error(out.Err),
		)
	}
	return out, nil
}

func outcomeOf(c repository.Commit, err error) (model.Outcome, error) {
	switch {
	case err == nil:
		return model.Outcome{
			Status:   model.StatusApplied,
			NewScore: c.Participant.Score,
			NewRank:  c.Rank,
		}, nil
	case idempotency.IsRejection(err):
		return model.Outcome{Status: model.StatusRejectedDuplicate, Err: err}, nil
	case errors.Is(err, ratelimit.ErrRateLimited):
		return model.Outcome{Status: model.StatusRejectedRateLimited, Err: err}, nil
	case errors.Is(err, repository.ErrStoreClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return model.Outcome{}, err
	default:
		return model.Outcome{Status: model.StatusRejectedInvalid, Err: err}, nil
	}
}

// admitRate charges the instance bucket and the participant window together.
// The instance token is handed back when the window refuses, and the window
// is never consulted when the bucket is empty, so neither limit is spent by
// the other's refusal.
func (e *Engine) admitRate(p *model.Participant, cmd model.ScoreDelta, now time.Time) error {
	release, ok := e.bucket.Reserve(now)
	if !ok {
		return ratelimit.ErrRateLimited
	}
	if err := e.limiter.Gate(p, cmd, now); err != nil {
		release()
		return err
	}
	return nil
}

// Leaderboard returns the cached snapshot. It may be flagged stale when the
// store could not be read.
func (e *Engine) Leaderboard(ctx context.Context) (*model.Snapshot, error) {
	return e.cache.Get(ctx)
}

// TopK returns the first k ranked entries from the snapshot cache. k must not
// exceed the snapshot depth.
func (e *Engine) TopK(ctx context.Context, k int) ([]model.RankedEntry, error) {
	if k < 1 || k > e.depth {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", repository.ErrInvalidLimit, k, e.depth)
	}
	snap, err := e.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Ranked(k), nil
}

// RankOf returns the live rank of a participant.
func (e *Engine) RankOf(ctx context.Context, participantID string) (model.RankedEntry, error) {
	return e.store.RankOf(ctx, participantID)
}

// Participant returns the stored record, suppressed or not.
func (e *Engine) Participant(ctx context.Context, participantID string) (model.Participant, error) {
	return e.store.Participant(ctx, participantID)
}

// Suppress removes a participant from the ranking and notifies observers if
// the top view changed.
func (e *Engine) Suppress(ctx context.Context, participantID string) error {
	c, err := e.store.Suppress(ctx, participantID)
	if err != nil {
		return err
	}
	e.log.Info(ctx, "participant suppressed",
		logger.String("participant", participantID),
		logger.Uint64("generation", c.Generation))
	return nil
}

// Reinstate returns a suppressed participant to the ranking.
func (e *Engine) Reinstate(ctx context.Context, participantID string) (model.RankedEntry, error) {
	c, err := e.store.Reinstate(ctx, participantID)
	if err != nil {
		return model.RankedEntry{}, err
	}
	e.log.Info(ctx, "participant reinstated",
		logger.String("participant", participantID),
		logger.Uint64("generation", c.Generation))
	return model.RankedEntry{Rank: c.Rank, ParticipantID: participantID, Score: c.Participant.Score}, nil
}

// Generation returns the generation of the last commit.
func (e *Engine) Generation() uint64 {
	return e.store.Generation()
}

// Stats reports counters for monitoring.
func (e *Engine) Stats(ctx context.Context) Stats {
	e.mu.Lock()
	started := e.started && !e.closed
	e.mu.Unlock()

	guard := e.guard.Stats()
	s := Stats{
		Board:            e.board,
		Instance:         e.instance,
		Started:          started,
		Participants:     e.store.Count(ctx),
		Generation:       e.store.Generation(),
		LastPublished:    e.lastPublished.Load(),
		EventQueue:       e.events.Len(ctx),
		Duplicates:       guard.Duplicates,
		Stale:            guard.Stale,
		RateLimitWindows: e.limiter.Len(),
	}
	if e.records != nil {
		s.LedgerQueue = e.records.Len(ctx)
	}
	return s
}

// onCommit runs under the store's write lock, so everything it enqueues is
// in generation order.
func (e *Engine) onCommit(c repository.Commit) {
	e.cache.Invalidate()
	if e.replaying.Load() {
		return
	}

	ctx := context.Background()
	if c.Kind != repository.CommitResume {
		ev, ok := e.notifier.Evaluate(notifier.Transition{
			ParticipantID: c.Participant.ID,
			Generation:    c.Generation,
			At:            c.At,
			Before:        c.TopBefore,
			After:         c.TopAfter,
		})
		if ok && !e.events.Enqueue(ctx, ev) {
			metrics.RecordEventDropped(e.board, "queue_full")
			e.log.Warn(ctx, "change event dropped", logger.Uint64("generation", c.Generation))
		}
	}

	if e.records != nil && !e.records.Enqueue(ctx, recordOf(e.board, c)) {
		metrics.RecordLedgerError()
		e.log.Error(ctx, "ledger record dropped", logger.Uint64("generation", c.Generation))
	}
}

// publish is the dispatcher handler. It is the only writer of lastPublished.
func (e *Engine) publish(ctx context.Context, ev model.ChangeEvent) error {
	if ev.Generation <= e.lastPublished.Load() {
		metrics.RecordEventDropped(e.board, "stale")
		return nil
	}

	start := time.Now()
	if err := e.publisher.Publish(ctx, ev); err != nil {
		metrics.RecordEventDropped(e.board, "publish_failed")
		return fmt.Errorf("publish generation %d: %w", ev.Generation, err)
	}
	e.lastPublished.Store(ev.Generation)
	metrics.RecordEventPublished(e.board, float64(time.Since(start).Microseconds())/1000)
	return nil
}

func (e *Engine) appendRecord(ctx context.Context, r ledger.Record) error {
	if err := e.ledger.Append(ctx, r); err != nil {
		metrics.RecordLedgerError()
		return fmt.Errorf("ledger append: %w", err)
	}
	metrics.RecordLedgerAppend()
	return nil
}

func (e *Engine) sweep(ctx context.Context) {
	defer close(e.sweepDone)

	t := time.NewTicker(e.sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := e.limiter.Sweep(e.now()); n > 0 {
				e.log.Debug(ctx, "rate-limit windows swept", logger.Int("removed", n))
			}
		}
	}
}

func recordOf(board string, c repository.Commit) ledger.Record {
	return ledger.Record{
		Board:         board,
		Generation:    c.Generation,
		Kind:          c.Kind.String(),
		ParticipantID: c.Participant.ID,
		Delta:         c.Command.Delta,
		CommandID:     c.Command.CommandID,
		SubmittedAt:   c.Command.SubmittedAt,
		CommittedAt:   c.At,
	}
}
