package repository

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/metrics"
)

// TreapStore is the in-memory Store. A single RWMutex guards the treap and
// the participant records; reads share it, commits take it exclusively.
type TreapStore struct {
	mu         sync.RWMutex
	tree       treap
	byID       map[string]*model.Participant
	generation uint64
	closed     bool

	name      string
	tieBreak  TieBreak
	floor     int64
	ceiling   int64
	underflow UnderflowPolicy
	trackZero bool
	topK      int
	gates     []Gate
	hook      CommitHook
	now       func() time.Time
}

var _ Store = (*TreapStore)(nil)

// NewTreapStore constructs a treap store with configuration options.
func NewTreapStore(opts ...Option) *TreapStore {
	s := &TreapStore{
		byID:      make(map[string]*model.Participant),
		name:      "default",
		tieBreak:  TieBreakIDAsc,
		floor:     0,
		ceiling:   model.MaxSafeScore,
		underflow: UnderflowClamp,
		trackZero: true,
		topK:      10,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tree.less = comparator(s.tieBreak)
	return s
}

// Apply implements Store.Apply in O(log n) expected time.
func (s *TreapStore) Apply(ctx context.Context, cmd model.ScoreDelta, gates ...Gate) (Commit, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if err := ctx.Err(); err != nil {
		return Commit{}, err
	}
	if err := cmd.Validate(); err != nil {
		return Commit{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Commit{}, ErrStoreClosed
	}

	now := s.now()
	current, known := s.byID[cmd.ParticipantID]
	var view *model.Participant
	if known {
		cp := *current
		view = &cp
		if current.Suppressed {
			return Commit{}, ErrParticipantSuppressed
		}
	}

	for _, g := range s.gates {
		if err := g(view, cmd, now); err != nil {
			return Commit{}, err
		}
	}
	for _, g := range gates {
		if err := g(view, cmd, now); err != nil {
			return Commit{}, err
		}
	}

	prev := s.initialScore()
	if known {
		prev = current.Score
	}
	next, err := s.nextScore(prev, cmd.Delta)
	if err != nil {
		return Commit{}, err
	}

	var before []model.RankEntry
	if s.hook != nil {
		before = s.topLocked(s.topK)
	}

	isNew := !known
	if isNew {
		current = &model.Participant{ID: cmd.ParticipantID, Score: prev}
		s.byID[cmd.ParticipantID] = current
	} else {
		s.unorder(current)
	}

	s.generation++
	if isNew || next != prev {
		current.ReachedSeq = s.generation
	}
	current.Score = next
	current.LastSeq = cmd.CommandID
	current.UpdatedAt = now
	s.order(current)

	c := s.commitLocked(CommitDelta, cmd, current, prev, now, before)

	if isNew {
		metrics.UpdateParticipants(s.name, s.tree.len())
	}
	return c, nil
}

// Suppress implements Store.Suppress.
func (s *TreapStore) Suppress(ctx context.Context, participantID string) (Commit, error) {
	return s.setSuppressed(ctx, participantID, true)
}

// Reinstate implements Store.Reinstate.
func (s *TreapStore) Reinstate(ctx context.Context, participantID string) (Commit, error) {
	return s.setSuppressed(ctx, participantID, false)
}

func (s *TreapStore) setSuppressed(ctx context.Context, participantID string, suppressed bool) (Commit, error) {
	if err := ctx.Err(); err != nil {
		return Commit{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Commit{}, ErrStoreClosed
	}
	p, ok := s.byID[participantID]
	if !ok {
		return Commit{}, ErrNotFound
	}
	if p.Suppressed == suppressed {
		if suppressed {
			return Commit{}, ErrParticipantSuppressed
		}
		return Commit{}, ErrNotSuppressed
	}

	var before []model.RankEntry
	if s.hook != nil {
		before = s.topLocked(s.topK)
	}

	kind := CommitReinstate
	if suppressed {
		kind = CommitSuppress
		s.unorder(p)
	}
	p.Suppressed = suppressed
	s.generation++
	now := s.now()
	p.UpdatedAt = now
	if !suppressed {
		s.order(p)
	}

	c := s.commitLocked(kind, model.ScoreDelta{}, p, p.Score, now, before)
	metrics.UpdateParticipants(s.name, s.tree.len())
	return c, nil
}

// Resume implements Store.Resume. The hook sees a commit with identical top
// views and a zero participant.
func (s *TreapStore) Resume(ctx context.Context, gen uint64) (Commit, error) {
	if err := ctx.Err(); err != nil {
		return Commit{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Commit{}, ErrStoreClosed
	}
	now := s.now()
	if gen <= s.generation {
		return Commit{Kind: CommitResume, Generation: s.generation, At: now}, nil
	}

	s.generation = gen
	c := Commit{Kind: CommitResume, Generation: gen, At: now}
	if s.hook != nil {
		top := s.topLocked(s.topK)
		c.TopBefore, c.TopAfter = top, top
		s.hook(c)
	}
	return c, nil
}

// commitLocked assembles the commit and runs the hook. Caller holds mu.
func (s *TreapStore) commitLocked(kind CommitKind, cmd model.ScoreDelta, p *model.Participant, prev int64, now time.Time, before []model.RankEntry) Commit {
	c := Commit{
		Kind:          kind,
		Generation:    s.generation,
		At:            now,
		Command:       cmd,
		Participant:   *p,
		PreviousScore: prev,
	}
	if s.ordered(p) {
		c.Rank = s.tree.rank(s.keyOf(p))
	}
	if s.hook != nil {
		c.TopBefore = before
		c.TopAfter = s.topLocked(s.topK)
		s.hook(c)
	}
	return c
}

// TopK implements Store.TopK with O(log n + k) time.
func (s *TreapStore) TopK(ctx context.Context, k int) ([]model.RankEntry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if k < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	return s.topLocked(k), nil
}

// RankOf implements Store.RankOf in O(log n).
func (s *TreapStore) RankOf(ctx context.Context, participantID string) (model.RankedEntry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return model.RankedEntry{}, ErrStoreClosed
	}
	p, ok := s.byID[participantID]
	if !ok || !s.ordered(p) {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.RankedEntry{}, ErrNotFound
	}
	return model.RankedEntry{
		Rank:          s.tree.rank(s.keyOf(p)),
		ParticipantID: p.ID,
		Score:         p.Score,
	}, nil
}

// Capture implements Store.Capture.
func (s *TreapStore) Capture(ctx context.Context, depth int) (*model.Snapshot, error) {
	if depth < 1 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	return &model.Snapshot{
		Generation: s.generation,
		CreatedAt:  s.now(),
		Entries:    s.topLocked(depth),
	}, nil
}

// Participant implements Store.Participant.
func (s *TreapStore) Participant(ctx context.Context, participantID string) (model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return model.Participant{}, ErrStoreClosed
	}
	p, ok := s.byID[participantID]
	if !ok {
		return model.Participant{}, ErrNotFound
	}
	return *p, nil
}

// Count returns the number of ordered participants.
func (s *TreapStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.len()
}

// Generation returns the generation of the last commit.
func (s *TreapStore) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Close marks the store closed. Subsequent operations fail with ErrStoreClosed.
func (s *TreapStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *TreapStore) initialScore() int64 {
	switch {
	case s.floor > 0:
		return s.floor
	case s.ceiling < 0:
		return s.ceiling
	}
	return 0
}

// nextScore applies delta to prev within [floor, ceiling] without overflow.
func (s *TreapStore) nextScore(prev, delta int64) (int64, error) {
	var next int64
	switch {
	case delta > 0 && prev > math.MaxInt64-delta:
		return 0, fmt.Errorf("%w: %d%+d exceeds ceiling %d", ErrInvalidDelta, prev, delta, s.ceiling)
	case delta < 0 && prev < math.MinInt64-delta:
		next = math.MinInt64
	default:
		next = prev + delta
	}

	if next > s.ceiling {
		return 0, fmt.Errorf("%w: %d%+d exceeds ceiling %d", ErrInvalidDelta, prev, delta, s.ceiling)
	}
	if next < s.floor {
		if s.underflow == UnderflowReject {
			return 0, fmt.Errorf("%w: %d%+d below floor %d", ErrInvalidDelta, prev, delta, s.floor)
		}
		next = s.floor
	}
	return next, nil
}

func (s *TreapStore) ordered(p *model.Participant) bool {
	return !p.Suppressed && (s.trackZero || p.Score != 0)
}

func (s *TreapStore) keyOf(p *model.Participant) key {
	k := key{score: p.Score, id: p.ID}
	if s.tieBreak == TieBreakFirstReached {
		k.tie = p.ReachedSeq
	}
	return k
}

func (s *TreapStore) order(p *model.Participant) {
	if s.ordered(p) {
		s.tree.insert(s.keyOf(p))
	}
}

func (s *TreapStore) unorder(p *model.Participant) {
	if s.ordered(p) {
		s.tree.remove(s.keyOf(p))
	}
}

func (s *TreapStore) topLocked(k int) []model.RankEntry {
	keys := s.tree.top(k)
	out := make([]model.RankEntry, len(keys))
	for i, kk := range keys {
		out[i] = model.RankEntry{Score: kk.score, ParticipantID: kk.id, TieBreak: kk.tie}
	}
	return out
}
