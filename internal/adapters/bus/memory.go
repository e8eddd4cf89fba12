package bus

import (
	"context"
	"sync"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/metrics"
)

// MemoryBus fans events out to in-process subscribers. A subscriber whose
// buffer is full misses the event; since every event carries the full top-K,
// the next delivery brings it up to date.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[uint64]*memorySub
	nextID uint64
	latest map[string]model.ChangeEvent
	closed bool
}

type memorySub struct {
	board string // empty means every board
	ch    chan model.ChangeEvent
}

// NewMemoryBus returns an empty MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs:   make(map[uint64]*memorySub),
		latest: make(map[string]model.ChangeEvent),
	}
}

// Publish implements Publisher. It never blocks.
func (b *MemoryBus) Publish(_ context.Context, ev model.ChangeEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	b.latest[ev.Board] = ev
	for _, s := range b.subs {
		if s.board != "" && s.board != ev.Board {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			metrics.RecordEventDropped(ev.Board, "slow_subscriber")
		}
	}
	return nil
}

// Subscribe registers a subscriber for board ("" for all boards) with the
// given buffer. The returned cancel function unregisters it and closes the
// channel.
func (b *MemoryBus) Subscribe(board string, buffer int) (<-chan model.ChangeEvent, func()) {
	if buffer < 1 {
		buffer = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	s := &memorySub{board: board, ch: make(chan model.ChangeEvent, buffer)}
	if b.closed {
		close(s.ch)
		return s.ch, func() {}
	}
	b.subs[id] = s

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(s.ch)
			}
		})
	}
}

// Latest returns the most recent event published for board.
func (b *MemoryBus) Latest(_ context.Context, board string) (model.ChangeEvent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ev, ok := b.latest[board]
	if !ok {
		return model.ChangeEvent{}, ErrNoLatest
	}
	return ev, nil
}

// Close closes every subscriber channel.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, s := range b.subs {
		close(s.ch)
		delete(b.subs, id)
	}
	return nil
}
