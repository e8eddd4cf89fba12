// Package bus delivers change events to observers outside the engine.
package bus

import (
	"context"

	"github.com/okian/podium/internal/domain/model"
)

// Publisher hands a change event to the transport. Implementations must be
// safe to call from a single dispatcher goroutine; the engine guarantees
// events arrive in strictly increasing generation order per board.
type Publisher interface {
	Publish(ctx context.Context, ev model.ChangeEvent) error
	Close() error
}

// LatestReader is implemented by transports that remember the last event
// published per board.
type LatestReader interface {
	// Latest returns ErrNoLatest when nothing was published for board.
	Latest(ctx context.Context, board string) (model.ChangeEvent, error)
}

var (
	_ LatestReader = (*MemoryBus)(nil)
	_ LatestReader = (*NATSBus)(nil)
)

// NopBus discards every event.
type NopBus struct{}

// Publish implements Publisher.
func (NopBus) Publish(context.Context, model.ChangeEvent) error { return nil }

// Close implements Publisher.
func (NopBus) Close() error { return nil }

// fresh tracks the last generation a consumer has seen for each board and
// reports whether ev is newer. It is the consumer-side half of the ordering
// guarantee: stale or duplicated deliveries are dropped.
type fresh map[string]uint64

func (f fresh) accept(ev model.ChangeEvent) bool {
	if last, ok := f[ev.Board]; ok && ev.Generation <= last {
		return false
	}
	f[ev.Board] = ev.Generation
	return true
}
