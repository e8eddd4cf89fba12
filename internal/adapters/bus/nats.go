package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// NATSBus publishes change events as JSON on <prefix>.<board>.changes.
// With a KV bucket configured it also stores the latest event per board so a
// late transport instance converges by reading one key.
type NATSBus struct {
	conn   *nats.Conn
	prefix string
	bucket string
	kv     jetstream.KeyValue
	log    logger.Logger

	mu     sync.Mutex
	subs   []*nats.Subscription
	closed bool
}

// NATSOption configures a NATSBus.
type NATSOption func(*NATSBus)

// WithSubjectPrefix sets the subject prefix. Default "podium".
func WithSubjectPrefix(prefix string) NATSOption {
	return func(b *NATSBus) {
		if prefix != "" {
			b.prefix = prefix
		}
	}
}

// WithKVBucket enables the latest-event bucket.
func WithKVBucket(bucket string) NATSOption {
	return func(b *NATSBus) {
		b.bucket = bucket
	}
}

// NewNATSBus wraps an established connection. The caller owns nc.
func NewNATSBus(ctx context.Context, nc *nats.Conn, opts ...NATSOption) (*NATSBus, error) {
	b := &NATSBus{
		conn:   nc,
		prefix: "podium",
		log:    logger.Get().Named("bus"),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.bucket != "" {
		js, err := jetstream.New(nc)
		if err != nil {
			return nil, fmt.Errorf("jetstream: %w", err)
		}
		kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      b.bucket,
			Description: "latest podium change event per board",
			History:     1,
		})
		if err != nil {
			return nil, fmt.Errorf("create kv bucket %s: %w", b.bucket, err)
		}
		b.kv = kv
	}
	return b, nil
}

// Subject returns the subject events for board are published on.
func (b *NATSBus) Subject(board string) string {
	return b.prefix + "." + board + ".changes"
}

// Publish implements Publisher.
func (b *NATSBus) Publish(ctx context.Context, ev model.ChangeEvent) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.conn.Publish(b.Subject(ev.Board), data); err != nil {
		metrics.RecordErrorByComponent("bus", "publish")
		return fmt.Errorf("publish %s: %w", b.Subject(ev.Board), err)
	}
	if b.kv != nil {
		if _, err := b.kv.Put(ctx, ev.Board, data); err != nil {
			metrics.RecordErrorByComponent("bus", "kv_put")
			return fmt.Errorf("store latest for %s: %w", ev.Board, err)
		}
	}
	return nil
}

// Latest reads the stored latest event for board.
func (b *NATSBus) Latest(ctx context.Context, board string) (model.ChangeEvent, error) {
	if b.kv == nil {
		return model.ChangeEvent{}, ErrKVDisabled
	}
	entry, err := b.kv.Get(ctx, board)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return model.ChangeEvent{}, ErrNoLatest
	}
	if err != nil {
		return model.ChangeEvent{}, fmt.Errorf("get latest for %s: %w", board, err)
	}
	var ev model.ChangeEvent
	if err := json.Unmarshal(entry.Value(), &ev); err != nil {
		return model.ChangeEvent{}, fmt.Errorf("decode latest for %s: %w", board, err)
	}
	return ev, nil
}

// Follow delivers events for board to fn until ctx is done. When the KV
// bucket is enabled the stored latest event is delivered first. Events whose
// generation is not above the last delivered one are dropped. fn runs on the
// subscription's goroutine, one event at a time.
func (b *NATSBus) Follow(ctx context.Context, board string, fn func(model.ChangeEvent)) error {
	var mu sync.Mutex
	seen := fresh{}
	deliver := func(ev model.ChangeEvent) {
		mu.Lock()
		defer mu.Unlock()
		if !seen.accept(ev) {
			metrics.RecordEventDropped(ev.Board, "stale_generation")
			return
		}
		fn(ev)
	}

	sub, err := b.conn.Subscribe(b.Subject(board), func(msg *nats.Msg) {
		var ev model.ChangeEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			b.log.Warn(ctx, "dropping undecodable change event",
				logger.String("subject", msg.Subject), logger.Error(err))
			return
		}
		deliver(ev)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.Subject(board), err)
	}
	if err := b.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("flush subscription: %w", err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	if b.kv != nil {
		if ev, err := b.Latest(ctx, board); err == nil {
			deliver(ev)
		} else if !errors.Is(err, ErrNoLatest) {
			b.log.Warn(ctx, "could not read latest change event", logger.String("board", board), logger.Error(err))
		}
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return nil
}

// Close unsubscribes followers and flushes pending publishes. It does not
// close the connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, s := range subs {
		_ = s.Unsubscribe()
	}
	if b.conn.IsClosed() {
		return nil
	}
	return b.conn.Flush()
}
