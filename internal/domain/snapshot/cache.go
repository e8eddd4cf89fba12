// Package snapshot caches an immutable copy of the top of the leaderboard so
// reads do not contend with writers on the ranking store.
package snapshot

import (
	"context"
	"encoding/binary"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/singleflight"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// Source produces snapshots. The ranking store implements it.
type Source interface {
	Capture(ctx context.Context, depth int) (*model.Snapshot, error)
}

// entry is a published snapshot plus the invalidation epoch observed when its
// build started.
type entry struct {
	snap    *model.Snapshot
	epoch   uint64
	builtAt time.Time
}

// Cache serves snapshots no older than the TTL and never from before the
// latest invalidation.
type Cache struct {
	src   Source
	name  string
	depth int
	ttl   time.Duration
	now   func() time.Time

	current atomic.Pointer[entry]
	epoch   atomic.Uint64
	group   singleflight.Group
}

// New builds a Cache over src.
func New(src Source, opts ...Option) *Cache {
	c := &Cache{
		src:   src,
		name:  "default",
		depth: 100,
		ttl:   5 * time.Second,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invalidate marks the current snapshot stale. It is cheap enough to call
// from inside the ranking store's commit hook.
func (c *Cache) Invalidate() {
	c.epoch.Add(1)
}

// Depth returns the number of entries captured per snapshot.
func (c *Cache) Depth() int { return c.depth }

// Get returns a fresh snapshot, rebuilding synchronously on a miss. Concurrent
// misses for the same epoch share one rebuild. If the rebuild fails and a
// previous snapshot exists it is returned with Stale set.
func (c *Cache) Get(ctx context.Context) (*model.Snapshot, error) {
	ep := c.epoch.Load()
	if e := c.current.Load(); e != nil && e.epoch == ep && c.now().Sub(e.builtAt) < c.ttl {
		metrics.RecordSnapshotLookup(c.name, true)
		return e.snap, nil
	}
	metrics.RecordSnapshotLookup(c.name, false)

	v, err, _ := c.group.Do(strconv.FormatUint(ep, 10), func() (any, error) {
		return c.rebuild(ctx, ep)
	})
	if err != nil {
		return c.fallback(ctx, err)
	}
	return v.(*model.Snapshot), nil
}

func (c *Cache) rebuild(ctx context.Context, ep uint64) (*model.Snapshot, error) {
	start := time.Now()
	snap, err := c.src.Capture(ctx, c.depth)
	if err != nil {
		return nil, err
	}
	snap.Digest = Digest(snap.Entries)

	c.current.Store(&entry{snap: snap, epoch: ep, builtAt: c.now()})
	metrics.RecordSnapshotRebuild(c.name, float64(time.Since(start).Microseconds())/1000, snap.Generation)
	return snap, nil
}

func (c *Cache) fallback(ctx context.Context, err error) (*model.Snapshot, error) {
	last := c.current.Load()
	if last == nil {
		metrics.RecordErrorByComponent("snapshot", "rebuild_failed")
		return nil, err
	}
	logger.Get().Warn(ctx, "snapshot rebuild failed, serving last snapshot",
		logger.String("board", c.name),
		logger.Uint64("generation", last.snap.Generation),
		logger.Error(err))
	metrics.RecordSnapshotStaleServe(c.name)

	stale := *last.snap
	stale.Stale = true
	return &stale, nil
}

// Digest hashes the ordered entries. Equal digests mean equal leaderboards,
// which makes it usable as an HTTP entity tag.
func Digest(entries []model.RankEntry) uint64 {
	h := xxh3.New()
	var buf [8]byte
	for _, e := range entries {
		_, _ = h.WriteString(e.ParticipantID)
		_, _ = h.Write([]byte{0})
		binary.BigEndian.PutUint64(buf[:], uint64(e.Score))
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}
