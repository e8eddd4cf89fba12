package repository

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
)

func seededStore(b *testing.B, n int) *TreapStore {
	b.Helper()
	store := NewTreapStore()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		if _, err := store.Apply(ctx, delta(fmt.Sprintf("p%d", i), int64(rand.Intn(1_000_000)+1), 1)); err != nil {
			b.Fatal(err)
		}
	}
	return store
}

func BenchmarkTreapStore_Apply(b *testing.B) {
	const participants = 100_000
	store := seededStore(b, participants)
	ctx := context.Background()
	var seq atomic.Uint64
	seq.Store(1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := fmt.Sprintf("p%d", i%participants)
		_, _ = store.Apply(ctx, delta(id, int64(rand.Intn(100)+1), seq.Add(1)))
	}
}

func BenchmarkTreapStore_TopK(b *testing.B) {
	store := seededStore(b, 100_000)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = store.TopK(ctx, 100)
		}
	})
}

func BenchmarkTreapStore_RankOf(b *testing.B) {
	const participants = 100_000
	store := seededStore(b, participants)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(1))
		for pb.Next() {
			_, _ = store.RankOf(ctx, fmt.Sprintf("p%d", r.Intn(participants)))
		}
	})
}
