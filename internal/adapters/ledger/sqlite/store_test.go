package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/podium/internal/adapters/ledger"
)

func openTempStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), "  "); !errors.Is(err, ErrPathRequired) {
		t.Fatalf("expected ErrPathRequired, got %v", err)
	}
}

func TestAppendAndReplayInOrder(t *testing.T) {
	store, _ := openTempStore(t)
	ctx := context.Background()
	submitted := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	records := []ledger.Record{
		{Board: "global", Generation: 2, Kind: "delta", ParticipantID: "b", Delta: 90, CommandID: 1, SubmittedAt: submitted},
		{Board: "global", Generation: 1, Kind: "delta", ParticipantID: "a", Delta: 100, CommandID: 1},
		{Board: "global", Generation: 3, Kind: "suppress", ParticipantID: "a"},
		{Board: "weekly", Generation: 1, Kind: "delta", ParticipantID: "z", Delta: 5, CommandID: 7},
	}
	for _, r := range records {
		if err := store.Append(ctx, r); err != nil {
			t.Fatalf("append %+v: %v", r, err)
		}
	}

	var got []ledger.Record
	if err := store.Replay(ctx, "global", func(r ledger.Record) error {
		got = append(got, r)
		return nil
	}); err != nil {
		t.Fatalf("replay: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	for i, want := range []uint64{1, 2, 3} {
		if got[i].Generation != want {
			t.Errorf("record %d: expected generation %d, got %d", i, want, got[i].Generation)
		}
	}
	if got[0].ParticipantID != "a" || got[0].Delta != 100 || got[0].CommandID != 1 {
		t.Errorf("unexpected record: %+v", got[0])
	}
	if got[1].ParticipantID != "b" || got[1].Delta != 90 || !got[1].SubmittedAt.Equal(submitted) {
		t.Errorf("unexpected record: %+v", got[1])
	}
	if got[2].Kind != "suppress" || got[2].CommittedAt.IsZero() {
		t.Errorf("unexpected record: %+v", got[2])
	}

	last, err := store.LastGeneration(ctx, "global")
	if err != nil || last != 3 {
		t.Errorf("expected last generation 3, got %d (%v)", last, err)
	}
	last, err = store.LastGeneration(ctx, "monthly")
	if err != nil || last != 0 {
		t.Errorf("expected last generation 0 for empty board, got %d (%v)", last, err)
	}
}

func TestAppendRejectsDuplicateGeneration(t *testing.T) {
	store, _ := openTempStore(t)
	ctx := context.Background()
	r := ledger.Record{Board: "global", Generation: 1, Kind: "delta", ParticipantID: "a", Delta: 1, CommandID: 1}

	if err := store.Append(ctx, r); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, r); err == nil {
		t.Fatal("expected duplicate generation to fail")
	}
	if err := store.Append(ctx, ledger.Record{Board: "global"}); err == nil {
		t.Fatal("expected incomplete record to fail")
	}
}

func TestAppendResumeWithoutParticipant(t *testing.T) {
	store, _ := openTempStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, ledger.Record{Board: "global", Generation: 1, Kind: "delta", Delta: 1, CommandID: 1}); err == nil {
		t.Fatal("expected delta without participant to fail")
	}
	if err := store.Append(ctx, ledger.Record{Board: "global", Generation: 40, Kind: ledger.KindResume}); err != nil {
		t.Fatalf("append resume: %v", err)
	}

	var got []ledger.Record
	if err := store.Replay(ctx, "global", func(r ledger.Record) error {
		got = append(got, r)
		return nil
	}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(got) != 1 || got[0].Kind != ledger.KindResume || got[0].Generation != 40 || got[0].ParticipantID != "" {
		t.Fatalf("unexpected records: %+v", got)
	}
}

func TestReplayStopsOnCallbackError(t *testing.T) {
	store, _ := openTempStore(t)
	ctx := context.Background()
	for gen := uint64(1); gen <= 3; gen++ {
		if err := store.Append(ctx, ledger.Record{Board: "global", Generation: gen, Kind: "delta", ParticipantID: "a", Delta: 1, CommandID: gen}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	stop := errors.New("stop")
	calls := 0
	err := store.Replay(ctx, "global", func(ledger.Record) error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || calls != 2 {
		t.Fatalf("expected stop after 2 calls, got %d (%v)", calls, err)
	}
}

func TestReopenKeepsDataAndSkipsAppliedMigrations(t *testing.T) {
	store, path := openTempStore(t)
	ctx := context.Background()
	if err := store.Append(ctx, ledger.Record{Board: "global", Generation: 1, Kind: "delta", ParticipantID: "a", Delta: 1, CommandID: 1}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	last, err := reopened.LastGeneration(ctx, "global")
	if err != nil || last != 1 {
		t.Fatalf("expected data to survive reopen, got %d (%v)", last, err)
	}
}

func TestUpSection(t *testing.T) {
	in := "-- +migrate Up\nCREATE TABLE x (id INT);\n-- +migrate Down\nDROP TABLE x;\n"
	if got := upSection(in); got != "\nCREATE TABLE x (id INT);\n" {
		t.Errorf("unexpected up section: %q", got)
	}
	if got := upSection("SELECT 1;"); got != "SELECT 1;" {
		t.Errorf("expected whole content without markers, got %q", got)
	}
}
