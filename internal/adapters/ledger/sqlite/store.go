// Package sqlite implements the replay ledger on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okian/podium/internal/adapters/ledger"
	"github.com/okian/podium/internal/adapters/ledger/sqlite/migrations"
)

// ErrPathRequired is returned by Open for an empty path.
var ErrPathRequired = errors.New("ledger path is required")

// Store is a SQLite-backed ledger.
type Store struct {
	db *sql.DB
}

var _ ledger.Ledger = (*Store)(nil)

// Open opens (creating if needed) the ledger at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrPathRequired
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append implements ledger.Ledger.
func (s *Store) Append(ctx context.Context, r ledger.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.Board == "" || r.Generation == 0 {
		return fmt.Errorf("append: board and generation are required")
	}
	if r.ParticipantID == "" && r.Kind != ledger.KindResume {
		return fmt.Errorf("append: participant is required for %q records", r.Kind)
	}
	if r.CommittedAt.IsZero() {
		r.CommittedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO commits (
	board,
	generation,
	kind,
	participant_id,
	delta,
	command_id,
	submitted_at,
	committed_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		r.Board,
		int64(r.Generation),
		r.Kind,
		r.ParticipantID,
		r.Delta,
		int64(r.CommandID),
		unixMilli(r.SubmittedAt),
		r.CommittedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append generation %d: %w", r.Generation, err)
	}
	return nil
}

// Replay implements ledger.Ledger.
func (s *Store) Replay(ctx context.Context, board string, fn func(ledger.Record) error) error {
	rows, err := s.db.QueryContext(ctx, `
SELECT generation, kind, participant_id, delta, command_id, submitted_at, committed_at
FROM commits
WHERE board = ?
ORDER BY generation ASC
`, board)
	if err != nil {
		return fmt.Errorf("query commits: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			gen, cmdID             int64
			submitted, committedAt int64
			r                      = ledger.Record{Board: board}
		)
		if err := rows.Scan(&gen, &r.Kind, &r.ParticipantID, &r.Delta, &cmdID, &submitted, &committedAt); err != nil {
			return fmt.Errorf("scan commit: %w", err)
		}
		r.Generation = uint64(gen)
		r.CommandID = uint64(cmdID)
		if submitted != 0 {
			r.SubmittedAt = time.UnixMilli(submitted).UTC()
		}
		r.CommittedAt = time.UnixMilli(committedAt).UTC()

		if err := fn(r); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate commits: %w", err)
	}
	return nil
}

// LastGeneration implements ledger.Ledger.
func (s *Store) LastGeneration(ctx context.Context, board string) (uint64, error) {
	var gen sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		"SELECT MAX(generation) FROM commits WHERE board = ?", board,
	).Scan(&gen); err != nil {
		return 0, fmt.Errorf("last generation: %w", err)
	}
	if !gen.Valid {
		return 0, nil
	}
	return uint64(gen.Int64), nil
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}
