// Package journal keeps an append-only SQLite log of what the pipeline
// published. It is an audit trail: nothing reads it back to resume work.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Outcome is how a unit left the pipeline.
type Outcome string

const (
	OutcomeEnriched Outcome = "enriched"
	OutcomeVerbatim Outcome = "verbatim"
	OutcomeFailed   Outcome = "failed"
)

// Entry is one publication attempt.
type Entry struct {
	ID         int64
	UnitID     string
	GroupKey   string
	MessageIDs []int
	Outcome    Outcome
	CaptionLen int
	Error      string
	CreatedAt  time.Time
}

// row mirrors the publications table.
type row struct {
	ID         int64     `db:"id"`
	UnitID     string    `db:"unit_id"`
	GroupKey   string    `db:"group_key"`
	MessageIDs string    `db:"message_ids"`
	Outcome    string    `db:"outcome"`
	CaptionLen int       `db:"caption_len"`
	Error      string    `db:"error"`
	CreatedAt  time.Time `db:"created_at"`
}

// Store implements the journal on SQLite.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Open creates the database file if needed and applies migrations.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create journal directory %s: %w", dir, err)
	}

	db, err := sqlx.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open journal: %w", err)
	}
	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db.DB, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal migration failed: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Record appends an entry. A zero CreatedAt is set to now.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO publications (unit_id, group_key, message_ids, outcome, caption_len, error, created_at)
		 VALUES (:unit_id, :group_key, :message_ids, :outcome, :caption_len, :error, :created_at)`,
		row{
			UnitID:     e.UnitID,
			GroupKey:   e.GroupKey,
			MessageIDs: joinIDs(e.MessageIDs),
			Outcome:    string(e.Outcome),
			CaptionLen: e.CaptionLen,
			Error:      e.Error,
			CreatedAt:  e.CreatedAt.UTC(),
		},
	)
	if err != nil {
		return fmt.Errorf("journal record %s: %w", e.UnitID, err)
	}
	return nil
}

// Recent returns the latest entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []row
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, unit_id, group_key, message_ids, outcome, caption_len, error, created_at
		 FROM publications ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}

	out := make([]Entry, len(rows))
	for i, r := range rows {
		out[i] = Entry{
			ID:         r.ID,
			UnitID:     r.UnitID,
			GroupKey:   r.GroupKey,
			MessageIDs: splitIDs(r.MessageIDs),
			Outcome:    Outcome(r.Outcome),
			CaptionLen: r.CaptionLen,
			Error:      r.Error,
			CreatedAt:  r.CreatedAt,
		}
	}
	return out, nil
}

// Stats counts entries per outcome.
func (s *Store) Stats(ctx context.Context) (map[Outcome]int, error) {
	var counts []struct {
		Outcome string `db:"outcome"`
		N       int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &counts, `SELECT outcome, COUNT(*) AS n FROM publications GROUP BY outcome`); err != nil {
		return nil, err
	}

	stats := make(map[Outcome]int, len(counts))
	for _, c := range counts {
		stats[Outcome(c.Outcome)] = c.N
	}
	return stats, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

func splitIDs(s string) []int {
	if s == "" {
		return nil
	}
	var ids []int
	for _, p := range strings.Split(s, ",") {
		if id, err := strconv.Atoi(p); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
