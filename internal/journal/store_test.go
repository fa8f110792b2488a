package journal

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"), testLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_AppliesMigrations(t *testing.T) {
	s := openTestStore(t)

	v, err := GetSchemaVersion(s.db.DB)
	if err != nil {
		t.Fatal(err)
	}
	if v != schemaVersion {
		t.Fatalf("expected schema version %d, got %d", schemaVersion, v)
	}
	if err := RunMigrations(s.db.DB, testLogger()); err != nil {
		t.Fatalf("second run should be a no-op: %v", err)
	}
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	entries := []Entry{
		{UnitID: "u1", MessageIDs: []int{5}, Outcome: OutcomeEnriched, CaptionLen: 320},
		{UnitID: "u2", GroupKey: "album", MessageIDs: []int{6, 7, 8}, Outcome: OutcomeVerbatim},
		{UnitID: "u3", MessageIDs: []int{9}, Outcome: OutcomeFailed, Error: "forbidden"},
	}
	for _, e := range entries {
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].UnitID != "u3" || got[0].Error != "forbidden" || got[0].Outcome != OutcomeFailed {
		t.Fatalf("newest entry wrong: %+v", got[0])
	}
	album := got[1]
	if album.GroupKey != "album" || len(album.MessageIDs) != 3 || album.MessageIDs[2] != 8 {
		t.Fatalf("album entry wrong: %+v", album)
	}
	if album.CreatedAt.IsZero() {
		t.Fatal("created_at should be set")
	}
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, o := range []Outcome{OutcomeEnriched, OutcomeEnriched, OutcomeVerbatim} {
		if err := s.Record(ctx, Entry{UnitID: "u", MessageIDs: []int{1}, Outcome: o}); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[OutcomeEnriched] != 2 || stats[OutcomeVerbatim] != 1 || stats[OutcomeFailed] != 0 {
		t.Fatalf("unexpected stats %v", stats)
	}
}

func TestSplitIDs(t *testing.T) {
	if ids := splitIDs(joinIDs([]int{3, 1, 2})); len(ids) != 3 || ids[0] != 3 || ids[2] != 2 {
		t.Fatalf("unexpected ids %v", ids)
	}
	if splitIDs("") != nil {
		t.Fatal("empty string should give no ids")
	}
}
