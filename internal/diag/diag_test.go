package diag

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kalambet/sift/internal/store"
)

func openTestStore(t *testing.T, dbPath string) *store.Store {
	t.Helper()
	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("Open(%s) failed: %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func indexSessions(t *testing.T, s *store.Store) {
	t.Helper()
	sessions := []store.SessionRecord{
		{Path: "/logs/a.jsonl", Mtime: 1, Size: 1, Agent: "codex", LastMessageAt: "2025-01-01T00:00:00Z"},
		{Path: "/logs/b.jsonl", Mtime: 2, Size: 2, Agent: "codex", LastMessageAt: "2025-02-01T00:00:00Z"},
		{Path: "/logs/c.jsonl", Mtime: 3, Size: 3, LastMessageAt: "2025-01-15T00:00:00Z"},
	}
	for _, rec := range sessions {
		if err := s.IndexSession(rec, "", nil); err != nil {
			t.Fatalf("IndexSession %s: %v", rec.Path, err)
		}
	}
}

func TestLoadStats(t *testing.T) {
	s := openTestStore(t, ":memory:")
	indexSessions(t, s)

	stats, err := LoadStats(s)
	if err != nil {
		t.Fatalf("LoadStats: %v", err)
	}
	if stats.SessionCount != 3 {
		t.Errorf("SessionCount = %d, want 3", stats.SessionCount)
	}
	if stats.OldestMessageAt != "2025-01-01T00:00:00Z" {
		t.Errorf("OldestMessageAt = %q", stats.OldestMessageAt)
	}
	if stats.NewestMessageAt != "2025-02-01T00:00:00Z" {
		t.Errorf("NewestMessageAt = %q", stats.NewestMessageAt)
	}
}

func TestLoadStatsEmptyIndex(t *testing.T) {
	s := openTestStore(t, ":memory:")

	stats, err := LoadStats(s)
	if err != nil {
		t.Fatalf("LoadStats: %v", err)
	}
	if stats.SessionCount != 0 {
		t.Errorf("SessionCount = %d, want 0", stats.SessionCount)
	}
	if stats.OldestMessageAt != "" || stats.NewestMessageAt != "" {
		t.Errorf("date bounds = (%q,%q), want empty", stats.OldestMessageAt, stats.NewestMessageAt)
	}
}

func TestLoadAgents(t *testing.T) {
	s := openTestStore(t, ":memory:")
	indexSessions(t, s)

	agents, err := LoadAgents(s)
	if err != nil {
		t.Fatalf("LoadAgents: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("got %d agents, want 2", len(agents))
	}
	if agents[0].Name != "codex" || agents[0].SessionCount != 2 {
		t.Errorf("top agent = %+v", agents[0])
	}
}

func TestRunDoctorHealthy(t *testing.T) {
	root := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "index.sqlite")
	s := openTestStore(t, dbPath)
	indexSessions(t, s)
	s.Close()

	report := RunDoctor(context.Background(), dbPath, root)

	if !report.RootExists {
		t.Error("RootExists = false")
	}
	if !report.DBExists {
		t.Error("DBExists = false")
	}
	if !report.SchemaOK {
		t.Errorf("SchemaOK = false (schema_error: %s)", report.SchemaError)
	}
	if !report.FTS5Available {
		t.Error("FTS5Available = false")
	}
	if report.IndexedSessions != 3 {
		t.Errorf("IndexedSessions = %d, want 3", report.IndexedSessions)
	}
	if report.NewestMessageAt != "2025-02-01T00:00:00Z" {
		t.Errorf("NewestMessageAt = %q", report.NewestMessageAt)
	}
}

func TestRunDoctorMissingEverything(t *testing.T) {
	report := RunDoctor(context.Background(),
		filepath.Join(t.TempDir(), "absent.sqlite"),
		filepath.Join(t.TempDir(), "absent-root"))

	if report.RootExists {
		t.Error("RootExists = true for missing root")
	}
	if report.DBExists {
		t.Error("DBExists = true for missing database")
	}
	if report.SchemaOK {
		t.Error("SchemaOK = true without a database")
	}
	if report.IndexedSessions != 0 {
		t.Errorf("IndexedSessions = %d, want 0", report.IndexedSessions)
	}
}

func TestRunDoctorCorruptDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.sqlite")
	if err := os.WriteFile(dbPath, []byte("definitely not a sqlite file"), 0o644); err != nil {
		t.Fatal(err)
	}

	report := RunDoctor(context.Background(), dbPath, t.TempDir())
	if !report.DBExists {
		t.Error("DBExists = false, file is present")
	}
	if report.SchemaOK {
		t.Error("SchemaOK = true for corrupt database")
	}
	if report.SchemaError == "" {
		t.Error("SchemaError empty, want a diagnostic")
	}
}
