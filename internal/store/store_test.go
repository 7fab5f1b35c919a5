package store

import (
	"fmt"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSession(path string) SessionRecord {
	return SessionRecord{
		Path:          path,
		Mtime:         1700000000,
		Size:          512,
		CreatedAt:     "2025-01-01T10:00:00Z",
		LastMessageAt: "2025-01-01T11:00:00Z",
		Agent:         "codex",
		Workspace:     "/home/u/proj",
		Title:         "fix the build",
		MessageCount:  2,
		Snippet:       "[user] fix the build",
	}
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.sqlite")

	s1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

// TestIndexesExist verifies that the session and message indexes are created by the migration.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{
		"idx_sessions_last_message_at",
		"idx_sessions_agent",
		"idx_sessions_workspace",
		"idx_sessions_repo_name",
		"idx_sessions_branch",
		"idx_messages_session_turn",
	}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

// TestIndexSessionRoundTrip indexes one session and reads the row back.
func TestIndexSessionRoundTrip(t *testing.T) {
	s := openTestStore(t)

	want := testSession("/logs/a.jsonl")
	msgs := []MessageRecord{
		{TurnIndex: 0, Role: "user", Timestamp: "2025-01-01T10:00:00Z", Text: "fix the build"},
		{TurnIndex: 1, Role: "assistant", Timestamp: "2025-01-01T11:00:00Z", Text: "done"},
	}
	if err := s.IndexSession(want, "[user] fix the build\n[assistant] done", msgs); err != nil {
		t.Fatalf("IndexSession: %v", err)
	}

	got, err := s.GetSession("/logs/a.jsonl")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Agent != want.Agent {
		t.Errorf("Agent = %q, want %q", got.Agent, want.Agent)
	}
	if got.Title != want.Title {
		t.Errorf("Title = %q, want %q", got.Title, want.Title)
	}
	if got.MessageCount != want.MessageCount {
		t.Errorf("MessageCount = %d, want %d", got.MessageCount, want.MessageCount)
	}
	if got.Mtime != want.Mtime || got.Size != want.Size {
		t.Errorf("fingerprint = (%d,%d), want (%d,%d)", got.Mtime, got.Size, want.Mtime, want.Size)
	}

	count, err := s.MessageCount("/logs/a.jsonl")
	if err != nil {
		t.Fatalf("MessageCount: %v", err)
	}
	if count != 2 {
		t.Errorf("message count = %d, want 2", count)
	}
}

// TestGetSessionNotFound verifies that an unknown path returns ErrNotFound.
func TestGetSessionNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetSession("/logs/missing.jsonl")
	if err != ErrNotFound {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

// TestIndexSessionReplacesMessages re-indexes a path with fewer turns and
// verifies old rows do not survive.
func TestIndexSessionReplacesMessages(t *testing.T) {
	s := openTestStore(t)

	rec := testSession("/logs/b.jsonl")
	first := []MessageRecord{
		{TurnIndex: 0, Role: "user", Text: "alpha"},
		{TurnIndex: 1, Role: "assistant", Text: "beta"},
		{TurnIndex: 2, Role: "user", Text: "gamma"},
	}
	if err := s.IndexSession(rec, "[user] alpha\n[assistant] beta\n[user] gamma", first); err != nil {
		t.Fatalf("IndexSession (first): %v", err)
	}

	rec.MessageCount = 1
	second := []MessageRecord{{TurnIndex: 0, Role: "user", Text: "delta"}}
	if err := s.IndexSession(rec, "[user] delta", second); err != nil {
		t.Fatalf("IndexSession (second): %v", err)
	}

	count, err := s.MessageCount("/logs/b.jsonl")
	if err != nil {
		t.Fatalf("MessageCount: %v", err)
	}
	if count != 1 {
		t.Errorf("message count = %d, want 1 after re-index", count)
	}

	// Old turns must not be findable.
	hits, err := s.SearchMessages(`"gamma"`, SearchFilter{Limit: 10})
	if err != nil {
		t.Fatalf("SearchMessages: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("got %d hits for removed turn, want 0", len(hits))
	}

	hits, err = s.SearchMessages(`"delta"`, SearchFilter{Limit: 10})
	if err != nil {
		t.Fatalf("SearchMessages: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits for new turn, want 1", len(hits))
	}
	if hits[0].TurnIndex != 0 {
		t.Errorf("TurnIndex = %d, want 0", hits[0].TurnIndex)
	}
}

// TestRemoveSession removes a session and verifies no trace remains in any table.
func TestRemoveSession(t *testing.T) {
	s := openTestStore(t)

	rec := testSession("/logs/c.jsonl")
	msgs := []MessageRecord{{TurnIndex: 0, Role: "user", Text: "ephemeral"}}
	if err := s.IndexSession(rec, "[user] ephemeral", msgs); err != nil {
		t.Fatalf("IndexSession: %v", err)
	}

	if err := s.RemoveSession("/logs/c.jsonl"); err != nil {
		t.Fatalf("RemoveSession: %v", err)
	}

	if _, err := s.GetSession("/logs/c.jsonl"); err != ErrNotFound {
		t.Errorf("GetSession after removal = %v, want ErrNotFound", err)
	}

	sessionHits, err := s.SearchSessions(`"ephemeral"`, SearchFilter{Limit: 10})
	if err != nil {
		t.Fatalf("SearchSessions: %v", err)
	}
	if len(sessionHits) != 0 {
		t.Errorf("got %d session hits after removal, want 0", len(sessionHits))
	}

	messageHits, err := s.SearchMessages(`"ephemeral"`, SearchFilter{Limit: 10})
	if err != nil {
		t.Fatalf("SearchMessages: %v", err)
	}
	if len(messageHits) != 0 {
		t.Errorf("got %d message hits after removal, want 0", len(messageHits))
	}
}

// TestRemoveSessionUnknownPath verifies removal of an unindexed path is a no-op.
func TestRemoveSessionUnknownPath(t *testing.T) {
	s := openTestStore(t)

	if err := s.RemoveSession("/logs/never-indexed.jsonl"); err != nil {
		t.Errorf("RemoveSession: %v", err)
	}
}

// TestListIndexed verifies fingerprints come back for every indexed path.
func TestListIndexed(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 3; i++ {
		rec := testSession(fmt.Sprintf("/logs/fp-%d.jsonl", i))
		rec.Mtime = int64(1000 + i)
		rec.Size = int64(10 * i)
		if err := s.IndexSession(rec, "content", nil); err != nil {
			t.Fatalf("IndexSession %d: %v", i, err)
		}
	}

	entries, err := s.ListIndexed()
	if err != nil {
		t.Fatalf("ListIndexed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	byPath := map[string]Fingerprint{}
	for _, fp := range entries {
		byPath[fp.Path] = fp
	}
	fp, ok := byPath["/logs/fp-2.jsonl"]
	if !ok {
		t.Fatal("fingerprint for /logs/fp-2.jsonl missing")
	}
	if fp.Mtime != 1002 || fp.Size != 20 {
		t.Errorf("fingerprint = (%d,%d), want (1002,20)", fp.Mtime, fp.Size)
	}
}

// TestSearchSessionsFilters verifies persisted-column predicates narrow results.
func TestSearchSessionsFilters(t *testing.T) {
	s := openTestStore(t)

	a := testSession("/logs/agent-a.jsonl")
	a.Agent = "codex"
	a.RepoName = "widgets"
	b := testSession("/logs/agent-b.jsonl")
	b.Agent = "claude"
	b.RepoName = "gadgets"
	for _, rec := range []SessionRecord{a, b} {
		if err := s.IndexSession(rec, "deploy pipeline broke", nil); err != nil {
			t.Fatalf("IndexSession %s: %v", rec.Path, err)
		}
	}

	hits, err := s.SearchSessions(`"deploy"`, SearchFilter{Agent: "claude", Limit: 10})
	if err != nil {
		t.Fatalf("SearchSessions: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if hits[0].Path != "/logs/agent-b.jsonl" {
		t.Errorf("Path = %q, want agent-b", hits[0].Path)
	}

	hits, err = s.SearchSessions(`"deploy"`, SearchFilter{Repo: "widgets", Limit: 10})
	if err != nil {
		t.Fatalf("SearchSessions (repo): %v", err)
	}
	if len(hits) != 1 || hits[0].Path != "/logs/agent-a.jsonl" {
		t.Errorf("repo filter returned %v, want only agent-a", hits)
	}
}

// TestSearchMessagesRoleFilter verifies the role predicate applies at
// message scope.
func TestSearchMessagesRoleFilter(t *testing.T) {
	s := openTestStore(t)

	rec := testSession("/logs/roles.jsonl")
	msgs := []MessageRecord{
		{TurnIndex: 0, Role: "user", Text: "explain goroutines"},
		{TurnIndex: 1, Role: "assistant", Text: "goroutines are lightweight threads"},
	}
	if err := s.IndexSession(rec, "", msgs); err != nil {
		t.Fatalf("IndexSession: %v", err)
	}

	hits, err := s.SearchMessages(`"goroutines"`, SearchFilter{Role: "user", Limit: 10})
	if err != nil {
		t.Fatalf("SearchMessages: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if hits[0].Role != "user" {
		t.Errorf("Role = %q, want user", hits[0].Role)
	}

	hits, err = s.SearchMessages(`"goroutines"`, SearchFilter{Limit: 10})
	if err != nil {
		t.Fatalf("SearchMessages (no role): %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("got %d hits without role filter, want 2", len(hits))
	}
}

// TestMessagesInRange verifies range lookups are inclusive and ordered.
func TestMessagesInRange(t *testing.T) {
	s := openTestStore(t)

	rec := testSession("/logs/range.jsonl")
	var msgs []MessageRecord
	for i := 0; i < 6; i++ {
		msgs = append(msgs, MessageRecord{TurnIndex: int64(i), Role: "user", Text: fmt.Sprintf("turn %d", i)})
	}
	if err := s.IndexSession(rec, "", msgs); err != nil {
		t.Fatalf("IndexSession: %v", err)
	}

	got, err := s.MessagesInRange("/logs/range.jsonl", 1, 3)
	if err != nil {
		t.Fatalf("MessagesInRange: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	for i, msg := range got {
		if msg.TurnIndex != int64(i+1) {
			t.Errorf("turn[%d] = %d, want %d", i, msg.TurnIndex, i+1)
		}
	}
}

// TestSessionStatsAndAgents verifies the aggregate queries used by stats output.
func TestSessionStatsAndAgents(t *testing.T) {
	s := openTestStore(t)

	specs := []struct {
		path, agent, lastAt string
	}{
		{"/logs/s1.jsonl", "codex", "2025-01-01T00:00:00Z"},
		{"/logs/s2.jsonl", "codex", "2025-03-01T00:00:00Z"},
		{"/logs/s3.jsonl", "", "2025-02-01T00:00:00Z"},
	}
	for _, spec := range specs {
		rec := testSession(spec.path)
		rec.Agent = spec.agent
		rec.LastMessageAt = spec.lastAt
		if err := s.IndexSession(rec, "", nil); err != nil {
			t.Fatalf("IndexSession %s: %v", spec.path, err)
		}
	}

	count, oldest, newest, err := s.SessionStats()
	if err != nil {
		t.Fatalf("SessionStats: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	if oldest != "2025-01-01T00:00:00Z" {
		t.Errorf("oldest = %q, want 2025-01-01", oldest)
	}
	if newest != "2025-03-01T00:00:00Z" {
		t.Errorf("newest = %q, want 2025-03-01", newest)
	}

	agents, err := s.AgentCounts()
	if err != nil {
		t.Fatalf("AgentCounts: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("got %d agents, want 2", len(agents))
	}
	if agents[0].Name != "codex" || agents[0].SessionCount != 2 {
		t.Errorf("top agent = %+v, want codex with 2 sessions", agents[0])
	}
	if agents[1].Name != "(unknown)" {
		t.Errorf("second agent = %q, want (unknown)", agents[1].Name)
	}
}
