package store

import (
	"database/sql"
	"fmt"
)

// IndexSession replaces the session row, all message rows, and both FTS
// shadow rows for rec.Path in a single transaction. Message rows are
// deleted and re-inserted, never merged, so turn indices always form a
// contiguous 0-based range.
func (s *Store) IndexSession(rec SessionRecord, content string, messages []MessageRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning index transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO sessions (path, mtime, size, hash, created_at, last_message_at, agent, workspace, title, message_count, snippet, repo_root, repo_name, branch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			mtime = excluded.mtime,
			size = excluded.size,
			hash = excluded.hash,
			created_at = excluded.created_at,
			last_message_at = excluded.last_message_at,
			agent = excluded.agent,
			workspace = excluded.workspace,
			title = excluded.title,
			message_count = excluded.message_count,
			snippet = excluded.snippet,
			repo_root = excluded.repo_root,
			repo_name = excluded.repo_name,
			branch = excluded.branch`,
		rec.Path, rec.Mtime, rec.Size, nullable(rec.Hash),
		nullable(rec.CreatedAt), nullable(rec.LastMessageAt),
		nullable(rec.Agent), nullable(rec.Workspace), nullable(rec.Title),
		rec.MessageCount, rec.Snippet,
		nullable(rec.RepoRoot), nullable(rec.RepoName), nullable(rec.Branch),
	)
	if err != nil {
		return fmt.Errorf("upserting session %s: %w", rec.Path, err)
	}

	if _, err := tx.Exec("DELETE FROM sessions_fts WHERE path = ?", rec.Path); err != nil {
		return fmt.Errorf("clearing session fts for %s: %w", rec.Path, err)
	}
	if _, err := tx.Exec("INSERT INTO sessions_fts (content, path) VALUES (?, ?)", content, rec.Path); err != nil {
		return fmt.Errorf("inserting session fts for %s: %w", rec.Path, err)
	}

	if err := replaceMessagesTx(tx, rec.Path, messages); err != nil {
		return err
	}

	return tx.Commit()
}

func replaceMessagesTx(tx *sql.Tx, path string, messages []MessageRecord) error {
	if _, err := tx.Exec("DELETE FROM messages_fts WHERE session_path = ?", path); err != nil {
		return fmt.Errorf("clearing message fts for %s: %w", path, err)
	}
	if _, err := tx.Exec("DELETE FROM messages WHERE session_path = ?", path); err != nil {
		return fmt.Errorf("clearing messages for %s: %w", path, err)
	}

	for _, msg := range messages {
		res, err := tx.Exec(`
			INSERT INTO messages (session_path, turn_index, role, timestamp, text)
			VALUES (?, ?, ?, ?, ?)`,
			path, msg.TurnIndex, nullable(msg.Role), nullable(msg.Timestamp), msg.Text,
		)
		if err != nil {
			return fmt.Errorf("inserting message %s#%d: %w", path, msg.TurnIndex, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("resolving message id for %s#%d: %w", path, msg.TurnIndex, err)
		}
		if _, err := tx.Exec(`
			INSERT INTO messages_fts (text, message_id, session_path, role)
			VALUES (?, ?, ?, ?)`,
			msg.Text, id, path, nullable(msg.Role),
		); err != nil {
			return fmt.Errorf("inserting message fts %s#%d: %w", path, msg.TurnIndex, err)
		}
	}

	return nil
}

// RemoveSession deletes the session row, its message rows, and both FTS
// shadows for path in a single transaction.
func (s *Store) RemoveSession(path string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning removal transaction: %w", err)
	}
	defer tx.Rollback()

	statements := []string{
		"DELETE FROM messages_fts WHERE session_path = ?",
		"DELETE FROM messages WHERE session_path = ?",
		"DELETE FROM sessions_fts WHERE path = ?",
		"DELETE FROM sessions WHERE path = ?",
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt, path); err != nil {
			return fmt.Errorf("removing session %s: %w", path, err)
		}
	}

	return tx.Commit()
}

// ListIndexed returns the fingerprint of every indexed session.
func (s *Store) ListIndexed() ([]Fingerprint, error) {
	rows, err := s.db.Query("SELECT path, mtime, size FROM sessions")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Fingerprint
	for rows.Next() {
		var fp Fingerprint
		if err := rows.Scan(&fp.Path, &fp.Mtime, &fp.Size); err != nil {
			return nil, err
		}
		entries = append(entries, fp)
	}
	return entries, rows.Err()
}

// SearchSessions runs a full-text match against session content, with
// persisted-column predicates from f. Results are ordered by ascending
// bm25 score, then descending last_message_at.
func (s *Store) SearchSessions(match string, f SearchFilter) ([]SessionHit, error) {
	query := `
		SELECT s.path, s.title, s.agent, s.workspace, s.repo_root, s.repo_name, s.branch,
		       s.last_message_at, s.snippet, bm25(sessions_fts) AS score
		FROM sessions_fts
		JOIN sessions s ON s.path = sessions_fts.path
		WHERE sessions_fts MATCH ?`
	args := []any{match}

	query, args = appendSessionPredicates(query, args, f, "s.last_message_at")
	query += `
		ORDER BY score ASC, s.last_message_at DESC
		LIMIT ?`
	args = append(args, f.Limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []SessionHit
	for rows.Next() {
		var hit SessionHit
		var title, agent, workspace, repoRoot, repoName, branch, lastAt, snippet sql.NullString
		if err := rows.Scan(&hit.Path, &title, &agent, &workspace, &repoRoot, &repoName, &branch, &lastAt, &snippet, &hit.Score); err != nil {
			return nil, err
		}
		hit.Title = title.String
		hit.Agent = agent.String
		hit.Workspace = workspace.String
		hit.RepoRoot = repoRoot.String
		hit.RepoName = repoName.String
		hit.Branch = branch.String
		hit.LastMessageAt = lastAt.String
		hit.Snippet = snippet.String
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// SearchMessages runs a full-text match against individual turns. The role
// predicate applies here; context windows are a separate lookup.
func (s *Store) SearchMessages(match string, f SearchFilter) ([]MessageHit, error) {
	query := `
		SELECT m.session_path, m.turn_index, m.role, m.timestamp, m.text,
		       s.title, s.agent, s.workspace, s.repo_root, s.repo_name, s.branch,
		       bm25(messages_fts) AS score
		FROM messages_fts
		JOIN messages m ON m.id = messages_fts.message_id
		JOIN sessions s ON s.path = m.session_path
		WHERE messages_fts MATCH ?`
	args := []any{match}

	if f.Role != "" {
		query += " AND m.role = ?"
		args = append(args, f.Role)
	}
	query, args = appendSessionPredicates(query, args, f, "m.timestamp")
	query += `
		ORDER BY score ASC, m.timestamp DESC
		LIMIT ?`
	args = append(args, f.Limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []MessageHit
	for rows.Next() {
		var hit MessageHit
		var role, ts, title, agent, workspace, repoRoot, repoName, branch sql.NullString
		if err := rows.Scan(&hit.Path, &hit.TurnIndex, &role, &ts, &hit.Text, &title, &agent, &workspace, &repoRoot, &repoName, &branch, &hit.Score); err != nil {
			return nil, err
		}
		hit.Role = role.String
		hit.Timestamp = ts.String
		hit.Title = title.String
		hit.Agent = agent.String
		hit.Workspace = workspace.String
		hit.RepoRoot = repoRoot.String
		hit.RepoName = repoName.String
		hit.Branch = branch.String
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// appendSessionPredicates adds the shared session-column predicates and the
// date bounds on timeColumn.
func appendSessionPredicates(query string, args []any, f SearchFilter, timeColumn string) (string, []any) {
	if f.Agent != "" {
		query += " AND s.agent = ?"
		args = append(args, f.Agent)
	}
	if f.Workspace != "" {
		query += " AND s.workspace = ?"
		args = append(args, f.Workspace)
	}
	if f.Repo != "" {
		query += " AND (s.repo_name = ? OR s.repo_root = ?)"
		args = append(args, f.Repo, f.Repo)
	}
	if f.Branch != "" {
		query += " AND s.branch = ?"
		args = append(args, f.Branch)
	}
	if f.After != "" {
		query += " AND " + timeColumn + " >= ?"
		args = append(args, f.After)
	}
	if f.Before != "" {
		query += " AND " + timeColumn + " <= ?"
		args = append(args, f.Before)
	}
	return query, args
}

// MessagesInRange returns the turns of a session with turn_index in
// [lo, hi], ordered ascending. No role filtering: context windows show the
// whole conversation.
func (s *Store) MessagesInRange(path string, lo, hi int64) ([]ContextMessage, error) {
	rows, err := s.db.Query(`
		SELECT turn_index, role, timestamp, text
		FROM messages
		WHERE session_path = ? AND turn_index >= ? AND turn_index <= ?
		ORDER BY turn_index ASC`,
		path, lo, hi,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []ContextMessage
	for rows.Next() {
		var msg ContextMessage
		var role, ts sql.NullString
		if err := rows.Scan(&msg.TurnIndex, &role, &ts, &msg.Text); err != nil {
			return nil, err
		}
		msg.Role = role.String
		msg.Timestamp = ts.String
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MessageCount returns the number of message rows stored for a path.
func (s *Store) MessageCount(path string) (int64, error) {
	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM messages WHERE session_path = ?", path).Scan(&count)
	return count, err
}

// GetSession loads a single session row by path.
func (s *Store) GetSession(path string) (SessionRecord, error) {
	var rec SessionRecord
	var hash, createdAt, lastAt, agent, workspace, title, snippet, repoRoot, repoName, branch sql.NullString
	err := s.db.QueryRow(`
		SELECT path, mtime, size, hash, created_at, last_message_at, agent, workspace, title, message_count, snippet, repo_root, repo_name, branch
		FROM sessions WHERE path = ?`, path,
	).Scan(&rec.Path, &rec.Mtime, &rec.Size, &hash, &createdAt, &lastAt, &agent, &workspace, &title, &rec.MessageCount, &snippet, &repoRoot, &repoName, &branch)
	if err == sql.ErrNoRows {
		return SessionRecord{}, ErrNotFound
	}
	if err != nil {
		return SessionRecord{}, err
	}
	rec.Hash = hash.String
	rec.CreatedAt = createdAt.String
	rec.LastMessageAt = lastAt.String
	rec.Agent = agent.String
	rec.Workspace = workspace.String
	rec.Title = title.String
	rec.Snippet = snippet.String
	rec.RepoRoot = repoRoot.String
	rec.RepoName = repoName.String
	rec.Branch = branch.String
	return rec, nil
}

// SessionStats returns the session count and the oldest/newest
// last_message_at values.
func (s *Store) SessionStats() (count int64, oldest, newest string, err error) {
	var oldestNull, newestNull sql.NullString
	err = s.db.QueryRow("SELECT COUNT(*), MIN(last_message_at), MAX(last_message_at) FROM sessions").
		Scan(&count, &oldestNull, &newestNull)
	return count, oldestNull.String, newestNull.String, err
}

// AgentCounts returns the distinct agents with session counts, most
// sessions first.
func (s *Store) AgentCounts() ([]AgentCount, error) {
	rows, err := s.db.Query(`
		SELECT COALESCE(agent, '(unknown)') AS name, COUNT(*) AS count
		FROM sessions
		GROUP BY agent
		ORDER BY count DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []AgentCount
	for rows.Next() {
		var a AgentCount
		if err := rows.Scan(&a.Name, &a.SessionCount); err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// nullable maps an empty string to a SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
