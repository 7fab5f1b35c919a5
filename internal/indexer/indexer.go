// Package indexer keeps the SQLite index synchronized with the session files
// on disk. A pass walks the sessions root, re-indexes files whose
// (mtime, size) fingerprint changed, and removes entries whose files are gone
// or no longer parse.
package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/sift/internal/config"
	"github.com/kalambet/sift/internal/gitinfo"
	"github.com/kalambet/sift/internal/store"
	"github.com/kalambet/sift/internal/transcript"
)

// SessionStore is the subset of the store the maintainer writes through.
type SessionStore interface {
	ListIndexed() ([]store.Fingerprint, error)
	IndexSession(rec store.SessionRecord, content string, messages []store.MessageRecord) error
	RemoveSession(path string) error
}

// Stats summarizes one index pass.
type Stats struct {
	RunID       string `json:"run_id"`
	Scanned     int    `json:"scanned"`
	Indexed     int    `json:"indexed"`
	Skipped     int    `json:"skipped"`
	Removed     int    `json:"removed"`
	ParseErrors int    `json:"parse_errors"`
}

// Maintainer runs incremental index passes over a sessions root.
type Maintainer struct {
	store  SessionStore
	logger *slog.Logger
}

// New creates a Maintainer writing through st.
func New(st SessionStore) *Maintainer {
	return &Maintainer{
		store:  st,
		logger: slog.Default(),
	}
}

// Run walks root and brings the index up to date. When full is set, every
// file is re-indexed regardless of its cached fingerprint. Parse failures
// are counted and never abort the pass; storage failures do.
func (m *Maintainer) Run(root string, full bool) (Stats, error) {
	stats := Stats{RunID: uuid.New().String()}

	existing, err := m.store.ListIndexed()
	if err != nil {
		return stats, fmt.Errorf("loading indexed sessions: %w", err)
	}
	known := make(map[string]store.Fingerprint, len(existing))
	for _, fp := range existing {
		known[fp.Path] = fp
	}

	seen := make(map[string]bool)
	repos := gitinfo.NewCollector()

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		format, ok := transcript.FormatForPath(path)
		if !ok {
			return nil
		}

		stats.Scanned++
		seen[path] = true

		info, err := d.Info()
		if err != nil {
			return err
		}
		mtime := info.ModTime().Unix()
		size := info.Size()

		prev, indexed := known[path]
		if !full && indexed && prev.Mtime == mtime && prev.Size == size {
			stats.Skipped++
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		contents := string(raw)

		parsed, parseErr := transcript.Parse(format, contents)
		if parseErr != nil {
			// Stale rows for a previously indexed file must not
			// outlive the file's parseability.
			if indexed {
				if err := m.store.RemoveSession(path); err != nil {
					return err
				}
				stats.Removed++
			}
			stats.ParseErrors++
			m.logger.Warn("unparseable session file", "path", path, "error", parseErr)
			return nil
		}
		if parsed.Malformed > 0 {
			m.logger.Debug("skipped malformed records", "path", path, "count", parsed.Malformed)
		}

		rec := buildRecord(path, mtime, size, contents, parsed)
		if rec.Agent == "" {
			rec.Agent = inferAgentFromRoot(root)
		}

		workspaceDir := workspaceDirFromMeta(parsed.Workspace)
		if workspaceDir == "" {
			workspaceDir = decodeWorkspaceFromPath(path)
		}
		repo := repos.Lookup(workspaceDir)
		rec.RepoRoot = repo.RepoRoot
		rec.RepoName = repo.RepoName
		rec.Branch = repo.Branch

		messages := make([]store.MessageRecord, len(parsed.Messages))
		for i, msg := range parsed.Messages {
			messages[i] = store.MessageRecord{
				TurnIndex: int64(i),
				Role:      msg.Role,
				Timestamp: msg.Timestamp,
				Text:      msg.Text,
			}
		}

		if err := m.store.IndexSession(rec, parsed.Content, messages); err != nil {
			return err
		}
		stats.Indexed++
		return nil
	})
	if walkErr != nil {
		return stats, fmt.Errorf("indexing %s: %w", root, walkErr)
	}

	for path := range known {
		if seen[path] {
			continue
		}
		if err := m.store.RemoveSession(path); err != nil {
			return stats, fmt.Errorf("removing vanished session %s: %w", path, err)
		}
		stats.Removed++
	}

	m.logger.Info("index pass complete",
		"run_id", stats.RunID,
		"root", root,
		"scanned", stats.Scanned,
		"indexed", stats.Indexed,
		"skipped", stats.Skipped,
		"removed", stats.Removed,
		"parse_errors", stats.ParseErrors)
	return stats, nil
}

func buildRecord(path string, mtime, size int64, contents string, parsed transcript.ParsedSession) store.SessionRecord {
	sum := sha256.Sum256([]byte(contents))

	createdAt := parsed.CreatedAt
	lastAt := parsed.LastMessageAt
	if createdAt == "" || lastAt == "" {
		fallback := time.Unix(mtime, 0).UTC().Format(time.RFC3339)
		if createdAt == "" {
			createdAt = fallback
		}
		if lastAt == "" {
			lastAt = fallback
		}
	}

	return store.SessionRecord{
		Path:          path,
		Mtime:         mtime,
		Size:          size,
		Hash:          hex.EncodeToString(sum[:]),
		CreatedAt:     createdAt,
		LastMessageAt: lastAt,
		Agent:         parsed.Agent,
		Workspace:     parsed.Workspace,
		Title:         parsed.Title,
		MessageCount:  parsed.MessageCount,
		Snippet:       parsed.Snippet,
	}
}

// inferAgentFromRoot derives an agent name from the sessions root, e.g.
// ~/.config/marvin/sessions -> "marvin".
func inferAgentFromRoot(root string) string {
	name := filepath.Base(filepath.Clean(root))
	if name == "sessions" {
		name = filepath.Base(filepath.Dir(filepath.Clean(root)))
	}
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return name
}

// workspaceDirFromMeta accepts the meta workspace value only when it names an
// existing directory.
func workspaceDirFromMeta(workspace string) string {
	if workspace == "" {
		return ""
	}
	expanded := config.ExpandHome(workspace)
	if fi, err := os.Stat(expanded); err == nil && fi.IsDir() {
		return expanded
	}
	return ""
}

// decodeWorkspaceFromPath recovers a workspace directory from a session
// file's parent component where path separators were encoded as "--", e.g.
// "home--u--proj" -> "/home/u/proj".
func decodeWorkspaceFromPath(sessionPath string) string {
	component := filepath.Base(filepath.Dir(sessionPath))
	if !strings.Contains(component, "--") {
		return ""
	}

	decoded := strings.ReplaceAll(component, "--", "/")
	for strings.Contains(decoded, "//") {
		decoded = strings.ReplaceAll(decoded, "//", "/")
	}
	if !strings.HasPrefix(decoded, "/") {
		decoded = "/" + decoded
	}

	if fi, err := os.Stat(decoded); err == nil && fi.IsDir() {
		return decoded
	}
	return ""
}
