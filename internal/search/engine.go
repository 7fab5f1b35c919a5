// Package search turns user queries into FTS5 matches against the index and
// shapes the results: scope selection, literal vs raw query modes, metadata
// filters, bm25 ranking, and context windows around message hits.
package search

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/sift/internal/store"
)

// defaultLimit applies when the caller does not cap the result count.
const defaultLimit = 10

// Scope selects which index a query runs against.
type Scope int

const (
	ScopeSession Scope = iota
	ScopeMessage
)

// ParseScope maps a CLI scope name to a Scope.
func ParseScope(name string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "session":
		return ScopeSession, nil
	case "message":
		return ScopeMessage, nil
	}
	return 0, fmt.Errorf("unknown scope %q (want session or message)", name)
}

// QueryMode selects how the query string reaches FTS5.
type QueryMode int

const (
	// ModeLiteral quotes every whitespace-separated token, so dates,
	// punctuation, and FTS5 keywords match as plain text.
	ModeLiteral QueryMode = iota
	// ModeRaw passes the query through unchanged for advanced FTS5 syntax.
	ModeRaw
)

// ErrEmptyQuery is returned for empty or whitespace-only queries before any
// store access.
var ErrEmptyQuery = errors.New("query is empty")

// SyntaxError reports a raw-mode query that FTS5 rejected, as opposed to a
// storage failure.
type SyntaxError struct {
	Query string
	cause error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid query syntax %q: %v", e.Query, e.cause)
}

func (e *SyntaxError) Unwrap() error { return e.cause }

// Filters narrows search results by persisted metadata.
type Filters struct {
	Agent     string
	Workspace string
	Repo      string // matches repo name or repo root
	Branch    string
	Role      string // message scope; empty defaults to "user"
	After     string
	Before    string
	// IncludeAllRoles disables the default role filter at message scope.
	IncludeAllRoles bool
	// Around is the context radius in turns fetched for each message hit.
	Around int
	Limit  int
}

// Engine answers queries against an open store.
type Engine struct {
	store *store.Store
}

// New creates an Engine over st.
func New(st *store.Store) *Engine {
	return &Engine{store: st}
}

// FindSessions runs a session-scope query: whole-transcript matching with
// session-level metadata filters.
func (e *Engine) FindSessions(query string, mode QueryMode, f Filters) ([]store.SessionHit, error) {
	match, err := compileMatch(query, mode)
	if err != nil {
		return nil, err
	}

	hits, err := e.store.SearchSessions(match, store.SearchFilter{
		Agent:     f.Agent,
		Workspace: f.Workspace,
		Repo:      f.Repo,
		Branch:    f.Branch,
		After:     f.After,
		Before:    f.Before,
		Limit:     effectiveLimit(f.Limit),
	})
	if err != nil {
		return nil, classifyMatchError(query, mode, err)
	}
	return hits, nil
}

// FindMessages runs a message-scope query. Unless IncludeAllRoles is set,
// an empty role filter defaults to "user" so agent chatter does not drown
// out the turns people actually typed. When Around > 0 each hit carries the
// surrounding turns, all roles, clipped to the session bounds.
func (e *Engine) FindMessages(query string, mode QueryMode, f Filters) ([]store.MessageHit, error) {
	match, err := compileMatch(query, mode)
	if err != nil {
		return nil, err
	}

	hits, err := e.store.SearchMessages(match, store.SearchFilter{
		Agent:     f.Agent,
		Workspace: f.Workspace,
		Repo:      f.Repo,
		Branch:    f.Branch,
		Role:      effectiveRole(f),
		After:     f.After,
		Before:    f.Before,
		Limit:     effectiveLimit(f.Limit),
	})
	if err != nil {
		return nil, classifyMatchError(query, mode, err)
	}

	if f.Around > 0 {
		for i := range hits {
			lo := hits[i].TurnIndex - int64(f.Around)
			if lo < 0 {
				lo = 0
			}
			hi := hits[i].TurnIndex + int64(f.Around)
			context, err := e.store.MessagesInRange(hits[i].Path, lo, hi)
			if err != nil {
				return nil, fmt.Errorf("loading context for %s#%d: %w", hits[i].Path, hits[i].TurnIndex, err)
			}
			hits[i].Context = context
		}
	}
	return hits, nil
}

// compileMatch validates the query and renders the FTS5 MATCH expression for
// the chosen mode.
func compileMatch(query string, mode QueryMode) (string, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return "", ErrEmptyQuery
	}
	if mode == ModeRaw {
		return trimmed, nil
	}

	tokens := strings.Fields(trimmed)
	quoted := make([]string, len(tokens))
	for i, token := range tokens {
		quoted[i] = `"` + strings.ReplaceAll(token, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " "), nil
}

func effectiveRole(f Filters) string {
	role := strings.ToLower(strings.TrimSpace(f.Role))
	if f.IncludeAllRoles {
		return role
	}
	if role == "" {
		role = "user"
	}
	return role
}

func effectiveLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return limit
}

// classifyMatchError separates FTS5 query-syntax rejections from storage
// failures. Literal-mode matches are always well formed, so anything there
// stays a storage error.
func classifyMatchError(query string, mode QueryMode, err error) error {
	if mode != ModeRaw {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "fts5: syntax error") ||
		strings.Contains(msg, "syntax error") ||
		strings.Contains(msg, "malformed match") ||
		strings.Contains(msg, "unknown special query") ||
		strings.Contains(msg, "no such column") {
		return &SyntaxError{Query: query, cause: err}
	}
	return err
}
