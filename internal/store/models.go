package store

// SessionRecord is one persisted session row, keyed uniquely by path.
// Empty string fields are stored as NULLs.
type SessionRecord struct {
	Path          string
	Mtime         int64
	Size          int64
	Hash          string
	CreatedAt     string
	LastMessageAt string
	Agent         string
	Workspace     string
	Title         string
	MessageCount  int
	Snippet       string
	RepoRoot      string
	RepoName      string
	Branch        string
}

// MessageRecord is one persisted turn, keyed by (session path, turn index).
type MessageRecord struct {
	TurnIndex int64
	Role      string
	Timestamp string
	Text      string
}

// Fingerprint is the change-detection pair recorded for an indexed path.
type Fingerprint struct {
	Path  string
	Mtime int64
	Size  int64
}

// SearchFilter holds the persisted-column predicates applied alongside a
// full-text match. Empty string fields mean no constraint.
type SearchFilter struct {
	Agent     string
	Workspace string
	Repo      string // matches repo_name or repo_root
	Branch    string
	Role      string // message scope only
	After     string
	Before    string
	Limit     int
}

// SessionHit is one session-scope search result. Score is the bm25 rank:
// lower is more relevant.
type SessionHit struct {
	Path          string
	Title         string
	Agent         string
	Workspace     string
	RepoRoot      string
	RepoName      string
	Branch        string
	LastMessageAt string
	Snippet       string
	Score         float64
}

// MessageHit is one message-scope search result.
type MessageHit struct {
	Path      string
	TurnIndex int64
	Role      string
	Timestamp string
	Text      string
	Title     string
	Agent     string
	Workspace string
	RepoRoot  string
	RepoName  string
	Branch    string
	Score     float64
	// Context holds the surrounding turns when a context radius was
	// requested; ordered ascending by turn index.
	Context []ContextMessage
}

// ContextMessage is one turn inside a context window.
type ContextMessage struct {
	TurnIndex int64
	Role      string
	Timestamp string
	Text      string
}

// AgentCount pairs an agent name with its indexed session count.
type AgentCount struct {
	Name         string
	SessionCount int64
}
