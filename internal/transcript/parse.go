package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// maxTitleLen caps the derived session title.
	maxTitleLen = 200
	// maxSnippetLen caps the leading excerpt of the searchable text.
	maxSnippetLen = 240
)

// Format identifies the physical encoding of a transcript file.
type Format int

const (
	FormatJSONL Format = iota
	FormatJSON
	FormatMarkdown
)

// ErrNoRecords is returned when a file contains no parseable structure at
// all (zero bytes, or every record malformed).
var ErrNoRecords = errors.New("transcript: no parseable records")

// FormatForPath maps a file extension to its transcript format.
func FormatForPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl":
		return FormatJSONL, true
	case ".json":
		return FormatJSON, true
	case ".md":
		return FormatMarkdown, true
	}
	return 0, false
}

// Parse normalizes a transcript in the given format.
func Parse(format Format, input string) (ParsedSession, error) {
	switch format {
	case FormatJSONL:
		return ParseJSONL(input)
	case FormatJSON:
		return ParseJSON(input)
	case FormatMarkdown:
		return ParseMarkdown(input)
	}
	return ParsedSession{}, fmt.Errorf("transcript: unknown format %d", format)
}

type meta struct {
	createdAt     string
	lastMessageAt string
	agent         string
	workspace     string
}

// ParseJSONL parses line-delimited records. Malformed lines are skipped and
// counted; the parse fails only when no line holds valid JSON.
func ParseJSONL(input string) (ParsedSession, error) {
	var (
		m        meta
		messages []ParsedMessage
		valid    int
		skipped  int
	)

	for _, line := range strings.Split(input, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var value any
		if err := json.Unmarshal([]byte(line), &value); err != nil {
			skipped++
			continue
		}
		valid++

		if obj, ok := value.(map[string]any); ok {
			m.update(obj)
			if msg, ok := ExtractMessage(obj); ok {
				messages = append(messages, msg)
			}
		}
	}

	if valid == 0 {
		return ParsedSession{}, ErrNoRecords
	}

	session := buildSession(messages, m)
	session.Malformed = skipped
	return session, nil
}

// ParseJSON parses a single JSON document: an array of records, an object
// with a messages/events array, or a single record object.
func ParseJSON(input string) (ParsedSession, error) {
	var root any
	if err := json.Unmarshal([]byte(input), &root); err != nil {
		return ParsedSession{}, fmt.Errorf("transcript: invalid json: %w", err)
	}

	var m meta
	var entries []any
	switch value := root.(type) {
	case []any:
		entries = value
	case map[string]any:
		m.update(value)
		if msgs, ok := value["messages"].([]any); ok {
			entries = msgs
		} else if events, ok := value["events"].([]any); ok {
			entries = events
		} else {
			entries = []any{value}
		}
	}

	var messages []ParsedMessage
	for _, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		m.update(obj)
		if msg, ok := ExtractMessage(obj); ok {
			messages = append(messages, msg)
		}
	}

	return buildSession(messages, m), nil
}

// ParseMarkdown parses a plain-text transcript. A line with a recognized
// role prefix ("user: ...") opens a new section; other non-blank lines
// append to the current section. Text before any heading forms a roleless
// section.
func ParseMarkdown(input string) (ParsedSession, error) {
	var messages []ParsedMessage
	current := -1

	for _, line := range strings.Split(input, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if role, text, ok := splitRolePrefix(line); ok {
			messages = append(messages, ParsedMessage{Role: role, Text: text})
			current = len(messages) - 1
			continue
		}

		if current < 0 {
			messages = append(messages, ParsedMessage{Text: line})
			current = len(messages) - 1
			continue
		}
		messages[current].Text += "\n" + line
	}

	if len(messages) == 0 {
		return ParsedSession{}, ErrNoRecords
	}
	return buildSession(messages, meta{}), nil
}

func buildSession(messages []ParsedMessage, m meta) ParsedSession {
	if m.createdAt == "" && len(messages) > 0 {
		m.createdAt = messages[0].Timestamp
	}
	if m.lastMessageAt == "" && len(messages) > 0 {
		m.lastMessageAt = messages[len(messages)-1].Timestamp
	}

	lines := make([]string, len(messages))
	for i, msg := range messages {
		lines[i] = formatMessageLine(msg.Role, msg.Text)
	}
	content := strings.Join(lines, "\n")

	title := firstUserTitle(messages)
	if title == "" && len(messages) > 0 {
		title = strings.TrimSpace(messages[0].Text)
	}

	return ParsedSession{
		CreatedAt:     m.createdAt,
		LastMessageAt: m.lastMessageAt,
		Agent:         m.agent,
		Workspace:     m.workspace,
		Title:         truncateRunes(title, maxTitleLen),
		MessageCount:  len(messages),
		Snippet:       truncateRunes(strings.TrimSpace(content), maxSnippetLen),
		Content:       content,
		Messages:      messages,
	}
}

// update folds a record's metadata fields into the session meta. Agent,
// workspace and created_at keep the first value seen; last_message_at keeps
// the last.
func (m *meta) update(obj map[string]any) {
	if m.agent == "" {
		if agent, ok := obj["agent"].(string); ok {
			m.agent = agent
		}
	}
	if m.workspace == "" {
		if workspace, ok := obj["workspace"].(string); ok {
			m.workspace = workspace
		}
	}
	if m.createdAt == "" {
		m.createdAt = stringField(obj, "created_at")
	}
	if value := stringField(obj, "last_message_at"); value != "" {
		m.lastMessageAt = value
	}
}

func formatMessageLine(role, text string) string {
	if role == "" {
		return text
	}
	return "[" + role + "] " + text
}

func firstUserTitle(messages []ParsedMessage) string {
	for _, msg := range messages {
		if msg.Role != "user" {
			continue
		}
		if title := strings.TrimSpace(msg.Text); title != "" {
			return title
		}
	}
	return ""
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

var knownRoles = map[string]bool{
	"user":      true,
	"assistant": true,
	"system":    true,
	"developer": true,
	"tool":      true,
}

func splitRolePrefix(line string) (role, text string, ok bool) {
	prefix, rest, found := strings.Cut(line, ":")
	if !found {
		return "", "", false
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", "", false
	}
	role = normalizeRole(prefix)
	if !knownRoles[role] {
		return "", "", false
	}
	return role, rest, true
}
