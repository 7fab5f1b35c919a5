// Package inspect reads session JSONL files directly, without the database
// index. It backs the show command: tool-call scans, turn and line lookups,
// and session-id prefix resolution.
//
// Turn indices here match messages.turn_index in the database: both sides
// enumerate turns through transcript.ExtractMessage, so a record counts as a
// turn during inspection iff it counted at index time.
package inspect

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kalambet/sift/internal/config"
	"github.com/kalambet/sift/internal/transcript"
)

// maxScanLine bounds a single JSONL line; agent transcripts can carry whole
// files inside one record.
const maxScanLine = 16 * 1024 * 1024

// Entry is one record located in a session file. TurnIndex is -1 when the
// record is not a message turn (or the lookup was by line).
type Entry struct {
	Line      int
	TurnIndex int
	Role      string
	Timestamp string
	Record    map[string]any
}

// ToolCallMatch is one tool invocation found while scanning a session file.
type ToolCallMatch struct {
	Line      int
	TurnIndex int // -1 when the carrying record is not a message turn
	Tool      transcript.ToolCall
}

// AmbiguousError reports a session-id prefix matching more than one file.
type AmbiguousError struct {
	Input   string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	display := e.Matches
	truncated := false
	if len(display) > 5 {
		display = display[:5]
		truncated = true
	}
	list := strings.Join(display, ", ")
	if truncated {
		list += ", ..."
	}
	return fmt.Sprintf("multiple sessions match %q: %s", e.Input, list)
}

// LoadEntryByTurn returns the record at the given 0-based turn index.
func LoadEntryByTurn(path string, turn int) (Entry, error) {
	var found *Entry
	turnCount := 0

	err := scanFile(path, func(line int, obj map[string]any) bool {
		msg, isTurn := transcript.ExtractMessage(obj)
		if !isTurn {
			return true
		}
		if turnCount == turn {
			found = &Entry{
				Line:      line,
				TurnIndex: turnCount,
				Role:      msg.Role,
				Timestamp: msg.Timestamp,
				Record:    obj,
			}
			return false
		}
		turnCount++
		return true
	})
	if err != nil {
		return Entry{}, err
	}
	if found == nil {
		return Entry{}, fmt.Errorf("turn %d out of range (messages: %d)", turn, turnCount)
	}
	return *found, nil
}

// LoadEntryByLine returns the record at the given 1-based line number.
func LoadEntryByLine(path string, lineNo int) (Entry, error) {
	if err := ensureJSONL(path); err != nil {
		return Entry{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Entry{}, err
	}
	defer f.Close()

	scanner := newLineScanner(f)
	current := 0
	for scanner.Scan() {
		current++
		if current != lineNo {
			continue
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			return Entry{}, fmt.Errorf("line %d out of range", lineNo)
		}

		var obj map[string]any
		if err := json.Unmarshal([]byte(text), &obj); err != nil {
			return Entry{}, fmt.Errorf("invalid json at line %d: %w", lineNo, err)
		}

		entry := Entry{Line: lineNo, TurnIndex: -1, Record: obj}
		if msg, ok := transcript.ExtractMessage(obj); ok {
			entry.Role = msg.Role
			entry.Timestamp = msg.Timestamp
		}
		return entry, nil
	}
	if err := scanner.Err(); err != nil {
		return Entry{}, err
	}
	return Entry{}, fmt.Errorf("line %d out of range", lineNo)
}

// ScanToolCalls finds tool invocations in a session file. An empty tool
// filter matches every tool; limit 0 means unlimited.
func ScanToolCalls(path, tool string, limit int) ([]ToolCallMatch, error) {
	var matches []ToolCallMatch
	turnCount := 0

	err := scanFile(path, func(line int, obj map[string]any) bool {
		_, isTurn := transcript.ExtractMessage(obj)
		turnIndex := -1
		if isTurn {
			turnIndex = turnCount
		}

		for _, call := range transcript.ExtractToolCalls(obj) {
			if tool != "" && !strings.EqualFold(call.Name, tool) {
				continue
			}
			matches = append(matches, ToolCallMatch{Line: line, TurnIndex: turnIndex, Tool: call})
			if limit > 0 && len(matches) >= limit {
				return false
			}
		}

		if isTurn {
			turnCount++
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// ResolvePath turns a show target into a session file path. An existing path
// is used as-is; a bare name is treated as a session-id prefix and matched
// against .jsonl filenames under root.
func ResolvePath(input, root string) (string, error) {
	expanded := config.ExpandHome(input)
	if _, err := os.Stat(expanded); err == nil {
		return expanded, nil
	}
	if strings.ContainsRune(expanded, os.PathSeparator) {
		return "", fmt.Errorf("session not found: %s", input)
	}

	var matches []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !isJSONL(path) {
			return nil
		}
		if strings.HasPrefix(d.Name(), input) {
			matches = append(matches, path)
		}
		return nil
	})
	if walkErr != nil {
		return "", walkErr
	}
	sort.Strings(matches)

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("session not found: %s", input)
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{Input: input, Matches: matches}
	}
}

// scanFile walks a JSONL file record by record. visit returns false to stop.
// Invalid JSON is a hard error: inspection targets a specific file, so
// corruption should be loud, not silently skipped.
func scanFile(path string, visit func(line int, obj map[string]any) bool) error {
	if err := ensureJSONL(path); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := newLineScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var value any
		if err := json.Unmarshal([]byte(text), &value); err != nil {
			return fmt.Errorf("invalid json at line %d: %w", lineNo, err)
		}
		obj, ok := value.(map[string]any)
		if !ok {
			continue
		}
		if !visit(lineNo, obj) {
			return nil
		}
	}
	return scanner.Err()
}

func newLineScanner(f *os.File) *bufio.Scanner {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScanLine)
	return scanner
}

func isJSONL(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".jsonl")
}

func ensureJSONL(path string) error {
	if isJSONL(path) {
		return nil
	}
	return fmt.Errorf("unsupported session format: %s (expected .jsonl)", path)
}
