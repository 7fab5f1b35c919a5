package main

import (
	"strings"
	"testing"

	"github.com/kalambet/sift/internal/store"
)

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestTrimOutput(t *testing.T) {
	if got := trimOutput("short text"); got != "short text" {
		t.Errorf("trimOutput(short) = %q", got)
	}

	multiline := "first line\nsecond\tline"
	if got := trimOutput(multiline); got != "first line second line" {
		t.Errorf("trimOutput(multiline) = %q", got)
	}

	long := strings.Repeat("x", 500)
	got := trimOutput(long)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("trimOutput(long) should end with ellipsis, got %q", got[len(got)-10:])
	}
	if len([]rune(got)) != trimLimit+3 {
		t.Errorf("trimOutput(long) length = %d, want %d", len([]rune(got)), trimLimit+3)
	}
}

func TestParseFields(t *testing.T) {
	if parseFields("") != nil {
		t.Error("parseFields(\"\") should be nil (defaults apply)")
	}
	if parseFields("   ") != nil {
		t.Error("parseFields(blank) should be nil")
	}

	set := parseFields("Path, score ,text")
	for _, name := range []string{"path", "score", "text"} {
		if !set.has(name) {
			t.Errorf("field %q missing from parsed set", name)
		}
	}
	if set.has("title") {
		t.Error("title should not be in the parsed set")
	}
}

func TestFieldSetDefaults(t *testing.T) {
	var defaults fieldSet
	if !defaults.has("path", sessionFieldDefaults...) {
		t.Error("path should be in the session default set")
	}
	if defaults.has("snippet", sessionFieldDefaults...) {
		t.Error("snippet should not be in the session default set")
	}
	if !defaults.has("turn_index", messageFieldDefaults...) {
		t.Error("turn_index should be in the message default set")
	}
}

func TestSessionRowDefaults(t *testing.T) {
	hit := store.SessionHit{
		Path:          "/logs/a.jsonl",
		Title:         "Fixing the build",
		Agent:         "codex",
		LastMessageAt: "2025-04-01T10:00:00Z",
		Snippet:       "we fixed the build by...",
		Score:         -1.5,
	}

	row := sessionRow(hit, nil)
	if len(row) != len(sessionFieldDefaults) {
		t.Errorf("default row has %d fields, want %d: %v", len(row), len(sessionFieldDefaults), row)
	}
	if row["path"] != "/logs/a.jsonl" {
		t.Errorf("path = %v", row["path"])
	}
	if _, ok := row["agent"]; ok {
		t.Error("agent should not be in the default row")
	}

	row = sessionRow(hit, parseFields("agent,snippet"))
	if len(row) != 2 {
		t.Errorf("explicit row has %d fields, want 2: %v", len(row), row)
	}
	if row["agent"] != "codex" {
		t.Errorf("agent = %v", row["agent"])
	}
}

func TestMessageRowContext(t *testing.T) {
	hit := store.MessageHit{
		Path:      "/logs/a.jsonl",
		TurnIndex: 3,
		Role:      "user",
		Text:      "how do I rotate the key",
		Context: []store.ContextMessage{
			{TurnIndex: 2, Role: "assistant", Text: "earlier answer"},
			{TurnIndex: 3, Role: "user", Text: "how do I rotate the key"},
		},
	}

	row := messageRow(hit, nil, true)
	ctx, ok := row["context"].([]map[string]any)
	if !ok {
		t.Fatalf("context missing or wrong type: %T", row["context"])
	}
	if len(ctx) != 2 {
		t.Fatalf("context has %d entries, want 2", len(ctx))
	}
	if ctx[0]["turn_index"] != int64(2) {
		t.Errorf("context[0].turn_index = %v", ctx[0]["turn_index"])
	}

	row = messageRow(hit, nil, false)
	if _, ok := row["context"]; ok {
		t.Error("context should be omitted when not requested")
	}
}

func TestToolCallArgHelpers(t *testing.T) {
	args := map[string]any{
		"file_path": "/src/main.go",
		"offset":    float64(40),
	}

	if got := stringArg(args, "path", "file_path"); got != "/src/main.go" {
		t.Errorf("stringArg = %q", got)
	}
	if got := stringArg(args, "pattern"); got != "" {
		t.Errorf("stringArg(missing) = %q, want empty", got)
	}
	if got := intArg(args, "offset", 1); got != 40 {
		t.Errorf("intArg(offset) = %d, want 40", got)
	}
	if got := intArg(args, "limit", 200); got != 200 {
		t.Errorf("intArg(missing) = %d, want fallback 200", got)
	}
}

func TestFindFlagsMutuallyExclusive(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"find", "query", "--json", "--jsonl"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error for --json with --jsonl")
	}
}
