package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/sift/internal/config"
	"github.com/kalambet/sift/internal/diag"
	"github.com/kalambet/sift/internal/indexer"
	"github.com/kalambet/sift/internal/inspect"
	"github.com/kalambet/sift/internal/search"
	"github.com/kalambet/sift/internal/store"
)

// --- index ---

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Scan the sessions root and bring the index up to date",
	Long: `Scan the sessions root and bring the index up to date.

Only files whose size or modification time changed since the last pass are
re-indexed; --full re-indexes everything. With --watch the command keeps
running and re-indexes on filesystem changes until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rootFlag, _ := cmd.Flags().GetString("root")
		full, _ := cmd.Flags().GetBool("full")
		asJSON, _ := cmd.Flags().GetBool("json")
		watch, _ := cmd.Flags().GetBool("watch")

		cfg, s, err := openEnv()
		if err != nil {
			return err
		}
		defer s.Close()

		root := cfg.SessionsRoot
		if rootFlag != "" {
			root = config.ExpandHome(rootFlag)
		}

		maintainer := indexer.New(s)
		stats, err := maintainer.Run(root, full)
		if err != nil {
			return err
		}
		if err := emitStats(stats, asJSON); err != nil {
			return err
		}

		if !watch {
			return nil
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		watcher, err := indexer.NewWatcher(maintainer, root, func(st indexer.Stats) {
			if err := emitStats(st, asJSON); err != nil {
				printError("writing stats: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("starting watcher: %w", err)
		}

		printStep("watching %s for changes", root)
		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func emitStats(stats indexer.Stats, asJSON bool) error {
	if asJSON {
		return emitJSON(stats)
	}
	printStatus("scanned", "%d", stats.Scanned)
	printStatus("indexed", "%d", stats.Indexed)
	printStatus("skipped", "%d", stats.Skipped)
	printStatus("removed", "%d", stats.Removed)
	printStatus("parse_errors", "%d", stats.ParseErrors)
	return nil
}

func init() {
	indexCmd.Flags().String("root", "", "sessions root to scan (default: configured sessions_root)")
	indexCmd.Flags().Bool("full", false, "re-index every file, ignoring the change cache")
	indexCmd.Flags().Bool("watch", false, "keep running and re-index on filesystem changes")
	indexCmd.Flags().Bool("json", false, "output pass statistics as JSON")
}

// --- find ---

var sessionFieldDefaults = []string{"path", "title", "last_message_at", "score"}
var messageFieldDefaults = []string{"path", "title", "timestamp", "role", "turn_index", "score"}

var findCmd = &cobra.Command{
	Use:   "find <query>",
	Short: "Full-text search over indexed sessions",
	Long: `Full-text search over indexed sessions.

The default scope is message: individual conversation turns, user turns only
unless --role or --include-assistant says otherwise. --scope session matches
whole transcripts instead. Queries are matched literally; --fts passes the
query through as raw FTS5 syntax (AND, OR, NEAR, column filters).

Examples:
  sift find "api key rotation"
  sift find "rollback" --scope session --agent codex --days 7
  sift find "deploy AND NOT staging" --fts --include-assistant --around 2`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		scopeName, _ := cmd.Flags().GetString("scope")
		raw, _ := cmd.Flags().GetBool("fts")
		days, _ := cmd.Flags().GetInt("days")
		after, _ := cmd.Flags().GetString("after")
		before, _ := cmd.Flags().GetString("before")
		agent, _ := cmd.Flags().GetString("agent")
		workspace, _ := cmd.Flags().GetString("workspace")
		repo, _ := cmd.Flags().GetString("repo")
		branch, _ := cmd.Flags().GetString("branch")
		role, _ := cmd.Flags().GetString("role")
		includeAssistant, _ := cmd.Flags().GetBool("include-assistant")
		around, _ := cmd.Flags().GetInt("around")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")
		asJSONL, _ := cmd.Flags().GetBool("jsonl")
		fieldsSpec, _ := cmd.Flags().GetString("fields")
		withSnippet, _ := cmd.Flags().GetBool("snippet")

		scope, err := search.ParseScope(scopeName)
		if err != nil {
			return err
		}

		fields := parseFields(fieldsSpec)
		if withSnippet && scope == search.ScopeSession {
			if fields == nil {
				fields = make(fieldSet)
				for _, name := range sessionFieldDefaults {
					fields[name] = true
				}
			}
			fields["snippet"] = true
		}

		if days > 0 && after == "" {
			after = time.Now().AddDate(0, 0, -days).UTC().Format(time.RFC3339)
		}

		mode := search.ModeLiteral
		if raw {
			mode = search.ModeRaw
		}

		includeContext := around > 0 && (fields == nil || fields["context"])

		filters := search.Filters{
			Agent:           agent,
			Workspace:       workspace,
			Repo:            repo,
			Branch:          branch,
			Role:            role,
			After:           after,
			Before:          before,
			IncludeAllRoles: includeAssistant,
			Limit:           limit,
		}
		if includeContext {
			filters.Around = around
		}

		_, s, err := openEnv()
		if err != nil {
			return err
		}
		defer s.Close()
		engine := search.New(s)

		switch scope {
		case search.ScopeSession:
			hits, err := engine.FindSessions(query, mode, filters)
			if err != nil {
				return err
			}
			return emitSessionHits(hits, fields, asJSON, asJSONL)
		default:
			hits, err := engine.FindMessages(query, mode, filters)
			if err != nil {
				return err
			}
			return emitMessageHits(hits, fields, includeContext, asJSON, asJSONL)
		}
	},
}

func init() {
	findCmd.Flags().String("scope", "message", "search scope: message or session")
	findCmd.Flags().Bool("fts", false, "treat the query as raw FTS5 syntax")
	findCmd.Flags().Int("days", 0, "only results from the last N days")
	findCmd.Flags().String("after", "", "only results after this ISO8601 timestamp")
	findCmd.Flags().String("before", "", "only results before this ISO8601 timestamp")
	findCmd.Flags().String("agent", "", "filter by agent name")
	findCmd.Flags().String("workspace", "", "filter by workspace directory")
	findCmd.Flags().String("repo", "", "filter by git repo name or root path")
	findCmd.Flags().String("branch", "", "filter by git branch")
	findCmd.Flags().String("role", "", "filter message hits by role (default: user)")
	findCmd.Flags().Bool("include-assistant", false, "include every role, not just user turns")
	findCmd.Flags().Int("around", 0, "context turns around each message hit")
	findCmd.Flags().Int("limit", 5, "maximum number of results")
	findCmd.Flags().Bool("json", false, "output results as a JSON array")
	findCmd.Flags().Bool("jsonl", false, "output results as JSON lines")
	findCmd.Flags().String("fields", "", "comma-separated result fields to emit")
	findCmd.Flags().Bool("snippet", false, "include the session snippet (session scope)")
	findCmd.MarkFlagsMutuallyExclusive("json", "jsonl")
}

func sessionRow(hit store.SessionHit, fields fieldSet) map[string]any {
	row := make(map[string]any)
	put := func(name string, value any) {
		if fields.has(name, sessionFieldDefaults...) {
			row[name] = value
		}
	}
	put("path", hit.Path)
	put("title", hit.Title)
	put("agent", hit.Agent)
	put("workspace", hit.Workspace)
	put("repo_name", hit.RepoName)
	put("repo_root", hit.RepoRoot)
	put("branch", hit.Branch)
	put("last_message_at", hit.LastMessageAt)
	put("snippet", hit.Snippet)
	put("score", hit.Score)
	return row
}

func messageRow(hit store.MessageHit, fields fieldSet, includeContext bool) map[string]any {
	row := make(map[string]any)
	put := func(name string, value any) {
		if fields.has(name, messageFieldDefaults...) {
			row[name] = value
		}
	}
	put("path", hit.Path)
	put("turn_index", hit.TurnIndex)
	put("role", hit.Role)
	put("timestamp", hit.Timestamp)
	put("text", hit.Text)
	put("title", hit.Title)
	put("agent", hit.Agent)
	put("workspace", hit.Workspace)
	put("repo_name", hit.RepoName)
	put("repo_root", hit.RepoRoot)
	put("branch", hit.Branch)
	put("score", hit.Score)

	if includeContext {
		ctx := make([]map[string]any, len(hit.Context))
		for i, msg := range hit.Context {
			ctx[i] = map[string]any{
				"turn_index": msg.TurnIndex,
				"role":       msg.Role,
				"text":       msg.Text,
			}
		}
		row["context"] = ctx
	}
	return row
}

func emitSessionHits(hits []store.SessionHit, fields fieldSet, asJSON, asJSONL bool) error {
	if asJSON || asJSONL {
		rows := make([]map[string]any, len(hits))
		for i, hit := range hits {
			rows[i] = sessionRow(hit, fields)
		}
		if asJSONL {
			return emitJSONL(rows)
		}
		return emitJSON(rows)
	}

	if len(hits) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	for _, hit := range hits {
		title := hit.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s | %s\n", hit.LastMessageAt, colorize(colorBold, title))
		fmt.Printf("  %s\n", hit.Path)
		if fields.has("snippet", sessionFieldDefaults...) && hit.Snippet != "" {
			fmt.Printf("  %s\n", trimOutput(hit.Snippet))
		}
	}
	return nil
}

func emitMessageHits(hits []store.MessageHit, fields fieldSet, includeContext bool, asJSON, asJSONL bool) error {
	if asJSON || asJSONL {
		rows := make([]map[string]any, len(hits))
		for i, hit := range hits {
			rows[i] = messageRow(hit, fields, includeContext)
		}
		if asJSONL {
			return emitJSONL(rows)
		}
		return emitJSON(rows)
	}

	if len(hits) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	for _, hit := range hits {
		if hit.Timestamp != "" || hit.Title != "" {
			fmt.Printf("%s | %s\n", hit.Timestamp, colorize(colorBold, hit.Title))
		}
		fmt.Printf("%s (%s)\n", colorize(colorCyan, fmt.Sprintf("%s#%d", hit.Path, hit.TurnIndex)), hit.Role)
		if len(hit.Context) == 0 {
			fmt.Printf("  %s\n", trimOutput(hit.Text))
		}
		for _, msg := range hit.Context {
			marker := " "
			if msg.TurnIndex == hit.TurnIndex {
				marker = ">"
			}
			fmt.Printf("  %s %d:%s %s\n", marker, msg.TurnIndex, msg.Role, trimOutput(msg.Text))
		}
		fmt.Println()
	}
	return nil
}

// --- show ---

var showCmd = &cobra.Command{
	Use:   "show <session>",
	Short: "Inspect a session file directly",
	Long: `Inspect a session file directly, without going through the index.

The session argument is a file path or a session-id prefix resolved against
the sessions root. By default show lists read tool calls; --tool changes the
filter (empty string matches every tool), --turn and --line look up a single
record, and --extract prints the file contents the read calls referenced.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		turn, _ := cmd.Flags().GetInt("turn")
		line, _ := cmd.Flags().GetInt("line")
		tool, _ := cmd.Flags().GetString("tool")
		limit, _ := cmd.Flags().GetInt("limit")
		extract, _ := cmd.Flags().GetBool("extract")
		asJSON, _ := cmd.Flags().GetBool("json")

		cfg, err := loadEnv()
		if err != nil {
			return err
		}

		path, err := inspect.ResolvePath(args[0], cfg.SessionsRoot)
		if err != nil {
			return err
		}

		switch {
		case cmd.Flags().Changed("turn"):
			entry, err := inspect.LoadEntryByTurn(path, turn)
			if err != nil {
				return err
			}
			return emitEntry(entry, asJSON)

		case cmd.Flags().Changed("line"):
			entry, err := inspect.LoadEntryByLine(path, line)
			if err != nil {
				return err
			}
			return emitEntry(entry, asJSON)
		}

		// Without a record lookup this is a tool-call scan, and "read" is by
		// far the call people dig for.
		if !cmd.Flags().Changed("tool") {
			tool = "read"
		}
		matches, err := inspect.ScanToolCalls(path, tool, limit)
		if err != nil {
			return err
		}

		if extract {
			return extractReads(matches)
		}
		return emitToolCalls(matches, asJSON)
	},
}

func init() {
	showCmd.Flags().Int("turn", 0, "show the record at this 0-based turn index")
	showCmd.Flags().Int("line", 0, "show the record at this 1-based line number")
	showCmd.Flags().String("tool", "", "tool-call filter (default: read; empty matches all)")
	showCmd.Flags().Int("limit", 10, "maximum number of tool calls to list (0 = unlimited)")
	showCmd.Flags().Bool("extract", false, "print the file contents referenced by read tool calls")
	showCmd.Flags().Bool("json", false, "output as JSON")
	showCmd.MarkFlagsMutuallyExclusive("turn", "line")
}

func emitEntry(entry inspect.Entry, asJSON bool) error {
	if asJSON {
		return emitJSON(entry.Record)
	}

	loc := fmt.Sprintf("line %d", entry.Line)
	if entry.TurnIndex >= 0 {
		loc = fmt.Sprintf("turn %d (line %d)", entry.TurnIndex, entry.Line)
	}
	if entry.Role != "" {
		loc += " " + entry.Role
	}
	if entry.Timestamp != "" {
		loc += " @ " + entry.Timestamp
	}
	fmt.Println(colorize(colorBold, loc))

	data, err := json.MarshalIndent(entry.Record, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func emitToolCalls(matches []inspect.ToolCallMatch, asJSON bool) error {
	if asJSON {
		rows := make([]map[string]any, len(matches))
		for i, m := range matches {
			rows[i] = map[string]any{
				"line":       m.Line,
				"turn_index": m.TurnIndex,
				"tool":       m.Tool.Name,
				"arguments":  m.Tool.Arguments,
			}
		}
		return emitJSON(rows)
	}

	if len(matches) == 0 {
		fmt.Println("No tool calls found.")
		return nil
	}
	for _, m := range matches {
		loc := fmt.Sprintf("line %d", m.Line)
		if m.TurnIndex >= 0 {
			loc = fmt.Sprintf("turn %d, line %d", m.TurnIndex, m.Line)
		}
		args := ""
		if m.Tool.Arguments != nil {
			if data, err := json.Marshal(m.Tool.Arguments); err == nil {
				args = trimOutput(string(data))
			}
		}
		fmt.Printf("%s  %s  %s\n", colorize(colorCyan, m.Tool.Name), loc, args)
	}
	return nil
}

// extractReads re-reads the files referenced by read tool calls and prints
// the requested ranges with line numbers.
func extractReads(matches []inspect.ToolCallMatch) error {
	extracted := 0
	for _, m := range matches {
		if !strings.EqualFold(m.Tool.Name, "read") {
			continue
		}
		args, ok := m.Tool.Arguments.(map[string]any)
		if !ok {
			continue
		}
		target := stringArg(args, "path", "file_path")
		if target == "" {
			continue
		}
		offset := intArg(args, "offset", 1)
		if offset < 1 {
			offset = 1
		}
		limit := intArg(args, "limit", 200)

		if err := printFileRange(config.ExpandHome(target), offset, limit); err != nil {
			printWarning("%s: %v", target, err)
			continue
		}
		extracted++
	}
	if extracted == 0 {
		fmt.Println("Nothing to extract.")
	}
	return nil
}

func printFileRange(path string, offset, limit int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	fmt.Printf(">>> %s:%d (limit %d)\n", path, offset, limit)
	lines := strings.Split(string(data), "\n")
	for i := offset; i <= len(lines) && i < offset+limit; i++ {
		fmt.Printf("%6d\t%s\n", i, lines[i-1])
	}
	return nil
}

func stringArg(args map[string]any, keys ...string) string {
	for _, key := range keys {
		if val, ok := args[key].(string); ok && val != "" {
			return val
		}
	}
	return ""
}

func intArg(args map[string]any, key string, fallback int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	return fallback
}

// --- stats / agents / doctor ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		_, s, err := openEnv()
		if err != nil {
			return err
		}
		defer s.Close()

		stats, err := diag.LoadStats(s)
		if err != nil {
			return err
		}
		if asJSON {
			return emitJSON(stats)
		}

		printStatus("Sessions", "%d", stats.SessionCount)
		if stats.SessionCount > 0 {
			printStatus("Oldest message", "%s", stats.OldestMessageAt)
			printStatus("Newest message", "%s", stats.NewestMessageAt)
		}
		return nil
	},
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List indexed agents with session counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		_, s, err := openEnv()
		if err != nil {
			return err
		}
		defer s.Close()

		agents, err := diag.LoadAgents(s)
		if err != nil {
			return err
		}
		if asJSON {
			return emitJSON(agents)
		}

		if len(agents) == 0 {
			fmt.Println("No sessions indexed.")
			return nil
		}
		for _, agent := range agents {
			fmt.Printf("%s  %d\n", colorize(colorBold, agent.Name), agent.SessionCount)
		}
		return nil
	},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the health of the index and its configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		cfg, err := loadEnv()
		if err != nil {
			return err
		}

		report := diag.RunDoctor(cmd.Context(), cfg.DBPath, cfg.SessionsRoot)
		if asJSON {
			return emitJSON(report)
		}

		printStatus("Sessions root", "%s (%s)", report.Root, presence(report.RootExists))
		printStatus("Database", "%s (%s)", report.DBPath, presence(report.DBExists))
		switch {
		case report.SchemaOK:
			printStatus("Schema", "ok")
		case report.SchemaError != "":
			printStatus("Schema", "error: %s", report.SchemaError)
		default:
			printStatus("Schema", "not initialized")
		}
		if report.FTS5Available {
			printStatus("FTS5", "available")
		} else {
			printStatus("FTS5", "unavailable")
		}
		printStatus("Indexed sessions", "%d", report.IndexedSessions)
		if report.NewestMessageAt != "" {
			printStatus("Newest message", "%s", report.NewestMessageAt)
		}

		if report.RootExists && report.SchemaOK && report.FTS5Available {
			printSuccess("index is healthy")
		} else {
			printWarning("index needs attention; run 'sift index' after fixing the above")
		}
		return nil
	},
}

func presence(exists bool) string {
	if exists {
		return "present"
	}
	return "missing"
}

func init() {
	statsCmd.Flags().Bool("json", false, "output as JSON")
	agentsCmd.Flags().Bool("json", false, "output as JSON")
	doctorCmd.Flags().Bool("json", false, "output as JSON")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value, restoring its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}

		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
