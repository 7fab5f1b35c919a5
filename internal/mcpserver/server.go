// Package mcpserver exposes the search index to MCP clients over stdio, so
// agents can query their own (and each other's) past sessions.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/sift/internal/indexer"
	"github.com/kalambet/sift/internal/search"
	"github.com/kalambet/sift/internal/store"
)

// Deps holds the collaborators behind the MCP tools.
type Deps struct {
	Store        *store.Store
	Engine       *search.Engine
	Maintainer   *indexer.Maintainer
	SessionsRoot string
}

// NewServer creates an MCP server with the sift tools registered.
func NewServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"sift",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("sift — full-text search over locally indexed agent session transcripts."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("find_sessions",
			mcp.WithDescription("Search whole session transcripts and return the best-matching sessions."),
			mcp.WithString("query", mcp.Description("Search query (literal; tokens are matched as plain text)"), mcp.Required()),
			mcp.WithString("agent", mcp.Description("Filter by agent name")),
			mcp.WithString("repo", mcp.Description("Filter by git repo name or root path")),
			mcp.WithString("after", mcp.Description("Only sessions with activity after this ISO8601 date")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpFindSessions(deps),
	)

	s.AddTool(
		mcp.NewTool("find_messages",
			mcp.WithDescription("Search individual conversation turns. Defaults to user turns only."),
			mcp.WithString("query", mcp.Description("Search query (literal)"), mcp.Required()),
			mcp.WithString("role", mcp.Description("Filter by role (user, assistant, ...)")),
			mcp.WithBoolean("all_roles", mcp.Description("Include every role instead of defaulting to user")),
			mcp.WithString("agent", mcp.Description("Filter by agent name")),
			mcp.WithString("repo", mcp.Description("Filter by git repo name or root path")),
			mcp.WithNumber("around", mcp.Description("Context turns to include around each hit")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpFindMessages(deps),
	)

	s.AddTool(
		mcp.NewTool("index_sessions",
			mcp.WithDescription("Run an incremental index pass over the sessions root."),
			mcp.WithBoolean("full", mcp.Description("Re-index every file, ignoring the change cache")),
		),
		mcpIndexSessions(deps),
	)

	return s
}

// ServeStdio runs the server over stdin/stdout until the client disconnects.
func ServeStdio(deps Deps) error {
	return server.ServeStdio(NewServer(deps))
}

func mcpFindSessions(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		hits, err := deps.Engine.FindSessions(query, search.ModeLiteral, search.Filters{
			Agent: req.GetString("agent", ""),
			Repo:  req.GetString("repo", ""),
			After: req.GetString("after", ""),
			Limit: req.GetInt("limit", 0),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		type sessionResult struct {
			Path          string  `json:"path"`
			Title         string  `json:"title,omitempty"`
			Agent         string  `json:"agent,omitempty"`
			RepoName      string  `json:"repo_name,omitempty"`
			Branch        string  `json:"branch,omitempty"`
			LastMessageAt string  `json:"last_message_at,omitempty"`
			Snippet       string  `json:"snippet,omitempty"`
			Score         float64 `json:"score"`
		}
		results := make([]sessionResult, len(hits))
		for i, hit := range hits {
			results[i] = sessionResult{
				Path:          hit.Path,
				Title:         hit.Title,
				Agent:         hit.Agent,
				RepoName:      hit.RepoName,
				Branch:        hit.Branch,
				LastMessageAt: hit.LastMessageAt,
				Snippet:       hit.Snippet,
				Score:         hit.Score,
			}
		}
		return mcpJSON(results)
	}
}

func mcpFindMessages(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		hits, err := deps.Engine.FindMessages(query, search.ModeLiteral, search.Filters{
			Agent:           req.GetString("agent", ""),
			Repo:            req.GetString("repo", ""),
			Role:            req.GetString("role", ""),
			IncludeAllRoles: req.GetBool("all_roles", false),
			Around:          req.GetInt("around", 0),
			Limit:           req.GetInt("limit", 0),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		type contextResult struct {
			TurnIndex int64  `json:"turn_index"`
			Role      string `json:"role,omitempty"`
			Text      string `json:"text"`
		}
		type messageResult struct {
			Path      string          `json:"path"`
			TurnIndex int64           `json:"turn_index"`
			Role      string          `json:"role,omitempty"`
			Timestamp string          `json:"timestamp,omitempty"`
			Text      string          `json:"text"`
			Title     string          `json:"title,omitempty"`
			Score     float64         `json:"score"`
			Context   []contextResult `json:"context,omitempty"`
		}
		results := make([]messageResult, len(hits))
		for i, hit := range hits {
			result := messageResult{
				Path:      hit.Path,
				TurnIndex: hit.TurnIndex,
				Role:      hit.Role,
				Timestamp: hit.Timestamp,
				Text:      hit.Text,
				Title:     hit.Title,
				Score:     hit.Score,
			}
			for _, msg := range hit.Context {
				result.Context = append(result.Context, contextResult{
					TurnIndex: msg.TurnIndex,
					Role:      msg.Role,
					Text:      msg.Text,
				})
			}
			results[i] = result
		}
		return mcpJSON(results)
	}
}

func mcpIndexSessions(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats, err := deps.Maintainer.Run(deps.SessionsRoot, req.GetBool("full", false))
		if err != nil {
			return mcpError(fmt.Sprintf("index pass failed: %v", err)), nil
		}
		return mcpJSON(stats)
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
