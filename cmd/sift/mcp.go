package main

import (
	"github.com/spf13/cobra"

	"github.com/kalambet/sift/internal/indexer"
	"github.com/kalambet/sift/internal/mcpserver"
	"github.com/kalambet/sift/internal/search"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the index to MCP clients over stdio",
	Long: `Serve the index to MCP clients over stdio.

Exposes find_sessions, find_messages, and index_sessions as MCP tools, so an
agent can search its own (and other agents') past sessions. The process runs
until the client closes the transport.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, s, err := openEnv()
		if err != nil {
			return err
		}
		defer s.Close()

		return mcpserver.ServeStdio(mcpserver.Deps{
			Store:        s,
			Engine:       search.New(s),
			Maintainer:   indexer.New(s),
			SessionsRoot: cfg.SessionsRoot,
		})
	},
}
