package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/sift/internal/config"
	"github.com/kalambet/sift/internal/store"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "sift",
	Short: "Index and search agent session transcripts",
	Long: `sift maintains a local SQLite full-text index over agent session
transcripts (JSONL files) and answers queries against it.

Examples:
  sift index
  sift find "api key rotation" --agent codex
  sift find "deploy AND rollback" --fts --scope session
  sift show 1a2b3c --tool read --extract
  sift doctor`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadEnv loads the configuration and initializes structured logging from it.
func loadEnv() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	logLevel := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	return cfg, nil
}

// openEnv loads the configuration and opens the index database.
func openEnv() (config.Config, *store.Store, error) {
	cfg, err := loadEnv()
	if err != nil {
		return config.Config{}, nil, err
	}
	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("opening index: %w", err)
	}
	return cfg, s, nil
}
