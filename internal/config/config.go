// Package config resolves runtime settings from compiled defaults, an
// optional JSON config file at $XDG_CONFIG_HOME/sift/config.json, and
// SIFT_* environment variables, in increasing order of precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

type Config struct {
	// DBPath is the SQLite index database location.
	DBPath string
	// SessionsRoot is the directory tree scanned for session transcripts.
	SessionsRoot string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

func defaults() Config {
	return Config{
		DBPath:       filepath.Join(configHome(), "sift", "sift.sqlite"),
		SessionsRoot: filepath.Join(configHome(), "sift", "sessions"),
		LogLevel:     "info",
	}
}

// Load reads configuration from the config file and environment variables.
func Load() (Config, error) {
	return loadWith(newFileBackend(defaultConfigPath()))
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	cfg.DBPath = ExpandHome(cfg.DBPath)
	cfg.SessionsRoot = ExpandHome(cfg.SessionsRoot)
	return cfg, nil
}

func defaultConfigPath() string {
	return filepath.Join(configHome(), "sift", "config.json")
}

func configHome() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config")
	}
	return "."
}

// ExpandHome resolves a leading ~ or ~/ against the user's home directory.
func ExpandHome(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
