package config

import (
	"fmt"
	"os"
)

type keySpec struct {
	key     string
	env     string
	apply   func(cfg *Config, v string)
	extract func(cfg Config) string
}

var specs = []keySpec{
	{
		key: "db_path", env: "SIFT_DB_PATH",
		apply:   func(cfg *Config, v string) { cfg.DBPath = v },
		extract: func(cfg Config) string { return cfg.DBPath },
	},
	{
		key: "sessions_root", env: "SIFT_SESSIONS_ROOT",
		apply:   func(cfg *Config, v string) { cfg.SessionsRoot = v },
		extract: func(cfg Config) string { return cfg.SessionsRoot },
	},
	{
		key: "log.level", env: "SIFT_LOG_LEVEL",
		apply:   func(cfg *Config, v string) { cfg.LogLevel = v },
		extract: func(cfg Config) string { return cfg.LogLevel },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		v, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if ok && v != "" {
			s.apply(cfg, v)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if raw := os.Getenv(s.env); raw != "" {
			s.apply(cfg, raw)
		}
	}
}
