// Package gitinfo resolves repository metadata for workspace directories by
// shelling out to git. Lookups are cached per workspace for the lifetime of
// the collector, so one index pass runs git at most twice per workspace.
package gitinfo

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Info is the repository metadata attached to an indexed session. All fields
// are empty when the workspace is unknown or not inside a git repository.
type Info struct {
	RepoRoot string
	RepoName string
	Branch   string
}

// Collector caches git lookups keyed by workspace path.
type Collector struct {
	cache map[string]Info
	run   func(dir string, args ...string) (string, error)
}

// NewCollector returns a collector that invokes the git binary.
func NewCollector() *Collector {
	return &Collector{
		cache: make(map[string]Info),
		run:   runGit,
	}
}

// Lookup resolves repo metadata for a workspace directory. Failures (no git,
// not a repository, detached HEAD) degrade to empty fields, never errors.
func (c *Collector) Lookup(workspace string) Info {
	if workspace == "" {
		return Info{}
	}
	if info, ok := c.cache[workspace]; ok {
		return info
	}

	var info Info
	if root, err := c.run(workspace, "rev-parse", "--show-toplevel"); err == nil {
		if resolved, err := filepath.EvalSymlinks(root); err == nil {
			if fi, err := os.Stat(resolved); err == nil && fi.IsDir() {
				info.RepoRoot = resolved
				info.RepoName = filepath.Base(resolved)
			}
		}
	}
	if info.RepoRoot != "" {
		if branch, err := c.run(info.RepoRoot, "rev-parse", "--abbrev-ref", "HEAD"); err == nil && branch != "HEAD" {
			info.Branch = branch
		}
	}

	c.cache[workspace] = info
	return info
}

func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
