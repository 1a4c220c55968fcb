// Package gitutil provides best-effort git introspection for the
// watched project directory.
package gitutil

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

const gitTimeout = 5 * time.Second

// CurrentBranch returns the checked-out branch for dir, or "" when
// git is unavailable, the path is not a repository, or HEAD is
// detached.
func CurrentBranch(dir string) string {
	out := run(dir, "rev-parse", "--abbrev-ref", "HEAD")
	if out == "" || out == "HEAD" {
		return ""
	}
	return out
}

// IsRepo reports whether dir is inside a git work tree.
func IsRepo(dir string) bool {
	return run(dir, "rev-parse", "--is-inside-work-tree") == "true"
}

func run(dir string, args ...string) string {
	ctx, cancel := context.WithTimeout(context.Background(), gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return string(bytes.TrimSpace(out))
}
