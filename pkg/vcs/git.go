// Package vcs enumerates changed files and resolves branch information
// by shelling out to the git binary. This is the single external call
// the selection tooling performs before filtering.
package vcs

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/parallaxworks/parallax/pkg/errors"
)

// defaultDiffFilter keeps added, copied, modified, renamed and
// type-changed files; deleted files cannot be built or tested.
const defaultDiffFilter = "ACMRT"

// IsRepoRoot reports whether dir carries a .git directory.
func IsRepoRoot(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil && info.IsDir()
}

// DiffNames returns the repo-relative paths changed between the merge
// base of base and HEAD, one path per entry, slash-separated as git
// emits them.
func DiffNames(ctx context.Context, repoRoot, base string) ([]string, error) {
	output, err := run(ctx, repoRoot,
		"diff", "--name-only", "--diff-filter="+defaultDiffFilter, base+"...HEAD")
	if err != nil {
		return nil, err
	}

	if output == "" {
		return nil, nil
	}

	var files []string
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// CurrentBranch returns the checked-out branch name.
func CurrentBranch(ctx context.Context, repoRoot string) (string, error) {
	return run(ctx, repoRoot, "rev-parse", "--abbrev-ref", "HEAD")
}

// CurrentRevision returns the HEAD commit hash.
func CurrentRevision(ctx context.Context, repoRoot string) (string, error) {
	return run(ctx, repoRoot, "rev-parse", "HEAD")
}

func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	output, err := cmd.Output()
	if err != nil {
		detail := ""
		if exitErr, ok := err.(*exec.ExitError); ok {
			detail = ": " + strings.TrimSpace(string(exitErr.Stderr))
		}
		return "", errors.Wrap(err, errors.ErrorTypeInternal,
			fmt.Sprintf("git %s failed%s", strings.Join(args, " "), detail))
	}

	return strings.TrimSpace(string(output)), nil
}
