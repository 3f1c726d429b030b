package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initRepo builds a throwaway repository with one commit on main and a
// feature branch carrying two more changed files.
func initRepo(t *testing.T) string {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}

	dir := t.TempDir()
	git := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		output, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, output)
	}

	write := func(name, content string) {
		t.Helper()
		full := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}

	git("init", "--initial-branch=main")
	write("README.md", "hello")
	git("add", ".")
	git("commit", "-m", "initial")

	git("checkout", "-b", "feature")
	write("connectors/source-faker/metadata.yaml", "data: {}")
	write("connectors/source-faker/main.go", "package main")
	git("add", ".")
	git("commit", "-m", "add faker")

	return dir
}

func TestIsRepoRoot(t *testing.T) {
	dir := initRepo(t)
	assert.True(t, IsRepoRoot(dir))
	assert.False(t, IsRepoRoot(t.TempDir()))
}

func TestDiffNames(t *testing.T) {
	dir := initRepo(t)

	files, err := DiffNames(context.Background(), dir, "main")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"connectors/source-faker/metadata.yaml",
		"connectors/source-faker/main.go",
	}, files)
}

func TestDiffNamesNoChanges(t *testing.T) {
	dir := initRepo(t)

	files, err := DiffNames(context.Background(), dir, "feature")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDiffNamesBadBase(t *testing.T) {
	dir := initRepo(t)

	_, err := DiffNames(context.Background(), dir, "no-such-branch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "git diff")
}

func TestCurrentBranchAndRevision(t *testing.T) {
	dir := initRepo(t)
	ctx := context.Background()

	branch, err := CurrentBranch(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, "feature", branch)

	revision, err := CurrentRevision(ctx, dir)
	require.NoError(t, err)
	assert.Len(t, revision, 40)
}
