package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func skipWithoutGit(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git executable not found in PATH")
	}
}

var testIdentityEnv = []string{
	"GIT_AUTHOR_NAME=Alice",
	"GIT_AUTHOR_EMAIL=alice@example.com",
	"GIT_AUTHOR_DATE=2024-03-01T10:00:00+00:00",
	"GIT_COMMITTER_NAME=Alice",
	"GIT_COMMITTER_EMAIL=alice@example.com",
}

func gitRun(t *testing.T, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), testIdentityEnv...)

	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "git %s failed: %s", strings.Join(args, " "), out)

	return strings.TrimSpace(string(out))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()

	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func commitFile(t *testing.T, dir, name, content, message string) string {
	t.Helper()

	writeFile(t, dir, name, content)
	gitRun(t, dir, "add", name)
	gitRun(t, dir, "commit", "-q", "-m", message)

	return gitRun(t, dir, "rev-parse", "HEAD")
}

func createTestRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	gitRun(t, dir, "init", "-q")
	commitFile(t, dir, "README.md", "test repository\n", "initial commit")

	return dir
}

func newTestClient(t *testing.T, dir string, opts ...Option) *Client {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))
	return New(dir, opts...)
}

func TestRevList(t *testing.T) {
	skipWithoutGit(t)

	dir := createTestRepo(t)
	base := gitRun(t, dir, "rev-parse", "HEAD")

	c1 := commitFile(t, dir, "a.txt", "a\n", "first commit\n\nwith a body")
	c2 := commitFile(t, dir, "b.txt", "b\n", "second commit")

	clt := newTestClient(t, dir)

	commits, err := clt.RevList(context.Background(), base, c2)
	require.NoError(t, err)
	require.Len(t, commits, 2)

	assert.Equal(t, c1, commits[0].Hash, "commits must be ordered oldest first")
	assert.Equal(t, c2, commits[1].Hash)

	assert.Equal(t, "first commit\n\nwith a body", commits[0].Message)
	assert.Equal(t, "second commit", commits[1].Message)

	assert.Equal(t, "Alice", commits[0].Author.Name)
	assert.Equal(t, "alice@example.com", commits[0].Author.Email)
	assert.Equal(t,
		time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		commits[0].Author.Date.UTC(),
	)
}

func TestRevListEmptyRange(t *testing.T) {
	skipWithoutGit(t)

	dir := createTestRepo(t)
	head := gitRun(t, dir, "rev-parse", "HEAD")

	clt := newTestClient(t, dir)

	commits, err := clt.RevList(context.Background(), head, head)
	require.NoError(t, err)
	assert.Empty(t, commits)
}

func TestChangedFiles(t *testing.T) {
	skipWithoutGit(t)

	dir := createTestRepo(t)
	commitFile(t, dir, "old.txt", "old\n", "add old.txt")

	writeFile(t, dir, "new.txt", "new\n")
	writeFile(t, dir, "README.md", "changed\n")
	gitRun(t, dir, "add", "new.txt", "README.md")
	gitRun(t, dir, "rm", "-q", "old.txt")
	gitRun(t, dir, "commit", "-q", "-m", "mixed change")
	commit := gitRun(t, dir, "rev-parse", "HEAD")

	clt := newTestClient(t, dir)

	changes, err := clt.ChangedFiles(context.Background(), commit)
	require.NoError(t, err)

	byPath := map[string]ChangeKind{}
	for _, change := range changes {
		byPath[change.Path] = change.Kind
	}

	assert.Equal(t, map[string]ChangeKind{
		"README.md": Modified,
		"new.txt":   Added,
		"old.txt":   Deleted,
	}, byPath)
}

func TestFileContent(t *testing.T) {
	skipWithoutGit(t)

	dir := createTestRepo(t)
	clt := newTestClient(t, dir)

	content, exists, err := clt.FileContent(context.Background(), "HEAD", "README.md")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "test repository\n", content)

	_, exists, err = clt.FileContent(context.Background(), "HEAD", "missing.txt")
	require.NoError(t, err, "an absent path is a regular state, not an error")
	assert.False(t, exists)
}

func TestCommit(t *testing.T) {
	skipWithoutGit(t)

	dir := createTestRepo(t)
	clt := newTestClient(t, dir, WithCommitter("tapmerge", "bot@example.com"))

	writeFile(t, dir, "README.md", "rewritten\n")
	gitRun(t, dir, "add", "README.md")

	author := &Signature{
		Name:  "Bob",
		Email: "bob@example.com",
		Date:  time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
	}

	hash, err := clt.Commit(context.Background(), "rewrite readme\n\nmore detail", author, []string{"README.md"})
	require.NoError(t, err)
	assert.Equal(t, gitRun(t, dir, "rev-parse", "HEAD"), hash)

	assert.Equal(t, "Bob <bob@example.com>", gitRun(t, dir, "show", "-s", "--format=%an <%ae>", hash))
	assert.Equal(t, "tapmerge <bot@example.com>", gitRun(t, dir, "show", "-s", "--format=%cn <%ce>", hash))
	assert.Equal(t, "rewrite readme\n\nmore detail", gitRun(t, dir, "show", "-s", "--format=%B", hash))
}

func TestCherryPickNoCommit(t *testing.T) {
	skipWithoutGit(t)

	dir := createTestRepo(t)
	base := gitRun(t, dir, "rev-parse", "HEAD")
	commit := commitFile(t, dir, "a.txt", "a\n", "add a.txt")

	clt := newTestClient(t, dir)
	require.NoError(t, clt.ResetHard(context.Background(), base))

	require.NoError(t, clt.CherryPick(context.Background(), commit, true))

	head, err := clt.Head(context.Background())
	require.NoError(t, err)
	assert.Equal(t, base, head, "no commit must be finalized")

	assert.FileExists(t, filepath.Join(dir, "a.txt"), "the changes must be applied to the working tree")
}

func TestCherryPickConflict(t *testing.T) {
	skipWithoutGit(t)

	dir := createTestRepo(t)
	commitFile(t, dir, "f.txt", "base\n", "add f.txt")
	conflicting := commitFile(t, dir, "f.txt", "theirs\n", "change to theirs")

	gitRun(t, dir, "reset", "-q", "--hard", "HEAD~1")
	commitFile(t, dir, "f.txt", "ours\n", "change to ours")

	clt := newTestClient(t, dir)

	err := clt.CherryPick(context.Background(), conflicting, false)

	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, conflicting, conflictErr.Commit)

	require.NoError(t, clt.CherryPickAbort(context.Background()))

	content, err := os.ReadFile(filepath.Join(dir, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "ours\n", string(content), "aborting must restore the pre-pick state")
}

func TestCherryPickAbortWithoutPickInProgress(t *testing.T) {
	skipWithoutGit(t)

	dir := createTestRepo(t)
	clt := newTestClient(t, dir)

	assert.NoError(t, clt.CherryPickAbort(context.Background()))
}

func TestFetchAndMergeBase(t *testing.T) {
	skipWithoutGit(t)

	upstream := createTestRepo(t)
	branch := gitRun(t, upstream, "rev-parse", "--abbrev-ref", "HEAD")

	dir := t.TempDir()
	gitRun(t, dir, "clone", "-q", upstream, "clone")
	clone := filepath.Join(dir, "clone")

	base := gitRun(t, upstream, "rev-parse", "HEAD")
	upstreamTip := commitFile(t, upstream, "a.txt", "a\n", "add a.txt")

	clt := newTestClient(t, clone)
	require.NoError(t, clt.Fetch(context.Background(), "origin", branch))

	mergeBase, err := clt.MergeBase(context.Background(), "origin/"+branch, base)
	require.NoError(t, err)
	assert.Equal(t, base, mergeBase)

	_, exists, err := clt.FileContent(context.Background(), upstreamTip, "a.txt")
	require.NoError(t, err)
	assert.True(t, exists, "the fetched commit must be present in the clone")
}
