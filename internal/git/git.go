// Package git is a thin adapter around the git command line tool.
// It exposes the small set of history operations that merge runs need and
// returns structured values, keeping output parsing in one place.
package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

const loggerName = "git"

// Signature identifies the author of a commit.
type Signature struct {
	Name  string
	Email string
	Date  time.Time
}

func (s *Signature) String() string {
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}

// Commit is one commit of the repository history.
type Commit struct {
	Hash    string
	Author  Signature
	Message string
}

// ChangeKind describes how a commit changed a file.
type ChangeKind byte

const (
	Added    ChangeKind = 'A'
	Modified ChangeKind = 'M'
	Deleted  ChangeKind = 'D'
)

// FileChange is one changed path of a commit.
type FileChange struct {
	Path string
	Kind ChangeKind
}

// ConflictError is returned when replaying a commit fails because of a merge
// conflict. The working tree is left in the conflicted state.
type ConflictError struct {
	Commit string
	Output string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("cherry-picking %s failed with a conflict: %s",
		e.Commit, strings.TrimSpace(e.Output))
}

// Client runs git commands in a fixed repository directory.
// It does not serialize operations, the caller must own the working tree
// exclusively.
type Client struct {
	dir    string
	env    []string
	logger *zap.Logger
}

type Option func(*Client)

// WithCommitter sets the committer identity for all commands run by the
// client. It is passed per command via the environment, global git
// configuration is left untouched.
func WithCommitter(name, email string) Option {
	return func(c *Client) {
		c.env = append(c.env,
			"GIT_COMMITTER_NAME="+name,
			"GIT_COMMITTER_EMAIL="+email,
		)
	}
}

func New(dir string, opts ...Option) *Client {
	clt := Client{
		dir:    dir,
		logger: zap.L().Named(loggerName),
	}

	for _, opt := range opts {
		opt(&clt)
	}

	return &clt
}

func (c *Client) run(ctx context.Context, extraEnv []string, args ...string) (stdout, stderr string, err error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.dir
	cmd.Env = append(append(os.Environ(), c.env...), extraEnv...)

	var outBuf, errBuf strings.Builder
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	c.logger.Debug(
		"running git command",
		zap.String("git.command", strings.Join(args, " ")),
		zap.String("git.dir", c.dir),
	)

	err = cmd.Run()
	if err != nil {
		return outBuf.String(), errBuf.String(), fmt.Errorf(
			"git %s: %w: %s", strings.Join(args, " "), err,
			strings.TrimSpace(errBuf.String()),
		)
	}

	return outBuf.String(), errBuf.String(), nil
}

// RevList returns the commits in the range (from, to], oldest first.
func (c *Client) RevList(ctx context.Context, from, to string) ([]*Commit, error) {
	const fieldSep = "\x1f"

	out, _, err := c.run(ctx, nil,
		"log", "--reverse", "-z",
		"--format=%H"+fieldSep+"%an"+fieldSep+"%ae"+fieldSep+"%aI"+fieldSep+"%B",
		from+".."+to,
	)
	if err != nil {
		return nil, err
	}

	var result []*Commit

	for _, record := range strings.Split(out, "\x00") {
		if strings.TrimSpace(record) == "" {
			continue
		}

		fields := strings.SplitN(record, fieldSep, 5)
		if len(fields) != 5 {
			return nil, fmt.Errorf("parsing git log record failed, expected 5 fields, got %d: %q", len(fields), record)
		}

		date, err := time.Parse(time.RFC3339, fields[3])
		if err != nil {
			return nil, fmt.Errorf("parsing author date of commit %s failed: %w", fields[0], err)
		}

		result = append(result, &Commit{
			Hash: fields[0],
			Author: Signature{
				Name:  fields[1],
				Email: fields[2],
				Date:  date,
			},
			Message: strings.TrimRight(fields[4], "\n"),
		})
	}

	return result, nil
}

// ChangedFiles returns the paths that commit added, modified or deleted.
func (c *Client) ChangedFiles(ctx context.Context, commit string) ([]*FileChange, error) {
	out, _, err := c.run(ctx, nil,
		"diff-tree", "--no-commit-id", "--name-status", "--root", "-r", "-z", commit,
	)
	if err != nil {
		return nil, err
	}

	records := strings.Split(strings.TrimRight(out, "\x00"), "\x00")

	var result []*FileChange

	for i := 0; i+1 < len(records); i += 2 {
		status := records[i]
		path := records[i+1]

		if status == "" {
			return nil, fmt.Errorf("parsing diff-tree output of %s failed, empty status field before %q", commit, path)
		}

		result = append(result, &FileChange{
			Path: path,
			Kind: ChangeKind(status[0]),
		})
	}

	return result, nil
}

// FileContent returns the content of path at ref.
// If the path does not exist at ref, exists is false and err is nil, absence
// is a regular state and not an error.
func (c *Client) FileContent(ctx context.Context, ref, path string) (content string, exists bool, err error) {
	out, stderr, err := c.run(ctx, nil, "show", ref+":"+path)
	if err != nil {
		if strings.Contains(stderr, "does not exist in") ||
			strings.Contains(stderr, "exists on disk, but not in") {
			return "", false, nil
		}

		return "", false, err
	}

	return out, true, nil
}

// CherryPick replays commit onto the current HEAD.
// If noCommit is true the changes are applied and staged but no commit is
// finalized.
// If replaying fails with a merge conflict a *ConflictError is returned and
// the working tree keeps the conflicted state.
func (c *Client) CherryPick(ctx context.Context, commit string, noCommit bool) error {
	args := []string{"cherry-pick"}
	if noCommit {
		args = append(args, "--no-commit")
	}
	args = append(args, commit)

	stdout, stderr, err := c.run(ctx, nil, args...)
	if err != nil {
		combined := stdout + stderr
		if strings.Contains(strings.ToLower(combined), "conflict") {
			return &ConflictError{Commit: commit, Output: combined}
		}

		return err
	}

	return nil
}

// CherryPickAbort cancels an in-flight cherry-pick sequence.
// It succeeds when no cherry-pick is in progress.
func (c *Client) CherryPickAbort(ctx context.Context) error {
	_, stderr, err := c.run(ctx, nil, "cherry-pick", "--abort")
	if err != nil {
		if strings.Contains(stderr, "no cherry-pick or revert in progress") {
			return nil
		}

		return err
	}

	return nil
}

// Commit finalizes a commit recording the current content of paths, with the
// given message and author. The hash of the new commit is returned.
func (c *Client) Commit(ctx context.Context, message string, author *Signature, paths []string) (string, error) {
	env := []string{
		"GIT_AUTHOR_NAME=" + author.Name,
		"GIT_AUTHOR_EMAIL=" + author.Email,
		"GIT_AUTHOR_DATE=" + author.Date.Format(time.RFC3339),
	}

	args := []string{"commit", "-q", "-m", message, "--"}
	args = append(args, paths...)

	if _, _, err := c.run(ctx, env, args...); err != nil {
		return "", err
	}

	return c.Head(ctx)
}

// Head returns the hash of the current HEAD commit.
func (c *Client) Head(ctx context.Context) (string, error) {
	out, _, err := c.run(ctx, nil, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(out), nil
}

// ResetHard resets HEAD and the working tree to ref.
func (c *Client) ResetHard(ctx context.Context, ref string) error {
	_, _, err := c.run(ctx, nil, "reset", "-q", "--hard", ref)
	return err
}

// Fetch fetches refspec from remote.
func (c *Client) Fetch(ctx context.Context, remote, refspec string) error {
	_, _, err := c.run(ctx, nil, "fetch", "-q", remote, refspec)
	return err
}

// MergeBase returns the best common ancestor of the two refs.
func (c *Client) MergeBase(ctx context.Context, a, b string) (string, error) {
	out, _, err := c.run(ctx, nil, "merge-base", a, b)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(out), nil
}
