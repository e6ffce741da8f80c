// Package autosquash rewrites the commits of a pull request so that every
// changed manifest file ends up as exactly one commit with a normalized
// subject, an aggregated body and deduplicated trailers.
//
// A run is all-or-nothing: the history position is recorded before the first
// mutation and restored when anything fails.
package autosquash

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/simplesurance/tapmerge/internal/git"
	"github.com/simplesurance/tapmerge/internal/logfields"
	"github.com/simplesurance/tapmerge/internal/manifest"
)

const loggerName = "autosquash"

const manifestExt = ".rb"

// GitClient is the interface to the external history mutator.
// It is implemented by git.Client.
type GitClient interface {
	RevList(ctx context.Context, from, to string) ([]*git.Commit, error)
	ChangedFiles(ctx context.Context, commit string) ([]*git.FileChange, error)
	FileContent(ctx context.Context, ref, path string) (content string, exists bool, err error)
	CherryPick(ctx context.Context, commit string, noCommit bool) error
	CherryPickAbort(ctx context.Context) error
	Commit(ctx context.Context, message string, author *git.Signature, paths []string) (string, error)
	Head(ctx context.Context) (string, error)
	ResetHard(ctx context.Context, ref string) error
}

// Config configures an autosquash engine.
type Config struct {
	// FormulaDir and CaskDir are the repository directories containing
	// manifest files. Paths outside of them are not qualifying.
	FormulaDir string
	CaskDir    string

	// Reason is appended to generated subjects, e.g. the cause of a
	// revision bump.
	Reason string

	// ExtraTrailers are merged into the trailers of every finalized
	// commit, e.g. reviewer sign-offs. They are deduplicated together
	// with the trailers collected from the commit messages.
	ExtraTrailers []string

	// ResolveConflictsManually leaves a replay conflict in the working
	// tree for manual fix-up instead of rolling back to the checkpoint.
	ResolveConflictsManually bool
}

// Engine rewrites one commit range per Run invocation.
// It assumes exclusive ownership of the working tree that its GitClient
// operates on and is stateless between invocations.
type Engine struct {
	git      GitClient
	resolver PackageResolver
	cfg      Config
	logger   *zap.Logger
}

func New(gitClt GitClient, resolver PackageResolver, cfg Config) *Engine {
	if cfg.FormulaDir == "" {
		cfg.FormulaDir = "Formula"
	}

	if cfg.CaskDir == "" {
		cfg.CaskDir = "Casks"
	}

	return &Engine{
		git:      gitClt,
		resolver: resolver,
		cfg:      cfg,
		logger:   zap.L().Named(loggerName),
	}
}

// Run squashes and rewords the commits in the range (originalRev, HEAD] so
// that every manifest file of the range is represented by exactly one commit.
//
// The current HEAD is recorded as checkpoint before any mutation. On failure
// the working tree is restored to the checkpoint and the returned error names
// it; if restoring fails a *RollbackError is returned instead.
// A *MultiFileCommitError is returned before anything was mutated.
func (e *Engine) Run(ctx context.Context, originalRev string) error {
	checkpoint, err := e.git.Head(ctx)
	if err != nil {
		return fmt.Errorf("resolving checkpoint failed: %w", err)
	}

	logger := e.logger.With(logfields.Checkpoint(checkpoint))

	commits, err := e.git.RevList(ctx, originalRev, checkpoint)
	if err != nil {
		return fmt.Errorf("resolving commit range failed: %w", err)
	}

	if len(commits) == 0 {
		logger.Debug("commit range is empty, nothing to do")
		return nil
	}

	// Built before the first mutation: a multi-file commit aborts the run
	// while the working tree is still untouched.
	idx, err := buildIndex(ctx, e.git, commits, e.isManifestPath)
	if err != nil {
		return err
	}

	if err := e.git.ResetHard(ctx, originalRev); err != nil {
		return e.rollback(ctx, checkpoint, err)
	}

	if err := e.apply(ctx, idx); err != nil {
		var conflictErr *git.ConflictError
		if e.cfg.ResolveConflictsManually && errors.As(err, &conflictErr) {
			logger.Warn(
				"replay conflict left in working tree for manual resolution",
				logfields.Event("autosquash_conflict_left_unresolved"),
				logfields.Commit(conflictErr.Commit),
			)

			return fmt.Errorf(
				"replay stopped at a conflict, resolve it manually or reset to checkpoint %s: %w",
				checkpoint, err,
			)
		}

		return e.rollback(ctx, checkpoint, err)
	}

	logger.Info(
		"autosquash run finished",
		logfields.Event("autosquash_run_finished"),
		zap.Int("commit_count", len(commits)),
		zap.Int("manifest_file_count", len(idx.fileCommits)),
	)

	return nil
}

// rollback restores the checkpoint after cause aborted the run.
// An in-flight cherry-pick is cancelled first. The returned error wraps cause
// and names the checkpoint; if the rollback itself fails a *RollbackError
// reporting both failures is returned.
func (e *Engine) rollback(ctx context.Context, checkpoint string, cause error) error {
	if err := e.git.CherryPickAbort(ctx); err != nil {
		e.logger.Warn(
			"cancelling in-flight cherry-pick failed",
			logfields.Event("autosquash_cherry_pick_abort_failed"),
			zap.Error(err),
		)
	}

	if err := e.git.ResetHard(ctx, checkpoint); err != nil {
		return &RollbackError{Checkpoint: checkpoint, Cause: cause, Err: err}
	}

	return fmt.Errorf("run aborted, working tree restored to checkpoint %s: %w", checkpoint, cause)
}

// apply replays the indexed commits onto the reset HEAD.
// Commits are visited in range order; the whole commit cluster of a file is
// consumed on its first encounter, so no commit is visited twice.
func (e *Engine) apply(ctx context.Context, idx *commitFileIndex) error {
	done := make(map[string]struct{}, len(idx.fileCommits))

	for _, commit := range idx.commits {
		file, indexed := idx.commitFile[commit.Hash]
		if !indexed {
			e.logger.Debug(
				"commit changes no manifest file, dropped",
				logfields.Event("autosquash_commit_dropped"),
				logfields.Commit(commit.Hash),
			)

			continue
		}

		if _, processed := done[file]; processed {
			continue
		}

		cluster := idx.fileCommits[file]

		var err error
		if len(cluster) == 1 {
			err = e.reword(ctx, cluster[0], file)
		} else {
			err = e.squash(ctx, cluster, file)
		}

		if err != nil {
			return err
		}

		done[file] = struct{}{}
	}

	return nil
}

// reword replays a file's only commit and normalizes its message.
// The original subject is kept when it already equals the bump subject or
// starts with "<name>:", which is treated as intentionally hand-authored.
// Note that <name> is not validated against the file being bumped.
func (e *Engine) reword(ctx context.Context, commit *git.Commit, file string) error {
	bumpSubject, err := e.bumpSubject(ctx, file, commit.Hash)
	if err != nil {
		return err
	}

	msg := SplitMessage(commit.Message)

	keepSubject := msg.Subject == bumpSubject ||
		strings.HasPrefix(msg.Subject, packageName(file)+":")

	trailers := mergeTrailers(msg.Trailers, e.cfg.ExtraTrailers)

	if keepSubject && len(trailers) == len(msg.Trailers) {
		e.logger.Debug(
			"replaying commit unchanged",
			logfields.Event("autosquash_commit_replayed"),
			logfields.Commit(commit.Hash),
			logfields.File(file),
		)

		return e.git.CherryPick(ctx, commit.Hash, false)
	}

	if err := e.git.CherryPick(ctx, commit.Hash, true); err != nil {
		return err
	}

	final := Message{Trailers: trailers}

	if keepSubject {
		final.Subject = msg.Subject
		final.Body = msg.Body
	} else {
		final.Subject = bumpSubject

		// the original subject becomes the first body paragraph
		final.Body = msg.Subject
		if msg.Body != "" {
			final.Body += "\n\n" + msg.Body
		}
	}

	newHash, err := e.git.Commit(ctx, final.String(), &commit.Author, []string{file})
	if err != nil {
		return fmt.Errorf("finalizing reworded commit for %s failed: %w", file, err)
	}

	e.logger.Debug(
		"commit reworded",
		logfields.Event("autosquash_commit_reworded"),
		logfields.Commit(newHash),
		logfields.File(file),
		zap.String("subject", final.Subject),
	)

	return nil
}

// squash replays all commits of a file without finalizing and records one
// combined commit. The earliest commit provides author and date, every other
// distinct author becomes a Co-authored-by trailer.
func (e *Engine) squash(ctx context.Context, cluster []*git.Commit, file string) error {
	first := cluster[0]
	last := cluster[len(cluster)-1]

	var bullets []string
	var trailerGroups [][]string
	var coauthors []string

	seenAuthors := map[string]struct{}{first.Author.String(): {}}

	for _, commit := range cluster {
		if err := e.git.CherryPick(ctx, commit.Hash, true); err != nil {
			return err
		}

		msg := SplitMessage(commit.Message)
		bullets = append(bullets, bullet(msg))
		trailerGroups = append(trailerGroups, msg.Trailers)

		author := commit.Author.String()
		if _, seen := seenAuthors[author]; !seen {
			seenAuthors[author] = struct{}{}
			coauthors = append(coauthors, "Co-authored-by: "+author)
		}
	}

	// old snapshot: HEAD has not moved, the cluster is only staged
	bumpSubject, err := e.bumpSubject(ctx, file, last.Hash)
	if err != nil {
		return err
	}

	trailerGroups = append(trailerGroups, coauthors, e.cfg.ExtraTrailers)

	final := Message{
		Subject:  bumpSubject,
		Body:     strings.Join(bullets, "\n"),
		Trailers: mergeTrailers(trailerGroups...),
	}

	newHash, err := e.git.Commit(ctx, final.String(), &first.Author, []string{file})
	if err != nil {
		return fmt.Errorf("finalizing squashed commit for %s failed: %w", file, err)
	}

	e.logger.Debug(
		"commits squashed",
		logfields.Event("autosquash_commits_squashed"),
		logfields.Commit(newHash),
		logfields.File(file),
		zap.Int("squashed_commit_count", len(cluster)),
		zap.String("subject", final.Subject),
	)

	return nil
}

// bumpSubject classifies the change of file between the current HEAD and
// newRev. Resolver failures count as absent snapshots.
func (e *Engine) bumpSubject(ctx context.Context, file, newRev string) (string, error) {
	var oldPkg, newPkg *manifest.Package

	oldContents, oldExists, err := e.git.FileContent(ctx, "HEAD", file)
	if err != nil {
		return "", fmt.Errorf("reading old snapshot of %s failed: %w", file, err)
	}

	newContents, newExists, err := e.git.FileContent(ctx, newRev, file)
	if err != nil {
		return "", fmt.Errorf("reading new snapshot of %s failed: %w", file, err)
	}

	if oldExists {
		if pkg, ok := e.resolver.Resolve(file, oldContents); ok {
			oldPkg = pkg
		}
	}

	if newExists {
		if pkg, ok := e.resolver.Resolve(file, newContents); ok {
			newPkg = pkg
		}
	}

	return determineBumpSubject(oldPkg, newPkg, file, e.isCaskPath(file), e.cfg.Reason), nil
}

func (e *Engine) isManifestPath(p string) bool {
	if path.Ext(p) != manifestExt {
		return false
	}

	return e.isCaskPath(p) || strings.HasPrefix(p, e.cfg.FormulaDir+"/")
}

func (e *Engine) isCaskPath(p string) bool {
	return strings.HasPrefix(p, e.cfg.CaskDir+"/")
}
