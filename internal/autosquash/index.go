package autosquash

import (
	"context"

	"github.com/simplesurance/tapmerge/internal/git"
)

// commitFileIndex is the bidirectional mapping between the commits of one
// incoming range and the single manifest file each of them changes.
// It is built once per run, before any mutation.
type commitFileIndex struct {
	// commits is the full incoming range in original order.
	commits []*git.Commit
	// commitFile maps a commit hash to the manifest file it changes.
	// Commits changing no manifest file are not contained.
	commitFile map[string]string
	// fileCommits maps a manifest file to its commits, in range order.
	fileCommits map[string][]*git.Commit
}

// buildIndex indexes commits by the manifest file each one changes.
// Commits changing no qualifying path are dropped from the index.
// A commit changing two or more qualifying paths is fatal: a
// *MultiFileCommitError naming the commit and its files is returned.
func buildIndex(ctx context.Context, clt GitClient, commits []*git.Commit, qualifies func(string) bool) (*commitFileIndex, error) {
	idx := commitFileIndex{
		commits:     commits,
		commitFile:  make(map[string]string, len(commits)),
		fileCommits: map[string][]*git.Commit{},
	}

	for _, commit := range commits {
		changes, err := clt.ChangedFiles(ctx, commit.Hash)
		if err != nil {
			return nil, err
		}

		var files []string
		for _, change := range changes {
			if qualifies(change.Path) {
				files = append(files, change.Path)
			}
		}

		switch len(files) {
		case 0:
			continue

		case 1:
			idx.commitFile[commit.Hash] = files[0]
			idx.fileCommits[files[0]] = append(idx.fileCommits[files[0]], commit)

		default:
			return nil, &MultiFileCommitError{Commit: commit.Hash, Files: files}
		}
	}

	return &idx, nil
}
