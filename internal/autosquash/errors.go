package autosquash

import (
	"fmt"
	"strings"
)

// MultiFileCommitError is returned when a commit of the incoming range
// changes more than one manifest file. The engine cannot split such commits
// and fails closed before mutating anything.
type MultiFileCommitError struct {
	Commit string
	Files  []string
}

func (e *MultiFileCommitError) Error() string {
	return fmt.Sprintf(
		"commit %s changes %d manifest files (%s), each commit may only change one",
		e.Commit, len(e.Files), strings.Join(e.Files, ", "),
	)
}

// RollbackError is returned when restoring the checkpoint after a failed run
// itself failed. The working tree state is undefined and must be inspected
// manually.
type RollbackError struct {
	// Checkpoint is the ref the rollback tried to restore.
	Checkpoint string
	// Cause is the failure that triggered the rollback.
	Cause error
	// Err is the failure of the rollback itself.
	Err error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf(
		"restoring checkpoint %s failed: %s, working tree state is undefined, original failure: %s",
		e.Checkpoint, e.Err, e.Cause,
	)
}

func (e *RollbackError) Unwrap() error {
	return e.Cause
}
