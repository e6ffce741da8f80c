package mergebot

import (
	"context"
	"fmt"

	"github.com/google/go-github/v43/github"
	"go.uber.org/zap"

	"github.com/simplesurance/tapmerge/internal/logfields"
)

// InitSync merges the pull requests that already carry the trigger label.
// This is intended to be run before the event loop is started, to process
// labels that were added while the bot was not running.
func (b *Bot) InitSync(ctx context.Context) error {
	for repo := range b.repositories {
		if err := b.sync(ctx, repo); err != nil {
			return fmt.Errorf("syncing %s failed: %w", repo.String(), err)
		}
	}

	return nil
}

func (b *Bot) sync(ctx context.Context, repo Repository) error {
	logger := b.logger.With(
		logfields.RepositoryOwner(repo.Owner),
		logfields.Repository(repo.RepositoryName),
	)

	logger.Info(
		"starting synchronization",
		logfields.Event("initial_sync_started"),
	)

	var seen, merged int

	it := b.ghClient.ListPullRequests(ctx, repo.Owner, repo.RepositoryName, "open", "created", "asc")
	for {
		var pr *github.PullRequest

		err := b.retryer.Run(ctx, func(context.Context) error {
			var err error
			pr, err = it.Next()
			return err
		}, nil)
		if err != nil {
			return err
		}

		if pr == nil { // iteration finished, no more results
			break
		}

		seen++

		if !hasLabel(pr, b.triggerLabel) {
			continue
		}

		if err := b.RunMerge(ctx, repo, pr.GetNumber()); err != nil {
			logger.Error(
				"merge run during synchronization failed",
				logfields.Event("initial_sync_merge_failed"),
				logfields.PullRequest(pr.GetNumber()),
				zap.Error(err),
			)

			continue
		}

		merged++
	}

	logger.Info(
		"synchronization finished",
		logfields.Event("initial_sync_finished"),
		zap.Int("pull_requests_seen", seen),
		zap.Int("pull_requests_merged", merged),
	)

	return nil
}

func hasLabel(pr *github.PullRequest, label string) bool {
	for _, l := range pr.Labels {
		if l.GetName() == label {
			return true
		}
	}

	return false
}
