// Package mergebot merges labeled pull requests into the manifest repository.
//
// It consumes github webhook events, and when a pull request of a monitored
// repository is marked with the trigger label, it replays the pull request's
// commits through the autosquash engine onto the local working tree.
// Merge runs are serialized, the working tree is owned exclusively by the
// bot.
package mergebot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/go-github/v43/github"
	"go.uber.org/zap"

	github_prov "github.com/simplesurance/tapmerge/internal/provider/github"

	"github.com/simplesurance/tapmerge/internal/autosquash"
	"github.com/simplesurance/tapmerge/internal/githubclt"
	"github.com/simplesurance/tapmerge/internal/logfields"
)

const loggerName = "mergebot"

// GithubClient is the github API interface the bot consumes.
type GithubClient interface {
	PullRequest(ctx context.Context, owner, repo string, prNumber int) (*githubclt.PullRequestDetails, error)
	ApprovedReviewerTrailers(ctx context.Context, owner, repo string, prNumber int) ([]string, error)
	CreateIssueComment(ctx context.Context, owner, repo string, issueOrPRNr int, comment string) error
	RemoveLabel(ctx context.Context, owner, repo string, pullRequestOrIssueNumber int, label string) error
	ListPullRequests(ctx context.Context, owner, repo, state, sort, sortDirection string) githubclt.PRIterator
}

// RetryRunner is an interface used for running GithubClient methods
// repeatedly if they fail with a temporary error.
type RetryRunner interface {
	Run(context.Context, func(context.Context) error, []zap.Field) error
	Stop()
}

// GitClient is the local repository interface the bot and its autosquash
// engine drive.
type GitClient interface {
	autosquash.GitClient
	Fetch(ctx context.Context, remote, refspec string) error
	MergeBase(ctx context.Context, a, b string) (string, error)
}

type Repository struct {
	Owner          string
	RepositoryName string
}

func (r *Repository) String() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.RepositoryName)
}

// Config configures a Bot.
type Config struct {
	GithubClient GithubClient
	GitClient    GitClient
	Resolver     autosquash.PackageResolver
	EventChan    <-chan *github_prov.Event
	Retryer      RetryRunner
	Repositories []Repository
	// TriggerLabel marks pull requests to be merged.
	TriggerLabel string
	// Trigger optionally gates events on a jq filter query.
	Trigger *Trigger
	// Remote is the git remote the manifest repository is fetched from.
	Remote string
	// Squash configures the autosquash engine. ExtraTrailers is
	// overwritten per run with the reviewer sign-offs of the merged pull
	// request.
	Squash autosquash.Config
}

// Bot merges trigger-labeled pull requests, one at a time.
type Bot struct {
	ch           <-chan *github_prov.Event
	logger       *zap.Logger
	ghClient     GithubClient
	gitClt       GitClient
	resolver     autosquash.PackageResolver
	retryer      RetryRunner
	repositories map[Repository]struct{}
	triggerLabel string
	trigger      *Trigger
	remote       string
	squashCfg    autosquash.Config

	// lock serializes merge runs, the engine assumes exclusive ownership
	// of the working tree
	lock sync.Mutex
	wg   sync.WaitGroup
}

func New(cfg *Config) *Bot {
	repoMap := make(map[Repository]struct{}, len(cfg.Repositories))
	for _, r := range cfg.Repositories {
		repoMap[r] = struct{}{}
	}

	trigger := cfg.Trigger
	if trigger == nil {
		trigger = &Trigger{}
	}

	remote := cfg.Remote
	if remote == "" {
		remote = "origin"
	}

	return &Bot{
		ch:           cfg.EventChan,
		logger:       zap.L().Named(loggerName),
		ghClient:     cfg.GithubClient,
		gitClt:       cfg.GitClient,
		resolver:     cfg.Resolver,
		retryer:      cfg.Retryer,
		repositories: repoMap,
		triggerLabel: cfg.TriggerLabel,
		trigger:      trigger,
		remote:       remote,
		squashCfg:    cfg.Squash,
	}
}

var logFieldEventIgnored = logfields.Event("github_event_ignored")

func (b *Bot) isMonitoredRepository(owner, repositoryName string) bool {
	_, exist := b.repositories[Repository{
		Owner:          owner,
		RepositoryName: repositoryName,
	}]

	return exist
}

// EventLoop processes events until the event channel is closed.
func (b *Bot) EventLoop() {
	b.logger.Info("mergebot event loop started", logfields.Event("eventloop_started"))

	for event := range b.ch {
		metrics.ProcessedEventsInc()

		logger := b.logger.With(event.LogFields...)
		logger.Debug("event received", logfields.Event("event_received"))

		ev, ok := event.Event.(*github.PullRequestEvent)
		if !ok {
			logger.Debug("event ignored", logFieldEventIgnored)
			continue
		}

		b.processPullRequestEvent(context.Background(), logger, event, ev)
	}

	b.logger.Info("mergebot event loop terminated", logfields.Event("eventloop_terminated"))
}

func (b *Bot) processPullRequestEvent(ctx context.Context, logger *zap.Logger, event *github_prov.Event, ev *github.PullRequestEvent) {
	owner := ev.GetRepo().GetOwner().GetLogin()
	repoName := ev.GetRepo().GetName()
	prNumber := ev.GetNumber()

	repo := Repository{Owner: owner, RepositoryName: repoName}

	logger = logger.With(
		logfields.RepositoryOwner(owner),
		logfields.Repository(repoName),
		logfields.PullRequest(prNumber),
		zap.String("github.pull_request_event.action", ev.GetAction()),
	)

	if !b.isMonitoredRepository(owner, repoName) {
		logger.Debug(
			"event is for repository that is not monitored",
			logFieldEventIgnored,
		)

		return
	}

	if ev.GetAction() != "labeled" {
		logger.Debug("ignoring pull-request event", logFieldEventIgnored)
		return
	}

	labelName := ev.GetLabel().GetName()
	logger = logger.With(logfields.Label(labelName))

	if labelName != b.triggerLabel {
		return
	}

	if ev.GetPullRequest().GetState() == "closed" {
		logger.Warn(
			"ignoring event, trigger label was added to a closed pull-request",
			logFieldEventIgnored,
		)

		return
	}

	match, err := b.trigger.Match(ctx, event.JSON)
	if err != nil {
		logger.Error(
			"ignoring event, evaluating filter query failed",
			logFieldEventIgnored,
			zap.Error(err),
		)

		return
	}

	if !match {
		logger.Debug(
			"event does not match filter query",
			logFieldEventIgnored,
		)

		return
	}

	if err := b.RunMerge(ctx, repo, prNumber); err != nil {
		logger.Error(
			"merge run failed",
			logfields.Event("merge_run_failed"),
			zap.Error(err),
		)
	}
}

// RunMerge merges one pull request into the local manifest repository.
// On failure a comment describing the failure and the restored checkpoint is
// created on the pull request.
func (b *Bot) RunMerge(ctx context.Context, repo Repository, prNumber int) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	logF := []zap.Field{
		logfields.RepositoryOwner(repo.Owner),
		logfields.Repository(repo.RepositoryName),
		logfields.PullRequest(prNumber),
	}

	logger := b.logger.With(logF...)

	startTime := time.Now()

	var pr *githubclt.PullRequestDetails
	err := b.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		pr, err = b.ghClient.PullRequest(ctx, repo.Owner, repo.RepositoryName, prNumber)
		return err
	}, logF)
	if err != nil {
		if errors.Is(err, githubclt.ErrPullRequestIsClosed) {
			logger.Info(
				"pull request is closed, merge run skipped",
				logfields.Event("merge_run_skipped"),
			)

			return nil
		}

		return fmt.Errorf("retrieving pull request failed: %w", err)
	}

	var trailers []string
	err = b.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		trailers, err = b.ghClient.ApprovedReviewerTrailers(ctx, repo.Owner, repo.RepositoryName, prNumber)
		return err
	}, logF)
	if err != nil {
		return fmt.Errorf("retrieving approved reviewers failed: %w", err)
	}

	mergeErr := b.merge(ctx, pr, trailers)

	metrics.MergeRunInc(&repo, mergeErr == nil)
	metrics.MergeRunDurationObserve(&repo, time.Since(startTime))

	if mergeErr != nil {
		b.reportFailure(ctx, repo, prNumber, mergeErr)
		return mergeErr
	}

	err = b.retryer.Run(ctx, func(ctx context.Context) error {
		return b.ghClient.RemoveLabel(ctx, repo.Owner, repo.RepositoryName, prNumber, b.triggerLabel)
	}, logF)
	if err != nil {
		logger.Error(
			"removing trigger label after successful merge failed",
			logfields.Event("remove_trigger_label_failed"),
			zap.Error(err),
		)
	}

	logger.Info(
		"pull request merged",
		logfields.Event("merge_run_finished"),
		zap.Duration("duration", time.Since(startTime)),
	)

	return nil
}

func (b *Bot) merge(ctx context.Context, pr *githubclt.PullRequestDetails, trailers []string) error {
	if err := b.gitClt.Fetch(ctx, b.remote, pr.BaseRef); err != nil {
		return fmt.Errorf("fetching base branch failed: %w", err)
	}

	if err := b.gitClt.Fetch(ctx, b.remote, fmt.Sprintf("refs/pull/%d/head", pr.Number)); err != nil {
		return fmt.Errorf("fetching pull request head failed: %w", err)
	}

	baseRev, err := b.gitClt.MergeBase(ctx, b.remote+"/"+pr.BaseRef, pr.HeadSHA)
	if err != nil {
		return fmt.Errorf("resolving merge base failed: %w", err)
	}

	if err := b.gitClt.ResetHard(ctx, pr.HeadSHA); err != nil {
		return fmt.Errorf("checking out pull request head failed: %w", err)
	}

	squashCfg := b.squashCfg
	squashCfg.ExtraTrailers = trailers

	engine := autosquash.New(b.gitClt, b.resolver, squashCfg)

	return engine.Run(ctx, baseRev)
}

func (b *Bot) reportFailure(ctx context.Context, repo Repository, prNumber int, mergeErr error) {
	comment := fmt.Sprintf("tapmerge: merging the pull request failed: %s", mergeErr)

	err := b.retryer.Run(ctx, func(ctx context.Context) error {
		return b.ghClient.CreateIssueComment(ctx, repo.Owner, repo.RepositoryName, prNumber, comment)
	}, nil)
	if err != nil {
		b.logger.Error(
			"creating failure comment on pull request failed",
			logfields.RepositoryOwner(repo.Owner),
			logfields.Repository(repo.RepositoryName),
			logfields.PullRequest(prNumber),
			logfields.Event("failure_comment_failed"),
			zap.Error(err),
		)
	}
}

func (b *Bot) Start() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		if err := b.InitSync(context.Background()); err != nil {
			b.logger.Error(
				"initial synchronization failed",
				logfields.Event("initial_sync_failed"),
				zap.Error(err),
			)
		}

		b.EventLoop()
	}()
}

func (b *Bot) Stop() {
	b.logger.Debug("mergebot terminating")

	b.retryer.Stop()

	b.wg.Wait()
	b.logger.Debug("mergebot terminated")
}
