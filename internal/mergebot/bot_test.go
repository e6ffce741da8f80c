package mergebot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-github/v43/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/tapmerge/internal/git"
	"github.com/simplesurance/tapmerge/internal/githubclt"
	"github.com/simplesurance/tapmerge/internal/manifest"
	github_prov "github.com/simplesurance/tapmerge/internal/provider/github"
)

type fakeGithubClient struct {
	pr       *githubclt.PullRequestDetails
	prErr    error
	trailers []string
	listPRs  []*github.PullRequest

	comments      []string
	removedLabels []string
}

func (f *fakeGithubClient) PullRequest(context.Context, string, string, int) (*githubclt.PullRequestDetails, error) {
	return f.pr, f.prErr
}

func (f *fakeGithubClient) ApprovedReviewerTrailers(context.Context, string, string, int) ([]string, error) {
	return f.trailers, nil
}

func (f *fakeGithubClient) CreateIssueComment(_ context.Context, _, _ string, _ int, comment string) error {
	f.comments = append(f.comments, comment)
	return nil
}

func (f *fakeGithubClient) RemoveLabel(_ context.Context, _, _ string, _ int, label string) error {
	f.removedLabels = append(f.removedLabels, label)
	return nil
}

func (f *fakeGithubClient) ListPullRequests(context.Context, string, string, string, string, string) githubclt.PRIterator {
	return &fakePRIter{prs: f.listPRs}
}

type fakePRIter struct {
	prs []*github.PullRequest
}

func (it *fakePRIter) Next() (*github.PullRequest, error) {
	if len(it.prs) == 0 {
		return nil, nil
	}

	result := it.prs[0]
	it.prs = it.prs[1:]

	return result, nil
}

// fakeBotGitClient records the operations of a merge run. Its empty RevList
// result makes the autosquash engine terminate without rewriting anything.
type fakeBotGitClient struct {
	fetchErr error
	ops      []string
}

func (f *fakeBotGitClient) record(format string, args ...any) {
	f.ops = append(f.ops, fmt.Sprintf(format, args...))
}

func (f *fakeBotGitClient) RevList(context.Context, string, string) ([]*git.Commit, error) {
	return nil, nil
}

func (f *fakeBotGitClient) ChangedFiles(context.Context, string) ([]*git.FileChange, error) {
	return nil, nil
}

func (f *fakeBotGitClient) FileContent(context.Context, string, string) (string, bool, error) {
	return "", false, nil
}

func (f *fakeBotGitClient) CherryPick(context.Context, string, bool) error { return nil }
func (f *fakeBotGitClient) CherryPickAbort(context.Context) error          { return nil }

func (f *fakeBotGitClient) Commit(context.Context, string, *git.Signature, []string) (string, error) {
	return "", nil
}

func (f *fakeBotGitClient) Head(context.Context) (string, error) { return "tip", nil }

func (f *fakeBotGitClient) ResetHard(_ context.Context, ref string) error {
	f.record("reset-hard %s", ref)
	return nil
}

func (f *fakeBotGitClient) Fetch(_ context.Context, remote, refspec string) error {
	f.record("fetch %s %s", remote, refspec)
	return f.fetchErr
}

func (f *fakeBotGitClient) MergeBase(context.Context, string, string) (string, error) {
	return "base", nil
}

// stubRetryer runs the function once, without retries.
type stubRetryer struct{}

func (stubRetryer) Run(ctx context.Context, fn func(context.Context) error, _ []zap.Field) error {
	return fn(ctx)
}

func (stubRetryer) Stop() {}

var testRepo = Repository{Owner: "blue", RepositoryName: "tap"}

func newTestBot(t *testing.T, ghClt *fakeGithubClient, gitClt *fakeBotGitClient) *Bot {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	return New(&Config{
		GithubClient: ghClt,
		GitClient:    gitClt,
		Resolver:     manifest.NewResolver(),
		Retryer:      stubRetryer{},
		Repositories: []Repository{testRepo},
		TriggerLabel: "pr-pull",
		Remote:       "origin",
	})
}

func prDetails(number int) *githubclt.PullRequestDetails {
	return &githubclt.PullRequestDetails{
		Number:      number,
		HeadSHA:     "abc123",
		HeadRef:     "feature",
		BaseRef:     "main",
		AuthorLogin: "alice",
	}
}

func TestRunMergeSuccessRemovesTriggerLabel(t *testing.T) {
	ghClt := &fakeGithubClient{pr: prDetails(7)}
	gitClt := &fakeBotGitClient{}

	b := newTestBot(t, ghClt, gitClt)

	require.NoError(t, b.RunMerge(context.Background(), testRepo, 7))

	assert.Equal(t, []string{
		"fetch origin main",
		"fetch origin refs/pull/7/head",
		"reset-hard abc123",
	}, gitClt.ops)

	assert.Equal(t, []string{"pr-pull"}, ghClt.removedLabels)
	assert.Empty(t, ghClt.comments)
}

func TestRunMergeClosedPullRequestIsSkipped(t *testing.T) {
	ghClt := &fakeGithubClient{prErr: githubclt.ErrPullRequestIsClosed}
	gitClt := &fakeBotGitClient{}

	b := newTestBot(t, ghClt, gitClt)

	require.NoError(t, b.RunMerge(context.Background(), testRepo, 7))

	assert.Empty(t, gitClt.ops, "no git operation must run for a closed pull request")
	assert.Empty(t, ghClt.removedLabels)
}

func TestRunMergeFailureIsReportedAsComment(t *testing.T) {
	ghClt := &fakeGithubClient{pr: prDetails(7)}
	gitClt := &fakeBotGitClient{fetchErr: errors.New("network down")}

	b := newTestBot(t, ghClt, gitClt)

	err := b.RunMerge(context.Background(), testRepo, 7)
	require.Error(t, err)

	require.Len(t, ghClt.comments, 1)
	assert.Contains(t, ghClt.comments[0], "network down")

	assert.Empty(t, ghClt.removedLabels, "the trigger label must stay on a failed merge")
}

func newPullRequestEvent(owner, repo, action, label, state string, number int) *github.PullRequestEvent {
	return &github.PullRequestEvent{
		Action: github.String(action),
		Number: github.Int(number),
		Repo: &github.Repository{
			Name:  github.String(repo),
			Owner: &github.User{Login: github.String(owner)},
		},
		Label:       &github.Label{Name: github.String(label)},
		PullRequest: &github.PullRequest{State: github.String(state)},
	}
}

func TestProcessPullRequestEvent(t *testing.T) {
	type testcase struct {
		name string
		ev   *github.PullRequestEvent

		expectMergeRun bool
	}

	testcases := []testcase{
		{
			name:           "triggerLabelAdded",
			ev:             newPullRequestEvent("blue", "tap", "labeled", "pr-pull", "open", 7),
			expectMergeRun: true,
		},
		{
			name: "unmonitoredRepository",
			ev:   newPullRequestEvent("other", "tap", "labeled", "pr-pull", "open", 7),
		},
		{
			name: "otherAction",
			ev:   newPullRequestEvent("blue", "tap", "synchronize", "pr-pull", "open", 7),
		},
		{
			name: "otherLabel",
			ev:   newPullRequestEvent("blue", "tap", "labeled", "needs-review", "open", 7),
		},
		{
			name: "closedPullRequest",
			ev:   newPullRequestEvent("blue", "tap", "labeled", "pr-pull", "closed", 7),
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			ghClt := &fakeGithubClient{pr: prDetails(7)}
			gitClt := &fakeBotGitClient{}

			b := newTestBot(t, ghClt, gitClt)

			b.processPullRequestEvent(
				context.Background(),
				b.logger,
				&github_prov.Event{Event: tc.ev},
				tc.ev,
			)

			if tc.expectMergeRun {
				assert.NotEmpty(t, gitClt.ops, "a merge run was expected")
				return
			}

			assert.Empty(t, gitClt.ops, "no merge run was expected")
		})
	}
}

func TestEventLoop(t *testing.T) {
	ghClt := &fakeGithubClient{pr: prDetails(7)}
	gitClt := &fakeBotGitClient{}

	evChan := make(chan *github_prov.Event, 2)

	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	b := New(&Config{
		GithubClient: ghClt,
		GitClient:    gitClt,
		Resolver:     manifest.NewResolver(),
		EventChan:    evChan,
		Retryer:      stubRetryer{},
		Repositories: []Repository{testRepo},
		TriggerLabel: "pr-pull",
		Remote:       "origin",
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.EventLoop()
	}()

	evChan <- &github_prov.Event{Event: &github.PushEvent{}}
	evChan <- &github_prov.Event{
		Event: newPullRequestEvent("blue", "tap", "labeled", "pr-pull", "open", 7),
	}

	close(evChan)
	wg.Wait()

	assert.Equal(t, []string{"pr-pull"}, ghClt.removedLabels,
		"the pull request event must have triggered a merge run")
}

func TestInitSync(t *testing.T) {
	labeled := &github.PullRequest{
		Number: github.Int(7),
		Labels: []*github.Label{{Name: github.String("pr-pull")}},
	}
	unlabeled := &github.PullRequest{
		Number: github.Int(8),
		Labels: []*github.Label{{Name: github.String("needs-review")}},
	}

	ghClt := &fakeGithubClient{
		pr:      prDetails(7),
		listPRs: []*github.PullRequest{unlabeled, labeled},
	}
	gitClt := &fakeBotGitClient{}

	b := newTestBot(t, ghClt, gitClt)

	require.NoError(t, b.InitSync(context.Background()))

	assert.Equal(t, []string{"pr-pull"}, ghClt.removedLabels,
		"only the labeled pull request must have been merged")
	assert.Contains(t, gitClt.ops, "fetch origin refs/pull/7/head")
}
