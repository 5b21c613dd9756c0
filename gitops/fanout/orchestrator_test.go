package fanout_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/repo_sync/gitops/fanout"
	"github.com/byte4ever/repo_sync/gitops/git"
	"github.com/byte4ever/repo_sync/gitops/git/gittest"
	"github.com/byte4ever/repo_sync/gitops/syncerr"
)

var readmeChange = git.ChangeSet{
	Additions: []git.FileAddition{
		{
			Path:            "README.md",
			DestinationPath: "README.md",
			Content:         "bmV3",
		},
	},
}

func newOrchestrator(
	host git.Host,
	rec *sleepRecorder,
) *fanout.Orchestrator {
	commit, pr := policies(rec)

	return &fanout.Orchestrator{
		Host:              host,
		Branch:            fanout.BranchName("", "123"),
		Hub:               "acme/hub",
		Trigger:           "123",
		CommitPolicy:      commit,
		PullRequestPolicy: pr,
	}
}

func TestBranchName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "sync/123", fanout.BranchName("", "123"))
	assert.Equal(
		t, "chore/files-9", fanout.BranchName("chore/files-", "9"),
	)
}

func TestOrchestrator_Apply_addition(t *testing.T) {
	t.Parallel()

	host := &gittest.Fake{}
	rec := &sleepRecorder{}

	out, err := newOrchestrator(host, rec).Apply(
		context.Background(), spoke("spoke1"), readmeChange,
	)

	require.NoError(t, err)
	assert.Equal(t, fanout.StatusPRCreated, out.Status)
	assert.Equal(t, "sync/123", out.Branch)
	assert.False(t, out.AlreadyExisted)
	assert.NotEmpty(t, out.CommitURL)
	assert.NotEmpty(t, out.PullRequestURL)

	assert.Equal(
		t,
		[]string{
			"CreateBranch",
			"GetBranchHead",
			"CommitFileChanges",
			"CreatePullRequest",
		},
		host.CallsFor("spoke1"),
	)

	commits := host.Commits()
	require.Len(t, commits, 1)
	assert.Equal(t, "sync/123", commits[0].Branch)
	assert.Equal(t, "base-spoke1", commits[0].ExpectedHeadOID)
	assert.Equal(t, readmeChange, commits[0].Changes)
	assert.Contains(t, commits[0].Body, "README.md")

	prs := host.PullRequests()
	require.Len(t, prs, 1)
	assert.Equal(t, "sync/123", prs[0].Branch)
	assert.Equal(t, "main", prs[0].Base)
	assert.Equal(t, "id-spoke1", prs[0].RepoID)
	assert.Equal(t, commits[0].Headline, prs[0].Title)

	// One wait before the single PR attempt.
	assert.Equal(t, []time.Duration{5 * time.Second}, rec.recorded())
}

func TestOrchestrator_Apply_branch_exists(t *testing.T) {
	t.Parallel()

	errClosed := errors.New("a pull request already exists")

	host := &gittest.Fake{
		OnCreatePullRequest: func(
			git.PullRequestRequest, int,
		) (string, error) {
			return "", errClosed
		},
	}
	host.SetBranch("acme", "spoke2", "sync/123", "prior-head")

	out, err := newOrchestrator(host, &sleepRecorder{}).Apply(
		context.Background(), spoke("spoke2"), readmeChange,
	)

	require.NoError(t, err)
	assert.True(t, out.AlreadyExisted)
	assert.Equal(t, fanout.StatusPushedWithoutPR, out.Status)
	require.ErrorIs(t, out.Err, errClosed)
	assert.True(t, syncerr.Is(out.Err, syncerr.KindPRConflict))

	commits := host.Commits()
	require.Len(t, commits, 1)
	assert.Equal(t, "prior-head", commits[0].ExpectedHeadOID)

	// Non-retryable: exactly one PR attempt.
	assert.Equal(
		t,
		[]string{
			"CreateBranch",
			"GetBranchHead",
			"CommitFileChanges",
			"CreatePullRequest",
		},
		host.CallsFor("spoke2"),
	)
}

func TestOrchestrator_Apply_new_branch_pr_failure(t *testing.T) {
	t.Parallel()

	errDenied := errors.New("resource not accessible")

	host := &gittest.Fake{
		OnCreatePullRequest: func(
			git.PullRequestRequest, int,
		) (string, error) {
			return "", errDenied
		},
	}

	out, err := newOrchestrator(host, &sleepRecorder{}).Apply(
		context.Background(), spoke("spoke1"), readmeChange,
	)

	require.NoError(t, err)
	assert.False(t, out.AlreadyExisted)
	assert.Equal(t, fanout.StatusPushedWithoutPR, out.Status)
	assert.NotEmpty(t, out.CommitURL)
	assert.True(
		t, syncerr.Is(out.Err, syncerr.KindRemoteMutation),
	)
}

func TestOrchestrator_Apply_commit_consistency_lag(t *testing.T) {
	t.Parallel()

	host := &gittest.Fake{}
	host.OnGetBranchHead = func(
		_, _, _ string, call int,
	) (git.BranchHead, error) {
		if call < 3 {
			return git.BranchHead{}, git.ErrEmptyResult
		}

		return git.BranchHead{OID: "base-spoke1"}, nil
	}

	rec := &sleepRecorder{}

	out, err := newOrchestrator(host, rec).Apply(
		context.Background(), spoke("spoke1"), readmeChange,
	)

	require.NoError(t, err)
	assert.Equal(t, fanout.StatusPRCreated, out.Status)
	assert.Equal(
		t,
		[]time.Duration{
			time.Second, time.Second, 5 * time.Second,
		},
		rec.recorded(),
	)
}

func TestOrchestrator_Apply_commit_null_result_retried(t *testing.T) {
	t.Parallel()

	host := &gittest.Fake{
		OnCommitFileChanges: func(
			_ git.CommitRequest, call int,
		) (string, error) {
			if call == 1 {
				return "", nil
			}

			return "https://git.example.test/c/1", nil
		},
	}

	out, err := newOrchestrator(host, &sleepRecorder{}).Apply(
		context.Background(), spoke("spoke1"), readmeChange,
	)

	require.NoError(t, err)
	assert.Equal(t, "https://git.example.test/c/1", out.CommitURL)
	assert.Equal(
		t,
		[]string{
			"CreateBranch",
			"GetBranchHead",
			"CommitFileChanges",
			"GetBranchHead",
			"CommitFileChanges",
			"CreatePullRequest",
		},
		host.CallsFor("spoke1"),
	)
}

func TestOrchestrator_Apply_commit_retries_exhausted(t *testing.T) {
	t.Parallel()

	host := &gittest.Fake{
		OnCommitFileChanges: func(
			git.CommitRequest, int,
		) (string, error) {
			return "", git.ErrEmptyResult
		},
	}

	_, err := newOrchestrator(host, &sleepRecorder{}).Apply(
		context.Background(), spoke("spoke1"), readmeChange,
	)

	require.ErrorIs(t, err, git.ErrEmptyResult)
	assert.True(
		t, syncerr.Is(err, syncerr.KindTransientRemote),
	)

	commits := 0

	for _, c := range host.CallsFor("spoke1") {
		if c == "CommitFileChanges" {
			commits++
		}

		assert.NotEqual(t, "CreatePullRequest", c)
	}

	assert.Equal(t, 10, commits)
}

func TestOrchestrator_Apply_commit_fatal_error(t *testing.T) {
	t.Parallel()

	errForbidden := errors.New("forbidden")

	host := &gittest.Fake{
		OnCommitFileChanges: func(
			git.CommitRequest, int,
		) (string, error) {
			return "", errForbidden
		},
	}

	_, err := newOrchestrator(host, &sleepRecorder{}).Apply(
		context.Background(), spoke("spoke1"), readmeChange,
	)

	require.ErrorIs(t, err, errForbidden)
	assert.True(
		t, syncerr.Is(err, syncerr.KindRemoteMutation),
	)
	assert.Equal(
		t,
		[]string{
			"CreateBranch", "GetBranchHead", "CommitFileChanges",
		},
		host.CallsFor("spoke1"),
	)
}

func TestOrchestrator_Apply_pr_rate_limited(t *testing.T) {
	t.Parallel()

	host := &gittest.Fake{
		OnCreatePullRequest: func(
			_ git.PullRequestRequest, call int,
		) (string, error) {
			if call < 3 {
				return "", git.ErrSubmittedTooQuickly
			}

			return "https://git.example.test/pr/7", nil
		},
	}

	rec := &sleepRecorder{}

	out, err := newOrchestrator(host, rec).Apply(
		context.Background(), spoke("spoke1"), readmeChange,
	)

	require.NoError(t, err)
	assert.Equal(t, fanout.StatusPRCreated, out.Status)
	assert.Equal(t, "https://git.example.test/pr/7", out.PullRequestURL)
	assert.Equal(
		t,
		[]time.Duration{
			5 * time.Second, 5 * time.Second, 5 * time.Second,
		},
		rec.recorded(),
	)
}

func TestOrchestrator_Apply_pr_rate_limit_exhausted(t *testing.T) {
	t.Parallel()

	host := &gittest.Fake{
		OnCreatePullRequest: func(
			git.PullRequestRequest, int,
		) (string, error) {
			return "", git.ErrSubmittedTooQuickly
		},
	}

	rec := &sleepRecorder{}

	out, err := newOrchestrator(host, rec).Apply(
		context.Background(), spoke("spoke1"), readmeChange,
	)

	require.NoError(t, err)
	assert.Equal(t, fanout.StatusPushedWithoutPR, out.Status)
	assert.True(
		t, syncerr.Is(out.Err, syncerr.KindTransientRemote),
	)
	assert.Len(t, rec.recorded(), 5)
}

func TestOrchestrator_Apply_branch_failure(t *testing.T) {
	t.Parallel()

	errDenied := errors.New("protected")

	host := &gittest.Fake{
		OnCreateBranch: func(_, _, _, _ string) error {
			return errDenied
		},
	}

	_, err := newOrchestrator(host, &sleepRecorder{}).Apply(
		context.Background(), spoke("spoke1"), readmeChange,
	)

	require.ErrorIs(t, err, errDenied)
	assert.True(
		t, syncerr.Is(err, syncerr.KindRemoteMutation),
	)
	assert.Equal(
		t, []string{"CreateBranch"}, host.CallsFor("spoke1"),
	)
}

func TestOrchestrator_Apply_rerun_with_stale_head(t *testing.T) {
	t.Parallel()

	host := &gittest.Fake{}
	orch := newOrchestrator(host, &sleepRecorder{})

	first, err := orch.Apply(
		context.Background(), spoke("spoke1"), readmeChange,
	)
	require.NoError(t, err)
	assert.False(t, first.AlreadyExisted)

	// The second run sees the branch of the first one
	// but reads a head that has since moved on.
	host.OnGetBranchHead = func(
		_, _, _ string, _ int,
	) (git.BranchHead, error) {
		return git.BranchHead{OID: "base-spoke1"}, nil
	}

	_, err = orch.Apply(
		context.Background(), spoke("spoke1"), readmeChange,
	)

	require.ErrorIs(t, err, gittest.ErrStale)
	assert.Len(t, host.Commits(), 1)
}
