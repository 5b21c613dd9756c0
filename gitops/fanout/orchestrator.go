package fanout

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/byte4ever/repo_sync/gitops/commitmsg"
	"github.com/byte4ever/repo_sync/gitops/git"
	"github.com/byte4ever/repo_sync/gitops/retry"
	"github.com/byte4ever/repo_sync/gitops/syncerr"
)

// DefaultBranchPrefix is used when no prefix is
// configured.
const DefaultBranchPrefix = "sync/"

// BranchName returns the sync branch for a trigger.
// The name is deterministic so a rerun for the same
// trigger finds the branch of the previous attempt.
func BranchName(prefix string, triggerID string) string {
	if prefix == "" {
		prefix = DefaultBranchPrefix
	}

	return prefix + triggerID
}

// CommitPolicy retries a commit while the freshly
// created branch is not yet visible: 10 attempts, 1s
// apart.
func CommitPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 10,
		Delay:       time.Second,
		Retryable: func(err error) bool {
			return errors.Is(err, git.ErrEmptyResult)
		},
	}
}

// PullRequestPolicy waits 5s before each of at most 5
// attempts and only retries throttling errors.
func PullRequestPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 5,
		Delay:       5 * time.Second,
		DelayFirst:  true,
		Retryable: func(err error) bool {
			return errors.Is(err, git.ErrSubmittedTooQuickly)
		},
	}
}

// branchState is derived per repository, never stored.
type branchState struct {
	Name           string
	HeadOID        string
	RepoID         string
	AlreadyExisted bool
}

// Orchestrator applies a change set to one repository:
// branch, then commit, then pull request.
type Orchestrator struct {
	Host git.Host
	// Branch is the sync branch name for this run.
	Branch string
	// CommitTemplate and BodyTemplate feed
	// commitmsg.Compose and commitmsg.Render.
	CommitTemplate string
	BodyTemplate   string
	// Hub and Trigger are exposed to templates.
	Hub     string
	Trigger string
	// CommitPolicy and PullRequestPolicy default to
	// the package policies when MaxAttempts is zero.
	CommitPolicy      retry.Policy
	PullRequestPolicy retry.Policy
}

// Apply runs the mutation sequence. A returned error
// means the commit never landed. Pull request failures
// are reported through the outcome instead.
func (o *Orchestrator) Apply(
	ctx context.Context,
	repo git.Repository,
	cs git.ChangeSet,
) (Outcome, error) {
	log := slog.With("repository", repo.Name)

	out := Outcome{
		Repository: repo.Name,
		Branch:     o.Branch,
		Additions:  len(cs.Additions),
		Deletions:  len(cs.Deletions),
	}

	br, err := o.ensureBranch(ctx, repo)
	if err != nil {
		return out, err
	}

	out.AlreadyExisted = br.AlreadyExisted

	vars := commitmsg.Vars{
		Hub:        o.Hub,
		Repository: repo.Name,
		Branch:     br.Name,
		Trigger:    o.Trigger,
	}

	msg := commitmsg.Compose(o.CommitTemplate, vars, cs.Paths())

	commitURL, err := o.commit(ctx, repo, &br, cs, msg)
	if err != nil {
		return out, err
	}

	out.CommitURL = commitURL

	log.Info(
		"committed changes",
		"branch", br.Name,
		"commit", commitURL,
	)

	prURL, err := o.openPullRequest(ctx, repo, br, vars, msg)
	if err == nil {
		out.Status = StatusPRCreated
		out.PullRequestURL = prURL

		return out, nil
	}

	out.Status = StatusPushedWithoutPR

	// The severity depends on whether the branch
	// pre-existed, not on the failure cause. A prior
	// run may own an open or deliberately closed pull
	// request for it.
	// TODO: classify by the host's error cause once
	// hosts report "pull request already exists"
	// distinctly; a brand-new branch failing here may
	// hide real bugs.
	if br.AlreadyExisted {
		out.Err = syncerr.New(
			syncerr.KindPRConflict, "create pull request", err,
		)

		log.Info(
			"pull request not created for existing branch",
			"branch", br.Name,
			"error", err,
		)

		return out, nil
	}

	out.Err = syncerr.New(
		remoteKind(err), "create pull request", err,
	)

	log.Warn(
		"pull request not created, branch pushed",
		"branch", br.Name,
		"error", err,
	)

	return out, nil
}

// ensureBranch creates the sync branch from the
// default branch. An existing branch is reused.
func (o *Orchestrator) ensureBranch(
	ctx context.Context,
	repo git.Repository,
) (branchState, error) {
	br := branchState{Name: o.Branch, RepoID: repo.ID}

	err := o.Host.CreateBranch(
		ctx, repo.Owner, repo.Name, br.Name, repo.DefaultBranch,
	)

	switch {
	case err == nil:
		slog.Debug(
			"created branch",
			"repository", repo.Name,
			"branch", br.Name,
		)
	case errors.Is(err, git.ErrAlreadyExists):
		br.AlreadyExisted = true

		slog.Info(
			"sync branch already exists, reusing it",
			"repository", repo.Name,
			"branch", br.Name,
		)
	default:
		return br, syncerr.New(
			syncerr.KindRemoteMutation, "create branch", err,
		)
	}

	return br, nil
}

// commit reads the branch head right before every
// attempt and commits against it.
func (o *Orchestrator) commit(
	ctx context.Context,
	repo git.Repository,
	br *branchState,
	cs git.ChangeSet,
	msg commitmsg.Message,
) (string, error) {
	var url string

	pol := o.CommitPolicy
	if pol.MaxAttempts == 0 {
		pol = CommitPolicy()
	}

	err := pol.Do(
		ctx,
		func(ctx context.Context, attempt int) error {
			head, err := o.Host.GetBranchHead(
				ctx, repo.Owner, repo.Name, br.Name,
			)
			if err != nil {
				logAttempt(repo, "branch head", attempt, err)

				return err
			}

			if head.OID == "" {
				return git.ErrEmptyResult
			}

			br.HeadOID = head.OID
			if br.RepoID == "" {
				br.RepoID = head.RepoID
			}

			u, err := o.Host.CommitFileChanges(
				ctx,
				git.CommitRequest{
					Owner:           repo.Owner,
					Repo:            repo.Name,
					Branch:          br.Name,
					Changes:         cs,
					Headline:        msg.Headline,
					Body:            msg.Body,
					ExpectedHeadOID: head.OID,
				},
			)
			if err == nil && u == "" {
				err = git.ErrEmptyResult
			}

			if err != nil {
				logAttempt(repo, "commit", attempt, err)

				return err
			}

			url = u

			return nil
		},
	)
	if err != nil {
		return "", syncerr.New(remoteKind(err), "commit changes", err)
	}

	return url, nil
}

func (o *Orchestrator) openPullRequest(
	ctx context.Context,
	repo git.Repository,
	br branchState,
	vars commitmsg.Vars,
	msg commitmsg.Message,
) (string, error) {
	pol := o.PullRequestPolicy
	if pol.MaxAttempts == 0 {
		pol = PullRequestPolicy()
	}

	bodyTpl := o.BodyTemplate
	if strings.TrimSpace(bodyTpl) == "" {
		bodyTpl = commitmsg.DefaultBodyTemplate
	}

	req := git.PullRequestRequest{
		Owner:  repo.Owner,
		Repo:   repo.Name,
		RepoID: br.RepoID,
		Branch: br.Name,
		Base:   repo.DefaultBranch,
		Title:  msg.Headline,
		Body:   commitmsg.Render(bodyTpl, vars) + "\n" + msg.Body,
	}

	var url string

	err := pol.Do(
		ctx,
		func(ctx context.Context, attempt int) error {
			u, err := o.Host.CreatePullRequest(ctx, req)
			if err != nil {
				logAttempt(repo, "pull request", attempt, err)

				return err
			}

			url = u

			return nil
		},
	)

	return url, err
}

// remoteKind classifies a failed remote step.
func remoteKind(err error) syncerr.Kind {
	if errors.Is(err, retry.ErrExhausted) {
		return syncerr.KindTransientRemote
	}

	return syncerr.KindRemoteMutation
}

func logAttempt(
	repo git.Repository,
	step string,
	attempt int,
	err error,
) {
	slog.Debug(
		"attempt failed",
		"repository", repo.Name,
		"step", step,
		"attempt", attempt,
		"error", err,
	)
}
