package fanout

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/byte4ever/repo_sync/gitops/diff"
	"github.com/byte4ever/repo_sync/gitops/git"
	"github.com/byte4ever/repo_sync/gitops/pattern"
	"github.com/byte4ever/repo_sync/gitops/syncerr"
)

// processor handles one repository end to end.
type processor struct {
	diff      *diff.Engine
	orch      *Orchestrator
	selection pattern.Selection
	dryRun    bool
}

// process is the isolation boundary: it never returns
// an error and never panics. Failures become a
// StatusFailed outcome.
func (p *processor) process(
	ctx context.Context,
	repo git.Repository,
) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = failed(repo, syncerr.New(
				syncerr.KindUnknown,
				"process repository",
				fmt.Errorf("panic: %v", r),
			))
		}
	}()

	cs, err := p.diff.Diff(ctx, repo, p.selection)
	if err != nil {
		return failed(repo, err)
	}

	if cs.Empty() {
		slog.Info(
			"no changes detected",
			"repository", repo.Name,
		)

		return Outcome{
			Repository: repo.Name,
			Status:     StatusNoChange,
		}
	}

	if p.dryRun {
		slog.Info(
			"dry run: changes not applied",
			"repository", repo.Name,
			"paths", cs.Paths(),
		)

		return Outcome{
			Repository: repo.Name,
			Status:     StatusDryRun,
			Branch:     p.orch.Branch,
			Additions:  len(cs.Additions),
			Deletions:  len(cs.Deletions),
		}
	}

	out, err = p.orch.Apply(ctx, repo, cs)
	if err != nil {
		res := failed(repo, err)
		res.Branch = out.Branch
		res.AlreadyExisted = out.AlreadyExisted
		res.Additions = out.Additions
		res.Deletions = out.Deletions

		return res
	}

	return out
}

func failed(repo git.Repository, err error) Outcome {
	slog.Warn(
		"repository sync failed",
		"repository", repo.Name,
		"kind", syncerr.KindOf(err).String(),
		"error", err,
	)

	return Outcome{
		Repository: repo.Name,
		Status:     StatusFailed,
		Err:        err,
	}
}
