package fanout

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/byte4ever/repo_sync/gitops/diff"
	"github.com/byte4ever/repo_sync/gitops/git"
	"github.com/byte4ever/repo_sync/gitops/pattern"
	"github.com/byte4ever/repo_sync/gitops/retry"
	"github.com/byte4ever/repo_sync/gitops/selector"
	"github.com/byte4ever/repo_sync/gitops/syncerr"
)

// Config holds all settings for a sync run. Use a
// Config struct instead of many arguments.
type Config struct {
	// Owner is the account owning hub and spokes.
	Owner string

	// Hub is the name of the triggering repository.
	Hub string

	// TriggerID identifies the trigger (run id or
	// commit) and names the sync branch.
	TriggerID string

	// ChangedPaths are the hub paths touched by the
	// trigger.
	ChangedPaths []string

	// Include, Exclude and Remove are glob lists.
	// Remove and Include are mutually exclusive.
	Include []string
	Exclude []string
	Remove  []string

	// Destination prefixes every spoke-side path.
	Destination string

	// ManualTarget restricts the run to one named
	// repository.
	ManualTarget string

	// Criteria filters the account listing.
	Criteria selector.IgnoreCriteria

	// BranchPrefix defaults to DefaultBranchPrefix.
	BranchPrefix string

	// CommitTemplate and BodyTemplate render commit
	// and pull request text.
	CommitTemplate string
	BodyTemplate   string

	// Parallelism bounds concurrent repositories.
	// Values below one mean sequential.
	Parallelism int

	// DryRun computes changes without mutating.
	DryRun bool

	// Local is the hub checkout.
	Local fs.FS

	// Host talks to the hosting platform.
	Host git.Host

	// CommitPolicy and PullRequestPolicy override the
	// default retry policies when MaxAttempts is set.
	CommitPolicy      retry.Policy
	PullRequestPolicy retry.Policy
}

// Run executes a sync run. Configuration and account
// errors abort it; any other failure is confined to
// one repository and recorded in the Summary.
func Run(ctx context.Context, cfg Config) (Summary, error) {
	const errCtx = "running sync"

	if cfg.Host == nil || cfg.Owner == "" {
		return Summary{}, syncerr.Errorf(
			syncerr.KindConfiguration,
			errCtx,
			"host and owner must be set",
		)
	}

	// Step 1: Select files.
	sel, err := pattern.Select(
		cfg.ChangedPaths, cfg.Include, cfg.Exclude, cfg.Remove,
	)
	if err != nil {
		return Summary{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	if sel.Empty() {
		slog.Info(
			"no changed file matches the patterns",
			"changed", len(cfg.ChangedPaths),
		)

		return Summary{}, nil
	}

	slog.Info(
		"selected files",
		"replicate", sel.Replicate,
		"remove", sel.Remove,
	)

	// Step 2: Select repositories.
	sl := selector.Selector{
		Host:     cfg.Host,
		Criteria: cfg.Criteria,
	}

	repos, err := sl.Select(
		ctx, cfg.Owner, cfg.Hub, cfg.ManualTarget,
	)
	if err != nil {
		return Summary{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	// Step 3: Process each repository.
	proc := &processor{
		diff: &diff.Engine{
			Host:        cfg.Host,
			Local:       cfg.Local,
			Destination: cfg.Destination,
			Preview:     cfg.DryRun,
		},
		orch: &Orchestrator{
			Host:              cfg.Host,
			Branch:            BranchName(cfg.BranchPrefix, cfg.TriggerID),
			CommitTemplate:    cfg.CommitTemplate,
			BodyTemplate:      cfg.BodyTemplate,
			Hub:               cfg.Owner + "/" + cfg.Hub,
			Trigger:           cfg.TriggerID,
			CommitPolicy:      cfg.CommitPolicy,
			PullRequestPolicy: cfg.PullRequestPolicy,
		},
		selection: sel,
		dryRun:    cfg.DryRun,
	}

	summary := Summary{
		Outcomes: processAll(
			ctx, repos, cfg.Parallelism, proc.process,
		),
	}

	// Step 4: Report.
	summary.Log()

	return summary, nil
}

// processAll runs fn for every repository with at most
// parallelism in flight. Once ctx is done no new
// repository starts; started ones finish on a context
// that ignores cancellation so no branch/commit/PR
// sequence stops halfway.
func processAll(
	ctx context.Context,
	repos []git.Repository,
	parallelism int,
	fn func(context.Context, git.Repository) Outcome,
) []Outcome {
	if parallelism <= 0 {
		parallelism = 1
	}

	outcomes := make([]Outcome, len(repos))
	detached := context.WithoutCancel(ctx)

	// Worker pool with bounded concurrency.
	var wg sync.WaitGroup

	sem := make(chan struct{}, parallelism)

	for i, repo := range repos {
		select {
		case <-ctx.Done():
			outcomes[i] = skipped(repo)

			continue
		case sem <- struct{}{}:
		}

		// The semaphore may win the race against a
		// cancellation that already happened.
		if ctx.Err() != nil {
			<-sem

			outcomes[i] = skipped(repo)

			continue
		}

		wg.Add(1)

		go func(idx int, rp git.Repository) {
			defer wg.Done()
			defer func() { <-sem }()

			outcomes[idx] = fn(detached, rp)
		}(i, repo)
	}

	wg.Wait()

	return outcomes
}

func skipped(repo git.Repository) Outcome {
	return Outcome{
		Repository: repo.Name,
		Status:     StatusSkipped,
		Err: syncerr.Errorf(
			syncerr.KindUnknown,
			"schedule repository",
			"run cancelled before start",
		),
	}
}
