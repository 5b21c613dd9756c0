// Command repo_sync replicates the files a hub repository push touched into
// every spoke repository of the same account. Each spoke receives a sync
// branch, one commit and a pull request. Inputs come from flags, from
// INPUT_* environment variables (GitHub Actions inputs) and from the
// runner's GITHUB_* variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/byte4ever/repo_sync/gitops/config"
	"github.com/byte4ever/repo_sync/gitops/event"
	"github.com/byte4ever/repo_sync/gitops/fanout"
	"github.com/byte4ever/repo_sync/gitops/git"
	"github.com/byte4ever/repo_sync/gitops/git/github"
	"github.com/byte4ever/repo_sync/gitops/git/gitlab"
	"github.com/byte4ever/repo_sync/gitops/selector"
	"github.com/byte4ever/repo_sync/gitops/syncerr"
)

// errFailedRepositories is returned when fail-on-error
// is set and a repository failed.
var errFailedRepositories = errors.New("some repositories failed")

func main() {
	if err := run(); err != nil {
		slog.Error(
			"sync aborted",
			"kind", syncerr.KindOf(err).String(),
			"error", err,
		)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for errors that stop the run before
// any repository is touched and 1 for the rest.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case syncerr.KindOf(err).Fatal():
		return 2
	default:
		return 1
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	root, err := newRootCmd(viper.New())
	if err != nil {
		return err
	}

	return root.ExecuteContext(ctx)
}

// Keys shared by flags, environment and viper.
const (
	keyConfig         = "config"
	keyLogLevel       = "log_level"
	keyTrigger        = "trigger"
	keyToken          = "token"
	keyHub            = "hub"
	keyWorkspace      = "workspace"
	keyEventPath      = "event_path"
	keyRunID          = "run_id"
	keyHost           = "host"
	keyHostURL        = "host_url"
	keyInclude        = "include"
	keyExclude        = "exclude"
	keyRemove         = "remove"
	keyDestination    = "destination"
	keyCommitMessage  = "commit_message"
	keyPRBody         = "pr_body"
	keyBranchPrefix   = "branch_prefix"
	keyTarget         = "target"
	keyIgnoreNames    = "ignore_names"
	keyTopics         = "topics"
	keyExcludePrivate = "exclude_private"
	keyExcludeForked  = "exclude_forked"
	keyParallelism    = "parallelism"
	keyDryRun         = "dry_run"
	keyFailOnError    = "fail_on_error"
)

// runnerEnv maps keys to the runner variables that
// back them when no input is given.
var runnerEnv = map[string]string{
	keyTrigger:   "GITHUB_EVENT_NAME",
	keyToken:     "GITHUB_TOKEN",
	keyHub:       "GITHUB_REPOSITORY",
	keyWorkspace: "GITHUB_WORKSPACE",
	keyEventPath: "GITHUB_EVENT_PATH",
	keyRunID:     "GITHUB_RUN_ID",
}

func newRootCmd(v *viper.Viper) (*cobra.Command, error) {
	const errCtx = "building command"

	root := &cobra.Command{
		Use:           "repo_sync",
		Short:         "Replicate hub files into spoke repositories",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return syncRepositories(cmd, v)
		},
	}

	f := root.Flags()

	f.String(keyConfig, "", "Optional YAML configuration file")
	f.String(keyLogLevel, "info", "Log level: debug, info, warn or error")
	f.String(keyTrigger, "", "Trigger: push, workflow_dispatch or manual-dispatch")
	f.String(keyToken, "", "Access token of the hosting platform")
	f.String(keyHub, "", "Hub repository as owner/name")
	f.String(keyWorkspace, ".", "Hub checkout directory")
	f.String(keyEventPath, "", "Event payload file written by the runner")
	f.String(keyRunID, "", "Trigger identifier used in the branch name")
	f.String(keyHost, "", "Hosting platform: github or gitlab")
	f.String(keyHostURL, "", "GitHub Enterprise host or GitLab base URL")
	f.String(keyInclude, "", "Globs of files to replicate (newline or comma separated)")
	f.String(keyExclude, "", "Globs of files never replicated")
	f.String(keyRemove, "", "Globs of files to delete from spokes")
	f.String(keyDestination, "", "Directory prefix inside spoke repositories")
	f.String(keyCommitMessage, "", "Commit message template")
	f.String(keyPRBody, "", "Pull request body template")
	f.String(keyBranchPrefix, "", "Sync branch prefix (default \"sync/\")")
	f.String(keyTarget, "", "Only sync this repository")
	f.String(keyIgnoreNames, "", "Repository names to skip")
	f.String(keyTopics, "", "Only sync repositories with one of these topics")
	f.Bool(keyExcludePrivate, false, "Skip private repositories")
	f.Bool(keyExcludeForked, false, "Skip forked repositories")
	f.Int(keyParallelism, 0, "Repositories processed concurrently")
	f.Bool(keyDryRun, false, "Compute changes without applying them")
	f.Bool(keyFailOnError, false, "Exit non-zero when a repository fails")

	if err := v.BindPFlags(f); err != nil {
		return nil, syncerr.Errorf(
			syncerr.KindConfiguration, errCtx,
			"binding flags: %w", err,
		)
	}

	v.SetEnvPrefix("INPUT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, env := range runnerEnv {
		err := v.BindEnv(key, "INPUT_"+strings.ToUpper(key), env)
		if err != nil {
			return nil, syncerr.Errorf(
				syncerr.KindConfiguration, errCtx,
				"binding %s: %w", key, err,
			)
		}
	}

	return root, nil
}

func syncRepositories(cmd *cobra.Command, v *viper.Viper) error {
	const errCtx = "running repo_sync"

	if err := setupLogging(v.GetString(keyLogLevel)); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	// Step 1: Resolve and validate configuration.
	cfg, err := resolveConfig(v)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	owner, hub, err := splitHub(v.GetString(keyHub))
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	kind, err := event.ParseKind(cfg.Trigger)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	// Step 2: Read the trigger.
	var payload event.Payload

	if path := v.GetString(keyEventPath); path != "" {
		payload, err = event.Load(path)
		if err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	if cfg.Repository == "" && kind == event.Dispatch {
		cfg.Repository = payload.Input("repository")
	}

	workspace := v.GetString(keyWorkspace)

	var checkout event.Checkout

	repo, err := git.Open(workspace)
	if err != nil {
		slog.Warn(
			"hub checkout unavailable",
			"workspace", workspace,
			"error", err,
		)
	} else {
		checkout = repo
	}

	changed, err := event.ChangedPaths(kind, payload, checkout)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	triggerID := v.GetString(keyRunID)
	if triggerID == "" {
		triggerID = payload.After
	}

	if triggerID == "" {
		return fmt.Errorf(
			"%s: a run id or a push event is required "+
				"to name the sync branch", errCtx,
		)
	}

	// Step 3: Connect to the host.
	host, err := newHost(cfg, v.GetString(keyToken))
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	// Step 4: Sync.
	summary, err := fanout.Run(
		cmd.Context(),
		fanout.Config{
			Owner:          owner,
			Hub:            hub,
			TriggerID:      triggerID,
			ChangedPaths:   changed,
			Include:        cfg.Include,
			Exclude:        cfg.Exclude,
			Remove:         cfg.Remove,
			Destination:    cfg.Destination,
			ManualTarget:   cfg.Repository,
			Criteria:       cfg.Ignore,
			BranchPrefix:   cfg.BranchPrefix,
			CommitTemplate: cfg.CommitMessage,
			BodyTemplate:   cfg.PRBody,
			Parallelism:    cfg.Parallelism,
			DryRun:         cfg.DryRun,
			Local:          os.DirFS(workspace),
			Host:           host,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if len(summary.Outcomes) > 0 {
		summary.Render(cmd.OutOrStdout())
	}

	if cfg.FailOnError && summary.Failed() {
		return fmt.Errorf(
			"%s: %w: %d",
			errCtx,
			errFailedRepositories,
			summary.Count(fanout.StatusFailed),
		)
	}

	return nil
}

// resolveConfig layers flags and environment over the
// optional configuration file, itself layered over
// config.Default.
func resolveConfig(v *viper.Viper) (config.Config, error) {
	cfg := config.Default()

	if path := v.GetString(keyConfig); path != "" {
		var err error

		cfg, err = config.LoadFile(path)
		if err != nil {
			return config.Config{}, err
		}
	}

	v.SetDefault(keyTrigger, cfg.Trigger)
	v.SetDefault(keyHost, cfg.Host)
	v.SetDefault(keyHostURL, cfg.HostURL)
	v.SetDefault(keyInclude, strings.Join(cfg.Include, "\n"))
	v.SetDefault(keyExclude, strings.Join(cfg.Exclude, "\n"))
	v.SetDefault(keyRemove, strings.Join(cfg.Remove, "\n"))
	v.SetDefault(keyDestination, cfg.Destination)
	v.SetDefault(keyCommitMessage, cfg.CommitMessage)
	v.SetDefault(keyPRBody, cfg.PRBody)
	v.SetDefault(keyBranchPrefix, cfg.BranchPrefix)
	v.SetDefault(keyTarget, cfg.Repository)
	v.SetDefault(keyIgnoreNames, strings.Join(cfg.Ignore.Names, "\n"))
	v.SetDefault(keyTopics, strings.Join(cfg.Ignore.Topics, "\n"))
	v.SetDefault(keyExcludePrivate, cfg.Ignore.ExcludePrivate)
	v.SetDefault(keyExcludeForked, cfg.Ignore.ExcludeForked)
	v.SetDefault(keyParallelism, cfg.Parallelism)
	v.SetDefault(keyDryRun, cfg.DryRun)
	v.SetDefault(keyFailOnError, cfg.FailOnError)

	out := config.Config{
		Trigger:       v.GetString(keyTrigger),
		Host:          v.GetString(keyHost),
		HostURL:       v.GetString(keyHostURL),
		Include:       config.SplitPatterns(v.GetString(keyInclude)),
		Exclude:       config.SplitPatterns(v.GetString(keyExclude)),
		Remove:        config.SplitPatterns(v.GetString(keyRemove)),
		Destination:   v.GetString(keyDestination),
		CommitMessage: v.GetString(keyCommitMessage),
		PRBody:        v.GetString(keyPRBody),
		BranchPrefix:  v.GetString(keyBranchPrefix),
		Repository:    strings.TrimSpace(v.GetString(keyTarget)),
		Ignore: selector.IgnoreCriteria{
			Names:          config.SplitPatterns(v.GetString(keyIgnoreNames)),
			Topics:         config.SplitPatterns(v.GetString(keyTopics)),
			ExcludePrivate: v.GetBool(keyExcludePrivate),
			ExcludeForked:  v.GetBool(keyExcludeForked),
		},
		Parallelism: v.GetInt(keyParallelism),
		DryRun:      v.GetBool(keyDryRun),
		FailOnError: v.GetBool(keyFailOnError),
	}

	if err := out.Validate(); err != nil {
		return config.Config{}, err
	}

	return out, nil
}

// newHost creates a git.Host for cfg.Host. Pattern:
// Factory -- selects platform implementation at
// runtime.
func newHost(cfg config.Config, token string) (git.Host, error) {
	const errCtx = "creating git host"

	switch cfg.Host {
	case config.HostGitHub:
		h, err := github.NewHost(github.Config{
			AccessToken:    token,
			EnterpriseHost: cfg.HostURL,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		return h, nil

	case config.HostGitLab:
		h, err := gitlab.NewHost(gitlab.Config{
			Host:        cfg.HostURL,
			AccessToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		return h, nil

	default:
		return nil, fmt.Errorf(
			"%s: unknown host %q", errCtx, cfg.Host,
		)
	}
}

// splitHub splits "owner/name". GitLab owners may
// contain slashes; the last segment is the name.
func splitHub(s string) (string, string, error) {
	s = strings.Trim(strings.TrimSpace(s), "/")

	i := strings.LastIndex(s, "/")
	if i <= 0 || i == len(s)-1 {
		return "", "", fmt.Errorf(
			"hub must be owner/name, got %q", s,
		)
	}

	return s[:i], s[i+1:], nil
}

func setupLogging(level string) error {
	var lvl slog.Level

	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(
		os.Stderr, &slog.HandlerOptions{Level: lvl},
	)))

	return nil
}
