package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/byte4ever/repo_sync/gitops/git"
	"github.com/byte4ever/repo_sync/gitops/syncerr"
)

// PageSize is the listing page size.
const PageSize = 100

// IgnoreCriteria lists the repositories a run must
// leave alone.
type IgnoreCriteria struct {
	// Names are repository names to skip.
	Names []string `yaml:"names"`
	// Topics, when set, keeps only repositories
	// carrying at least one of them.
	Topics []string `yaml:"topics"`
	// ExcludePrivate skips private repositories.
	ExcludePrivate bool `yaml:"exclude_private"`
	// ExcludeForked skips forks.
	ExcludeForked bool `yaml:"exclude_forked"`
}

// Selector discovers spoke repositories on a Host.
type Selector struct {
	Host     git.Host
	Criteria IgnoreCriteria
}

// Select returns the repositories to process. With a
// manual target only that repository is fetched and no
// filtering applies. Otherwise every repository of
// owner is listed and filtered; hub is the name of the
// triggering repository.
func (s *Selector) Select(
	ctx context.Context,
	owner string,
	hub string,
	manualTarget string,
) ([]git.Repository, error) {
	const errCtx = "selecting repositories"

	if manualTarget != "" {
		repo, err := s.Host.GetRepository(
			ctx, owner, manualTarget,
		)
		if err != nil {
			return nil, syncerr.Errorf(
				syncerr.KindAccountResolution,
				errCtx,
				"repository %s/%s: %w",
				owner, manualTarget, err,
			)
		}

		return []git.Repository{repo}, nil
	}

	kind, err := s.accountKind(ctx, owner)
	if err != nil {
		return nil, err
	}

	all, err := s.listAll(ctx, owner, kind)
	if err != nil {
		return nil, err
	}

	selected := Filter(all, hub, s.Criteria)

	slog.Info(
		"selected repositories",
		"owner", owner,
		"account", kind.String(),
		"listed", len(all),
		"selected", len(selected),
	)

	return selected, nil
}

// accountKind probes owner as an organisation first
// and falls back to a user on ErrNotFound.
func (s *Selector) accountKind(
	ctx context.Context,
	owner string,
) (git.AccountKind, error) {
	const errCtx = "resolving account"

	err := s.Host.LookupAccount(
		ctx, owner, git.Organization,
	)
	if err == nil {
		return git.Organization, nil
	}

	if !errors.Is(err, git.ErrNotFound) {
		return 0, syncerr.Errorf(
			syncerr.KindAccountResolution,
			errCtx,
			"organization %s: %w", owner, err,
		)
	}

	if err := s.Host.LookupAccount(
		ctx, owner, git.User,
	); err != nil {
		return 0, syncerr.Errorf(
			syncerr.KindAccountResolution,
			errCtx,
			"%s is neither an organization "+
				"nor a user: %w",
			owner, err,
		)
	}

	return git.User, nil
}

// listAll follows continuation cursors until the last
// page.
func (s *Selector) listAll(
	ctx context.Context,
	owner string,
	kind git.AccountKind,
) ([]git.Repository, error) {
	const errCtx = "listing repositories"

	var (
		all    []git.Repository
		cursor string
	)

	for {
		page, err := s.Host.ListRepositories(
			ctx, owner, kind, cursor, PageSize,
		)
		if err != nil {
			return nil, syncerr.New(
				syncerr.KindAccountResolution,
				errCtx,
				fmt.Errorf("%s: %w", owner, err),
			)
		}

		all = append(all, page.Repositories...)

		if page.Next == "" || page.Next == cursor {
			return all, nil
		}

		cursor = page.Next
	}
}

// Filter drops the hub repository and every
// repository excluded by criteria. It keeps the input
// order and never modifies repos.
func Filter(
	repos []git.Repository,
	hub string,
	criteria IgnoreCriteria,
) []git.Repository {
	names := toSet(criteria.Names)
	topics := toSet(criteria.Topics)

	out := make([]git.Repository, 0, len(repos))

	for _, r := range repos {
		if reason := excluded(
			r, hub, names, topics, criteria,
		); reason != "" {
			slog.Debug(
				"skipping repository",
				"repository", r.Name,
				"reason", reason,
			)

			continue
		}

		out = append(out, r)
	}

	return out
}

// excluded returns why r is skipped, or "".
func excluded(
	r git.Repository,
	hub string,
	names map[string]struct{},
	topics map[string]struct{},
	criteria IgnoreCriteria,
) string {
	switch {
	case r.Name == hub:
		return "hub repository"
	case contains(names, r.Name):
		return "ignored by name"
	case len(topics) > 0 && !anyIn(topics, r.Topics):
		return "missing required topic"
	case r.Archived:
		return "archived"
	case criteria.ExcludePrivate && r.Private:
		return "private"
	case criteria.ExcludeForked && r.Fork:
		return "fork"
	default:
		return ""
	}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v != "" {
			set[v] = struct{}{}
		}
	}

	return set
}

func contains(set map[string]struct{}, v string) bool {
	_, ok := set[v]

	return ok
}

func anyIn(set map[string]struct{}, values []string) bool {
	for _, v := range values {
		if contains(set, v) {
			return true
		}
	}

	return false
}
