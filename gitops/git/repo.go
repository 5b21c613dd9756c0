package git

import (
	"errors"
	"fmt"
	"io"
	"sort"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// zeroSHA is the "before" value of a push that created
// its branch.
const zeroSHA = "0000000000000000000000000000000000000000"

// Repo is the local checkout of the hub repository.
// It is only read, never written.
type Repo struct {
	// Dir is the filesystem location of the checkout.
	Dir  string
	repo *gogit.Repository
}

// Open opens the repository containing dir.
func Open(dir string) (*Repo, error) {
	const errCtx = "opening hub repository"

	repo, err := gogit.PlainOpenWithOptions(
		dir,
		&gogit.PlainOpenOptions{DetectDotGit: true},
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %s: %w", errCtx, dir, err,
		)
	}

	return &Repo{Dir: dir, repo: repo}, nil
}

// ChangedPaths returns every path added, modified or
// deleted between the before and after revisions. An
// empty or all-zero before yields every path tracked
// at after.
func (r *Repo) ChangedPaths(
	before string,
	after string,
) ([]string, error) {
	const errCtx = "listing changed paths"

	if isZeroRevision(before) {
		return r.TrackedPaths(after)
	}

	from, err := r.tree(before)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	to, err := r.tree(after)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	changes, err := object.DiffTree(from, to)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: diff trees: %w", errCtx, err,
		)
	}

	seen := make(map[string]struct{}, len(changes))

	for _, ch := range changes {
		// Renames show up with both names set.
		for _, name := range []string{
			ch.From.Name, ch.To.Name,
		} {
			if name != "" {
				seen[name] = struct{}{}
			}
		}
	}

	return sortedPaths(seen), nil
}

// TrackedPaths returns every file path in the tree of
// rev. An empty rev means HEAD.
func (r *Repo) TrackedPaths(rev string) ([]string, error) {
	const errCtx = "listing tracked paths"

	tree, err := r.tree(rev)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	seen := make(map[string]struct{})

	iter := tree.Files()
	defer iter.Close()

	for {
		f, err := iter.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf(
				"%s: walk tree: %w", errCtx, err,
			)
		}

		seen[f.Name] = struct{}{}
	}

	return sortedPaths(seen), nil
}

// tree resolves rev to the tree of its commit.
func (r *Repo) tree(rev string) (*object.Tree, error) {
	if rev == "" {
		rev = "HEAD"
	}

	hash, err := r.repo.ResolveRevision(
		plumbing.Revision(rev),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"resolve %s: %w", rev, err,
		)
	}

	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf(
			"load commit %s: %w", rev, err,
		)
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf(
			"load tree %s: %w", rev, err,
		)
	}

	return tree, nil
}

func isZeroRevision(rev string) bool {
	return rev == "" || rev == zeroSHA
}

func sortedPaths(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}
