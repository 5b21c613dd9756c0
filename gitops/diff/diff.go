package diff

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/byte4ever/repo_sync/gitops/git"
	"github.com/byte4ever/repo_sync/gitops/pattern"
	"github.com/byte4ever/repo_sync/gitops/syncerr"
)

// Engine computes per-repository change sets.
type Engine struct {
	// Host reads remote file content.
	Host git.Host
	// Local is the hub checkout.
	Local fs.FS
	// Destination is an optional directory prefix
	// applied to every replicated or removed path.
	Destination string
	// Preview logs a unified diff for each addition
	// at debug level.
	Preview bool
}

// DestinationPath maps a hub path to its path in the
// spoke repository.
func (e *Engine) DestinationPath(p string) string {
	dest := strings.Trim(e.Destination, "/")
	if dest == "" || dest == "." {
		return p
	}

	return path.Join(dest, p)
}

// Diff returns the changes needed on repo's default
// branch. A local read failure is a KindLocalRead
// error; remote failures are KindRemoteMutation.
func (e *Engine) Diff(
	ctx context.Context,
	repo git.Repository,
	sel pattern.Selection,
) (git.ChangeSet, error) {
	const errCtx = "computing changes"

	var cs git.ChangeSet

	for _, p := range sel.Replicate {
		add, changed, err := e.addition(ctx, repo, p)
		if err != nil {
			return git.ChangeSet{}, fmt.Errorf(
				"%s: %w", errCtx, err,
			)
		}

		if changed {
			cs.Additions = append(cs.Additions, add)
		}
	}

	for _, p := range sel.Remove {
		dest := e.DestinationPath(p)

		exists, err := e.remoteExists(ctx, repo, dest)
		if err != nil {
			return git.ChangeSet{}, fmt.Errorf(
				"%s: %w", errCtx, err,
			)
		}

		if !exists {
			slog.Debug(
				"remove target absent, skipping",
				"repository", repo.Name,
				"path", dest,
			)

			continue
		}

		cs.Deletions = append(
			cs.Deletions,
			git.FileDeletion{DestinationPath: dest},
		)
	}

	return cs, nil
}

// addition reports whether p differs remotely and, if
// so, the addition that fixes it.
func (e *Engine) addition(
	ctx context.Context,
	repo git.Repository,
	p string,
) (git.FileAddition, bool, error) {
	local, err := fs.ReadFile(e.Local, p)
	if err != nil {
		return git.FileAddition{}, false, syncerr.Errorf(
			syncerr.KindLocalRead,
			"read hub file",
			"%s: %w", p, err,
		)
	}

	dest := e.DestinationPath(p)

	remote, err := e.Host.GetFileContent(
		ctx, repo.Owner, repo.Name, repo.DefaultBranch, dest,
	)

	missing := errors.Is(err, git.ErrNotFound)
	if err != nil && !missing {
		return git.FileAddition{}, false, syncerr.Errorf(
			syncerr.KindRemoteMutation,
			"read remote file",
			"%s: %w", dest, err,
		)
	}

	if !missing && bytes.Equal(local, remote) {
		return git.FileAddition{}, false, nil
	}

	if e.Preview {
		e.preview(repo, dest, remote, local)
	}

	return git.FileAddition{
		Path:            p,
		DestinationPath: dest,
		Content:         base64.StdEncoding.EncodeToString(local),
	}, true, nil
}

func (e *Engine) remoteExists(
	ctx context.Context,
	repo git.Repository,
	dest string,
) (bool, error) {
	_, err := e.Host.GetFileContent(
		ctx, repo.Owner, repo.Name, repo.DefaultBranch, dest,
	)
	if errors.Is(err, git.ErrNotFound) {
		return false, nil
	}

	if err != nil {
		return false, syncerr.Errorf(
			syncerr.KindRemoteMutation,
			"check remote file",
			"%s: %w", dest, err,
		)
	}

	return true, nil
}

// preview logs the unified diff from remote to local.
func (e *Engine) preview(
	repo git.Repository,
	dest string,
	remote []byte,
	local []byte,
) {
	text, err := difflib.GetUnifiedDiffString(
		difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(remote)),
			B:        difflib.SplitLines(string(local)),
			FromFile: repo.Name + "/" + dest,
			ToFile:   "hub/" + dest,
			Context:  3,
		},
	)
	if err != nil {
		slog.Debug(
			"cannot render preview",
			"repository", repo.Name,
			"path", dest,
			"error", err,
		)

		return
	}

	slog.Debug(
		"pending change",
		"repository", repo.Name,
		"path", dest,
		"diff", text,
	)
}
