package diff

import "github.com/byte4ever/repo_sync/gitops/git"

// PreviewForTest exposes preview.
func (e *Engine) PreviewForTest(
	repo git.Repository,
	dest string,
	remote []byte,
	local []byte,
) {
	e.preview(repo, dest, remote, local)
}
