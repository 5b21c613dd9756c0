package git_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/repo_sync/gitops/git"
)

// hubFixture is a throwaway on-disk repository with
// helpers to write, delete and commit files.
type hubFixture struct {
	tb   testing.TB
	dir  string
	repo *gogit.Repository
}

func newHubFixture(tb testing.TB) *hubFixture {
	tb.Helper()

	dir := tb.TempDir()

	repo, err := gogit.PlainInit(dir, false)
	require.NoError(tb, err)

	return &hubFixture{tb: tb, dir: dir, repo: repo}
}

func (h *hubFixture) write(name string, content string) {
	h.tb.Helper()

	pa := filepath.Join(h.dir, name)
	require.NoError(
		h.tb, os.MkdirAll(filepath.Dir(pa), 0o755),
	)
	require.NoError(
		h.tb, os.WriteFile(pa, []byte(content), 0o600),
	)

	wt, err := h.repo.Worktree()
	require.NoError(h.tb, err)

	_, err = wt.Add(name)
	require.NoError(h.tb, err)
}

func (h *hubFixture) remove(name string) {
	h.tb.Helper()

	wt, err := h.repo.Worktree()
	require.NoError(h.tb, err)

	_, err = wt.Remove(name)
	require.NoError(h.tb, err)
}

func (h *hubFixture) commit(msg string) string {
	h.tb.Helper()

	wt, err := h.repo.Worktree()
	require.NoError(h.tb, err)

	hash, err := wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  "hub",
			Email: "hub@example.com",
			When: time.Date(
				2025, 1, 1, 0, 0, 0, 0, time.UTC,
			),
		},
	})
	require.NoError(h.tb, err)

	return hash.String()
}

func TestRepo_ChangedPaths(t *testing.T) {
	t.Parallel()

	hub := newHubFixture(t)
	hub.write("README.md", "v1")
	hub.write("legacy/old.yml", "a: 1")
	hub.write("keep.txt", "same")
	before := hub.commit("initial")

	hub.write("README.md", "v2")
	hub.write("docs/new.md", "new")
	hub.remove("legacy/old.yml")
	after := hub.commit("update")

	rp, err := git.Open(hub.dir)
	require.NoError(t, err)

	got, err := rp.ChangedPaths(before, after)
	require.NoError(t, err)
	assert.Equal(
		t,
		[]string{
			"README.md", "docs/new.md", "legacy/old.yml",
		},
		got,
	)
}

func TestRepo_ChangedPaths_zero_before(t *testing.T) {
	t.Parallel()

	hub := newHubFixture(t)
	hub.write("a.md", "a")
	hub.write("b/c.md", "c")
	after := hub.commit("initial")

	rp, err := git.Open(hub.dir)
	require.NoError(t, err)

	got, err := rp.ChangedPaths(
		"0000000000000000000000000000000000000000",
		after,
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "b/c.md"}, got)
}

func TestRepo_TrackedPaths_head(t *testing.T) {
	t.Parallel()

	hub := newHubFixture(t)
	hub.write("z.md", "z")
	hub.write("a/b.md", "b")
	hub.commit("initial")

	rp, err := git.Open(filepath.Join(hub.dir))
	require.NoError(t, err)

	got, err := rp.TrackedPaths("")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b.md", "z.md"}, got)
}

func TestRepo_ChangedPaths_unknown_revision(t *testing.T) {
	t.Parallel()

	hub := newHubFixture(t)
	hub.write("a.md", "a")
	after := hub.commit("initial")

	rp, err := git.Open(hub.dir)
	require.NoError(t, err)

	_, err = rp.ChangedPaths(
		"1111111111111111111111111111111111111111",
		after,
	)
	assert.Error(t, err)
}

func TestOpen_not_a_repository(t *testing.T) {
	t.Parallel()

	_, err := git.Open(t.TempDir())

	assert.Error(t, err)
}

func TestIsZeroRevision(t *testing.T) {
	t.Parallel()

	assert.True(t, git.IsZeroRevisionForTest(""))
	assert.True(t, git.IsZeroRevisionForTest(
		"0000000000000000000000000000000000000000",
	))
	assert.False(t, git.IsZeroRevisionForTest("abc123"))
}
