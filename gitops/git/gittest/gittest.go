// Package gittest provides an in-memory git.Host for tests. It records every
// call and lets tests override individual methods to inject failures.
package gittest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/byte4ever/repo_sync/gitops/git"
)

// ErrStale is returned by the default commit
// behaviour when the expected head no longer matches
// the branch tip.
var ErrStale = errors.New("expected head oid is stale")

// Fake is an in-memory git.Host. Zero-valued maps are
// allocated on first use. The On* hooks, when set,
// replace the default behaviour and receive the
// 1-based call count for that method.
type Fake struct {
	Accounts     map[string]git.AccountKind
	Repositories []git.Repository
	// Files is keyed by FileKey.
	Files map[string][]byte
	// Branches maps BranchKey to head oid.
	Branches map[string]string

	AccountErr          error
	OnGetFileContent    func(owner, repo, ref, path string) ([]byte, error)
	OnCreateBranch      func(owner, repo, name, from string) error
	OnGetBranchHead     func(owner, repo, branch string, call int) (git.BranchHead, error)
	OnCommitFileChanges func(req git.CommitRequest, call int) (string, error)
	OnCreatePullRequest func(req git.PullRequestRequest, call int) (string, error)

	mu           sync.Mutex
	calls        []string
	counts       map[string]int
	commits      []git.CommitRequest
	pullRequests []git.PullRequestRequest
	seq          int
}

var _ git.Host = (*Fake)(nil)

// FileKey identifies a file at a ref.
func FileKey(owner, repo, ref, path string) string {
	return owner + "/" + repo + "@" + ref + ":" + path
}

// BranchKey identifies a branch.
func BranchKey(owner, repo, branch string) string {
	return owner + "/" + repo + "#" + branch
}

// Calls returns the recorded calls as "Method repo".
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.calls...)
}

// CallsFor returns the recorded method names for one
// repository, in order.
func (f *Fake) CallsFor(repo string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string

	for _, c := range f.calls {
		var method, r string
		_, err := fmt.Sscanf(c, "%s %s", &method, &r)
		if err == nil && r == repo {
			out = append(out, method)
		}
	}

	return out
}

// Commits returns the successful commit requests.
func (f *Fake) Commits() []git.CommitRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]git.CommitRequest(nil), f.commits...)
}

// PullRequests returns the successful pull request
// requests.
func (f *Fake) PullRequests() []git.PullRequestRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append(
		[]git.PullRequestRequest(nil), f.pullRequests...,
	)
}

// SetFile stores content for path at ref.
func (f *Fake) SetFile(owner, repo, ref, path string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Files == nil {
		f.Files = make(map[string][]byte)
	}

	f.Files[FileKey(owner, repo, ref, path)] = content
}

// SetBranch sets a branch head.
func (f *Fake) SetBranch(owner, repo, branch, oid string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.setBranchLocked(owner, repo, branch, oid)
}

func (f *Fake) setBranchLocked(owner, repo, branch, oid string) {
	if f.Branches == nil {
		f.Branches = make(map[string]string)
	}

	f.Branches[BranchKey(owner, repo, branch)] = oid
}

// record logs a call and returns its per-method count.
func (f *Fake) record(method string, repo string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.counts == nil {
		f.counts = make(map[string]int)
	}

	f.calls = append(f.calls, method+" "+repo)
	f.counts[method+" "+repo]++

	return f.counts[method+" "+repo]
}

// GetRepository implements git.Host.
func (f *Fake) GetRepository(
	_ context.Context,
	owner string,
	name string,
) (git.Repository, error) {
	f.record("GetRepository", name)

	for _, r := range f.Repositories {
		if r.Owner == owner && r.Name == name {
			return r, nil
		}
	}

	return git.Repository{}, git.ErrNotFound
}

// LookupAccount implements git.Host.
func (f *Fake) LookupAccount(
	_ context.Context,
	owner string,
	kind git.AccountKind,
) error {
	f.record("LookupAccount", owner)

	if f.AccountErr != nil {
		return f.AccountErr
	}

	if k, ok := f.Accounts[owner]; ok && k == kind {
		return nil
	}

	return git.ErrNotFound
}

// ListRepositories implements git.Host. Cursors are
// decimal offsets.
func (f *Fake) ListRepositories(
	_ context.Context,
	owner string,
	_ git.AccountKind,
	cursor string,
	pageSize int,
) (git.RepositoryPage, error) {
	f.record("ListRepositories", owner)

	var owned []git.Repository

	for _, r := range f.Repositories {
		if r.Owner == owner {
			owned = append(owned, r)
		}
	}

	start := 0

	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return git.RepositoryPage{}, err
		}

		start = n
	}

	end := min(start+pageSize, len(owned))
	page := git.RepositoryPage{
		Repositories: owned[start:end],
	}

	if end < len(owned) {
		page.Next = strconv.Itoa(end)
	}

	return page, nil
}

// GetFileContent implements git.Host.
func (f *Fake) GetFileContent(
	_ context.Context,
	owner string,
	repo string,
	ref string,
	path string,
) ([]byte, error) {
	f.record("GetFileContent", repo)

	if f.OnGetFileContent != nil {
		return f.OnGetFileContent(owner, repo, ref, path)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	content, ok := f.Files[FileKey(owner, repo, ref, path)]
	if !ok {
		return nil, git.ErrNotFound
	}

	return content, nil
}

// CreateBranch implements git.Host. The default
// behaviour copies the head of from, or uses
// "base-<repo>" when from is unknown.
func (f *Fake) CreateBranch(
	_ context.Context,
	owner string,
	repo string,
	name string,
	from string,
) error {
	f.record("CreateBranch", repo)

	if f.OnCreateBranch != nil {
		return f.OnCreateBranch(owner, repo, name, from)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.Branches[BranchKey(owner, repo, name)]; ok {
		return git.ErrAlreadyExists
	}

	base, ok := f.Branches[BranchKey(owner, repo, from)]
	if !ok {
		base = "base-" + repo
	}

	f.setBranchLocked(owner, repo, name, base)

	return nil
}

// GetBranchHead implements git.Host.
func (f *Fake) GetBranchHead(
	_ context.Context,
	owner string,
	repo string,
	branch string,
) (git.BranchHead, error) {
	call := f.record("GetBranchHead", repo)

	if f.OnGetBranchHead != nil {
		return f.OnGetBranchHead(owner, repo, branch, call)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	oid, ok := f.Branches[BranchKey(owner, repo, branch)]
	if !ok {
		return git.BranchHead{}, git.ErrEmptyResult
	}

	return git.BranchHead{OID: oid, RepoID: "id-" + repo}, nil
}

// CommitFileChanges implements git.Host. The default
// behaviour rejects stale expected heads and advances
// the branch.
func (f *Fake) CommitFileChanges(
	_ context.Context,
	req git.CommitRequest,
) (string, error) {
	call := f.record("CommitFileChanges", req.Repo)

	if f.OnCommitFileChanges != nil {
		url, err := f.OnCommitFileChanges(req, call)
		if err == nil {
			f.mu.Lock()
			f.commits = append(f.commits, req)
			f.mu.Unlock()
		}

		return url, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := BranchKey(req.Owner, req.Repo, req.Branch)
	if f.Branches[key] != req.ExpectedHeadOID {
		return "", ErrStale
	}

	f.seq++
	oid := fmt.Sprintf("commit-%d", f.seq)
	f.Branches[key] = oid
	f.commits = append(f.commits, req)

	return fmt.Sprintf(
		"https://git.example.test/%s/%s/commit/%s",
		req.Owner, req.Repo, oid,
	), nil
}

// CreatePullRequest implements git.Host.
func (f *Fake) CreatePullRequest(
	_ context.Context,
	req git.PullRequestRequest,
) (string, error) {
	call := f.record("CreatePullRequest", req.Repo)

	url := fmt.Sprintf(
		"https://git.example.test/%s/%s/pull/1",
		req.Owner, req.Repo,
	)

	if f.OnCreatePullRequest != nil {
		var err error

		url, err = f.OnCreatePullRequest(req, call)
		if err != nil {
			return "", err
		}
	}

	f.mu.Lock()
	f.pullRequests = append(f.pullRequests, req)
	f.mu.Unlock()

	return url, nil
}
