package git

import (
	"context"
	"errors"
)

// Pattern: Strategy -- swap git platform without
// changing sync logic.

var (
	// ErrNotFound is returned when an account,
	// repository or file does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned by CreateBranch
	// when the ref is already present.
	ErrAlreadyExists = errors.New("already exists")
	// ErrEmptyResult is returned when the remote
	// answered without data, typically while a
	// fresh ref is not yet readable.
	ErrEmptyResult = errors.New("empty result")
	// ErrSubmittedTooQuickly is returned when pull
	// request creation was throttled.
	ErrSubmittedTooQuickly = errors.New(
		"submitted too quickly",
	)
)

// AccountKind tells user accounts and organisations
// apart; listing endpoints differ between the two.
type AccountKind int

const (
	// Organization is an organisation or group.
	Organization AccountKind = iota
	// User is an individual account.
	User
)

func (k AccountKind) String() string {
	if k == User {
		return "user"
	}

	return "organization"
}

// Repository describes one repository of the account.
// ID is the platform identifier used for pull request
// creation; Name is used for addressing and logging.
type Repository struct {
	Owner         string
	Name          string
	URL           string
	ID            string
	DefaultBranch string
	Private       bool
	Fork          bool
	Archived      bool
	Topics        []string
}

// FullName returns "owner/name".
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// RepositoryPage is one page of a repository listing.
// Next is empty on the last page.
type RepositoryPage struct {
	Repositories []Repository
	Next         string
}

// FileAddition writes Content (base64) to
// DestinationPath. Path is the hub-side source path.
type FileAddition struct {
	Path            string
	DestinationPath string
	Content         string
}

// FileDeletion removes DestinationPath.
type FileDeletion struct {
	DestinationPath string
}

// ChangeSet is the set of file changes for one
// repository, applied as a single commit.
type ChangeSet struct {
	Additions []FileAddition
	Deletions []FileDeletion
}

// Empty reports whether the change set has no
// additions and no deletions.
func (c ChangeSet) Empty() bool {
	return len(c.Additions) == 0 && len(c.Deletions) == 0
}

// Paths returns every destination path touched by the
// change set, additions first.
func (c ChangeSet) Paths() []string {
	out := make(
		[]string, 0, len(c.Additions)+len(c.Deletions),
	)

	for _, a := range c.Additions {
		out = append(out, a.DestinationPath)
	}

	for _, d := range c.Deletions {
		out = append(out, d.DestinationPath)
	}

	return out
}

// BranchHead is the current tip of a branch together
// with the owning repository identifier.
type BranchHead struct {
	OID    string
	RepoID string
}

// CommitRequest asks for one atomic commit on Branch.
// The remote rejects the write if the branch tip is no
// longer ExpectedHeadOID.
type CommitRequest struct {
	Owner           string
	Repo            string
	Branch          string
	Changes         ChangeSet
	Headline        string
	Body            string
	ExpectedHeadOID string
}

// PullRequestRequest asks for a pull request from
// Branch into Base.
type PullRequestRequest struct {
	Owner  string
	Repo   string
	RepoID string
	Branch string
	Base   string
	Title  string
	Body   string
}

// Host is the hosting platform seen by the sync
// engine.
type Host interface {
	// GetRepository returns one repository or
	// ErrNotFound.
	GetRepository(
		ctx context.Context,
		owner string,
		name string,
	) (Repository, error)

	// LookupAccount returns nil when owner exists as
	// an account of the given kind, ErrNotFound
	// otherwise.
	LookupAccount(
		ctx context.Context,
		owner string,
		kind AccountKind,
	) error

	// ListRepositories returns the page starting at
	// cursor (empty for the first page).
	ListRepositories(
		ctx context.Context,
		owner string,
		kind AccountKind,
		cursor string,
		pageSize int,
	) (RepositoryPage, error)

	// GetFileContent returns raw file bytes at ref or
	// ErrNotFound.
	GetFileContent(
		ctx context.Context,
		owner string,
		repo string,
		ref string,
		path string,
	) ([]byte, error)

	// CreateBranch creates name from the tip of
	// fromRef, or returns ErrAlreadyExists.
	CreateBranch(
		ctx context.Context,
		owner string,
		repo string,
		name string,
		fromRef string,
	) error

	// GetBranchHead returns the current branch tip,
	// or ErrEmptyResult while it is not readable.
	GetBranchHead(
		ctx context.Context,
		owner string,
		repo string,
		branch string,
	) (BranchHead, error)

	// CommitFileChanges applies the change set as one
	// commit and returns its URL. ErrEmptyResult
	// signals a transient consistency gap.
	CommitFileChanges(
		ctx context.Context,
		req CommitRequest,
	) (string, error)

	// CreatePullRequest opens a pull request and
	// returns its URL. ErrSubmittedTooQuickly signals
	// throttling.
	CreatePullRequest(
		ctx context.Context,
		req PullRequestRequest,
	) (string, error)
}
