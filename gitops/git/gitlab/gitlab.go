package gitlab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	gl "gitlab.com/gitlab-org/api/client-go"

	"github.com/byte4ever/repo_sync/gitops/git"
)

// Config holds the settings needed to create a GitLab
// host.
type Config struct {
	// Host is the base URL of the GitLab instance
	// (e.g. "https://gitlab.com").
	Host string
	// AccessToken is a personal or group access
	// token used for authentication.
	AccessToken string
}

// Host talks to GitLab.
//
// Pattern: Strategy -- implements git.Host.
type Host struct {
	client *gl.Client
}

var _ git.Host = (*Host)(nil)

// NewHost validates cfg and returns a Host.
func NewHost(cfg Config) (*Host, error) {
	const errCtx = "creating gitlab host"

	if cfg.AccessToken == "" {
		return nil, fmt.Errorf(
			"%s: access token must be set", errCtx,
		)
	}

	host := cfg.Host
	if host == "" {
		host = "https://gitlab.com"
	}

	client, err := gl.NewClient(
		cfg.AccessToken,
		gl.WithBaseURL(host),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: new client: %w", errCtx, err,
		)
	}

	return &Host{client: client}, nil
}

// GetRepository implements git.Host.
func (h *Host) GetRepository(
	ctx context.Context,
	owner string,
	name string,
) (git.Repository, error) {
	const errCtx = "getting gitlab project"

	p, resp, err := h.client.Projects.GetProject(
		projectPath(owner, name),
		&gl.GetProjectOptions{},
		gl.WithContext(ctx),
	)
	if err != nil {
		return git.Repository{}, fmt.Errorf(
			"%s: %s/%s: %w",
			errCtx, owner, name, apiError(resp, err),
		)
	}

	return fromProject(p), nil
}

// LookupAccount implements git.Host. Organisations
// are groups.
func (h *Host) LookupAccount(
	ctx context.Context,
	owner string,
	kind git.AccountKind,
) error {
	const errCtx = "looking up gitlab account"

	switch kind {
	case git.Organization:
		_, resp, err := h.client.Groups.GetGroup(
			owner, &gl.GetGroupOptions{}, gl.WithContext(ctx),
		)
		if err != nil {
			return fmt.Errorf(
				"%s: group %s: %w",
				errCtx, owner, apiError(resp, err),
			)
		}

		return nil
	case git.User:
		users, resp, err := h.client.Users.ListUsers(
			&gl.ListUsersOptions{Username: gl.Ptr(owner)},
			gl.WithContext(ctx),
		)
		if err != nil {
			return fmt.Errorf(
				"%s: user %s: %w",
				errCtx, owner, apiError(resp, err),
			)
		}

		if len(users) == 0 {
			return fmt.Errorf(
				"%s: user %s: %w", errCtx, owner, git.ErrNotFound,
			)
		}

		return nil
	default:
		return fmt.Errorf(
			"%s: unknown account kind %d", errCtx, kind,
		)
	}
}

// ListRepositories implements git.Host. Cursors are
// GitLab page numbers.
func (h *Host) ListRepositories(
	ctx context.Context,
	owner string,
	kind git.AccountKind,
	cursor string,
	pageSize int,
) (git.RepositoryPage, error) {
	const errCtx = "listing gitlab projects"

	page := 1

	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return git.RepositoryPage{}, fmt.Errorf(
				"%s: bad cursor %q: %w", errCtx, cursor, err,
			)
		}

		page = n
	}

	var (
		projects []*gl.Project
		resp     *gl.Response
		err      error
	)

	if kind == git.Organization {
		opts := &gl.ListGroupProjectsOptions{}
		setInt(&opts.Page, page)
		setInt(&opts.PerPage, pageSize)

		projects, resp, err = h.client.Groups.ListGroupProjects(
			owner, opts, gl.WithContext(ctx),
		)
	} else {
		opts := &gl.ListProjectsOptions{
			Owned: gl.Ptr(true),
		}
		setInt(&opts.Page, page)
		setInt(&opts.PerPage, pageSize)

		projects, resp, err = h.client.Projects.ListUserProjects(
			owner, opts, gl.WithContext(ctx),
		)
	}

	if err != nil {
		return git.RepositoryPage{}, fmt.Errorf(
			"%s: %s: %w", errCtx, owner, apiError(resp, err),
		)
	}

	var out git.RepositoryPage

	for _, p := range projects {
		out.Repositories = append(
			out.Repositories, fromProject(p),
		)
	}

	if resp != nil && resp.NextPage > 0 {
		out.Next = strconv.FormatInt(int64(resp.NextPage), 10)
	}

	return out, nil
}

// GetFileContent implements git.Host.
func (h *Host) GetFileContent(
	ctx context.Context,
	owner string,
	repo string,
	ref string,
	path string,
) ([]byte, error) {
	const errCtx = "getting gitlab file content"

	content, resp, err := h.client.RepositoryFiles.GetRawFile(
		projectPath(owner, repo),
		path,
		&gl.GetRawFileOptions{Ref: gl.Ptr(ref)},
		gl.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %s/%s:%s: %w",
			errCtx, owner, repo, path, apiError(resp, err),
		)
	}

	return content, nil
}

// CreateBranch implements git.Host.
func (h *Host) CreateBranch(
	ctx context.Context,
	owner string,
	repo string,
	name string,
	fromRef string,
) error {
	const errCtx = "creating gitlab branch"

	_, resp, err := h.client.Branches.CreateBranch(
		projectPath(owner, repo),
		&gl.CreateBranchOptions{
			Branch: gl.Ptr(name),
			Ref:    gl.Ptr(fromRef),
		},
		gl.WithContext(ctx),
	)
	if err == nil {
		return nil
	}

	// HTTP 400 with "Branch already exists".
	if resp != nil &&
		(resp.StatusCode == http.StatusBadRequest ||
			resp.StatusCode == http.StatusConflict) &&
		strings.Contains(
			strings.ToLower(err.Error()), "already exists",
		) {
		return fmt.Errorf(
			"%s: %s: %w: %w",
			errCtx, name, git.ErrAlreadyExists, err,
		)
	}

	return fmt.Errorf(
		"%s: %s: %w", errCtx, name, apiError(resp, err),
	)
}

// GetBranchHead implements git.Host. A branch that is
// not visible yet yields git.ErrEmptyResult.
func (h *Host) GetBranchHead(
	ctx context.Context,
	owner string,
	repo string,
	branch string,
) (git.BranchHead, error) {
	const errCtx = "getting gitlab branch head"

	b, resp, err := h.client.Branches.GetBranch(
		projectPath(owner, repo), branch, gl.WithContext(ctx),
	)

	err = apiError(resp, err)
	if errors.Is(err, git.ErrNotFound) {
		err = fmt.Errorf("%w: %w", git.ErrEmptyResult, err)
	}

	if err != nil {
		return git.BranchHead{}, fmt.Errorf(
			"%s: %s/%s@%s: %w", errCtx, owner, repo, branch, err,
		)
	}

	if b == nil || b.Commit == nil || b.Commit.ID == "" {
		return git.BranchHead{}, fmt.Errorf(
			"%s: %s/%s@%s: %w",
			errCtx, owner, repo, branch, git.ErrEmptyResult,
		)
	}

	return git.BranchHead{OID: b.Commit.ID}, nil
}

// CommitFileChanges implements git.Host. The branch
// head is checked against req.ExpectedHeadOID and
// every update action carries the last commit of its
// file so a concurrent change fails the commit.
func (h *Host) CommitFileChanges(
	ctx context.Context,
	req git.CommitRequest,
) (string, error) {
	const errCtx = "committing to gitlab"

	pid := projectPath(req.Owner, req.Repo)

	head, err := h.GetBranchHead(
		ctx, req.Owner, req.Repo, req.Branch,
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	if req.ExpectedHeadOID != "" &&
		head.OID != req.ExpectedHeadOID {
		return "", fmt.Errorf(
			"%s: %s@%s moved from %s to %s",
			errCtx, pid, req.Branch, req.ExpectedHeadOID, head.OID,
		)
	}

	actions := make(
		[]*gl.CommitActionOptions,
		0,
		len(req.Changes.Additions)+len(req.Changes.Deletions),
	)

	for _, a := range req.Changes.Additions {
		act := &gl.CommitActionOptions{
			Action:   gl.Ptr(gl.FileCreate),
			FilePath: gl.Ptr(a.DestinationPath),
			Content:  gl.Ptr(a.Content),
			Encoding: gl.Ptr("base64"),
		}

		meta, resp, err := h.client.RepositoryFiles.GetFileMetaData(
			pid,
			a.DestinationPath,
			&gl.GetFileMetaDataOptions{Ref: gl.Ptr(req.Branch)},
			gl.WithContext(ctx),
		)

		switch err = apiError(resp, err); {
		case err == nil:
			act.Action = gl.Ptr(gl.FileUpdate)
			act.LastCommitID = gl.Ptr(meta.LastCommitID)
		case errors.Is(err, git.ErrNotFound):
		default:
			return "", fmt.Errorf(
				"%s: inspect %s: %w", errCtx, a.DestinationPath, err,
			)
		}

		actions = append(actions, act)
	}

	for _, d := range req.Changes.Deletions {
		actions = append(actions, &gl.CommitActionOptions{
			Action:   gl.Ptr(gl.FileDelete),
			FilePath: gl.Ptr(d.DestinationPath),
		})
	}

	message := req.Headline
	if req.Body != "" {
		message += "\n\n" + req.Body
	}

	c, resp, err := h.client.Commits.CreateCommit(
		pid,
		&gl.CreateCommitOptions{
			Branch:        gl.Ptr(req.Branch),
			CommitMessage: gl.Ptr(message),
			Actions:       actions,
		},
		gl.WithContext(ctx),
	)
	if err != nil {
		return "", fmt.Errorf(
			"%s: %s@%s: %w",
			errCtx, pid, req.Branch, apiError(resp, err),
		)
	}

	if c == nil || c.WebURL == "" {
		return "", fmt.Errorf(
			"%s: %s@%s: %w",
			errCtx, pid, req.Branch, git.ErrEmptyResult,
		)
	}

	return c.WebURL, nil
}

// CreatePullRequest implements git.Host with a merge
// request.
func (h *Host) CreatePullRequest(
	ctx context.Context,
	req git.PullRequestRequest,
) (string, error) {
	const errCtx = "creating gitlab merge request"

	mr, resp, err := h.client.MergeRequests.CreateMergeRequest(
		projectPath(req.Owner, req.Repo),
		&gl.CreateMergeRequestOptions{
			Title:        gl.Ptr(req.Title),
			Description:  gl.Ptr(req.Body),
			SourceBranch: gl.Ptr(req.Branch),
			TargetBranch: gl.Ptr(req.Base),
		},
		gl.WithContext(ctx),
	)
	if err != nil {
		return "", fmt.Errorf(
			"%s: %s/%s: %w",
			errCtx, req.Owner, req.Repo, apiError(resp, err),
		)
	}

	return mr.WebURL, nil
}

// apiError tags a failure with a git sentinel when
// the status code has one.
func apiError(resp *gl.Response, err error) error {
	if err == nil || resp == nil {
		return err
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", git.ErrNotFound, err)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", git.ErrSubmittedTooQuickly, err)
	default:
		return err
	}
}

func projectPath(owner string, name string) string {
	return owner + "/" + name
}

func fromProject(p *gl.Project) git.Repository {
	r := git.Repository{
		Name:          p.Path,
		URL:           p.WebURL,
		ID:            strconv.FormatInt(int64(p.ID), 10),
		DefaultBranch: p.DefaultBranch,
		Private:       p.Visibility == gl.PrivateVisibility,
		Fork:          p.ForkedFromProject != nil,
		Archived:      p.Archived,
		Topics:        p.Topics,
	}

	if p.Namespace != nil {
		r.Owner = p.Namespace.FullPath
	}

	return r
}

// setInt assigns v to a pagination field whatever its
// integer width.
func setInt[T ~int | ~int64](dst *T, v int) {
	*dst = T(v)
}
